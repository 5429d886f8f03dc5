package ui

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/scrapedeck/internal/api"
	"github.com/five82/scrapedeck/internal/mutation"
	"github.com/five82/scrapedeck/internal/query"
)

const (
	opCreate = "create"
	opCancel = "cancel"
	opRetry  = "retry"
	opClone  = "clone"
)

// Messages

type tickMsg time.Time

// mutationMsg reports a finished mutation.
type mutationMsg struct {
	op  string
	id  string
	job api.Job
	err error
}

type refreshedMsg struct {
	err error
}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func createCmd(ctx context.Context, c *mutation.Coordinator, url string) tea.Cmd {
	return func() tea.Msg {
		job, err := c.CreateJob(ctx, api.CreateJobRequest{URL: url})
		return mutationMsg{op: opCreate, job: job, err: err}
	}
}

func cancelCmd(ctx context.Context, c *mutation.Coordinator, id string) tea.Cmd {
	return func() tea.Msg {
		_, err := c.CancelJob(ctx, id)
		return mutationMsg{op: opCancel, id: id, err: err}
	}
}

func retryCmd(ctx context.Context, c *mutation.Coordinator, id string) tea.Cmd {
	return func() tea.Msg {
		job, err := c.RetryJob(ctx, id)
		return mutationMsg{op: opRetry, id: id, job: job, err: err}
	}
}

func cloneCmd(ctx context.Context, c *mutation.Coordinator, id string) tea.Cmd {
	return func() tea.Msg {
		job, err := c.CloneJob(ctx, id)
		return mutationMsg{op: opClone, id: id, job: job, err: err}
	}
}

// refreshCmd invalidates everything observed and waits for the refetches.
func refreshCmd(ctx context.Context, s *query.Synchronizer) tea.Cmd {
	return func() tea.Msg {
		return refreshedMsg{err: s.Invalidate(ctx, nil)}
	}
}

// describeError turns a mutation error into a one-line status message.
func describeError(op string, err error) string {
	var notReady *api.NotReadyError
	var invalid *api.ValidationError
	var httpErr *api.HTTPError
	switch {
	case errors.As(err, &notReady):
		return fmt.Sprintf("%s refused: backend is %s", op, notReady.Tier)
	case errors.As(err, &invalid):
		return fmt.Sprintf("%s: %s", op, invalid.Error())
	case api.IsNetwork(err):
		return fmt.Sprintf("%s failed: backend unreachable", op)
	case errors.As(err, &httpErr) && httpErr.Message != "":
		return fmt.Sprintf("%s failed (%d): %s", op, httpErr.StatusCode, httpErr.Message)
	case errors.As(err, &httpErr):
		return fmt.Sprintf("%s failed: status %d", op, httpErr.StatusCode)
	default:
		return fmt.Sprintf("%s failed: %v", op, err)
	}
}
