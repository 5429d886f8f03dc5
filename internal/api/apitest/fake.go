// Package apitest provides an in-memory api.JobsAPI for tests.
package apitest

import (
	"context"
	"sync"

	"github.com/five82/scrapedeck/internal/api"
)

// Fake implements api.JobsAPI with overridable funcs. Unset funcs return
// zero values. Every call is counted by operation name.
type Fake struct {
	ListJobsFunc  func(ctx context.Context, q api.ListJobsQuery) (api.JobList, error)
	GetJobFunc    func(ctx context.Context, id string) (api.Job, error)
	CreateJobFunc func(ctx context.Context, req api.CreateJobRequest) (api.Job, error)
	CancelJobFunc func(ctx context.Context, id string) (api.MessageResponse, error)
	RetryJobFunc  func(ctx context.Context, id string) (api.Job, error)
	GetResultFunc func(ctx context.Context, id string, opts api.ResultOptions) (api.JobResult, error)
	HealthFunc    func(ctx context.Context) (api.Health, error)

	mu    sync.Mutex
	calls map[string]int
}

var _ api.JobsAPI = (*Fake)(nil)

// Healthy is a health payload that passes the job-creation gate.
func Healthy() api.Health {
	return api.Health{
		Overall:    api.TierHealthy,
		Components: map[string]bool{"database": true, "redis": true},
	}
}

// Calls reports how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Total reports the number of calls across all operations.
func (f *Fake) Total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, v := range f.calls {
		n += v
	}
	return n
}

func (f *Fake) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[op]++
}

func (f *Fake) ListJobs(ctx context.Context, q api.ListJobsQuery) (api.JobList, error) {
	f.record("ListJobs")
	if f.ListJobsFunc == nil {
		return api.JobList{}, nil
	}
	return f.ListJobsFunc(ctx, q)
}

func (f *Fake) GetJob(ctx context.Context, id string) (api.Job, error) {
	f.record("GetJob")
	if f.GetJobFunc == nil {
		return api.Job{ID: id}, nil
	}
	return f.GetJobFunc(ctx, id)
}

func (f *Fake) CreateJob(ctx context.Context, req api.CreateJobRequest) (api.Job, error) {
	f.record("CreateJob")
	if f.CreateJobFunc == nil {
		return api.Job{URL: req.URL, Status: api.StatusPending}, nil
	}
	return f.CreateJobFunc(ctx, req)
}

func (f *Fake) CancelJob(ctx context.Context, id string) (api.MessageResponse, error) {
	f.record("CancelJob")
	if f.CancelJobFunc == nil {
		return api.MessageResponse{Message: "cancelled"}, nil
	}
	return f.CancelJobFunc(ctx, id)
}

func (f *Fake) RetryJob(ctx context.Context, id string) (api.Job, error) {
	f.record("RetryJob")
	if f.RetryJobFunc == nil {
		return api.Job{}, nil
	}
	return f.RetryJobFunc(ctx, id)
}

func (f *Fake) GetResult(ctx context.Context, id string, opts api.ResultOptions) (api.JobResult, error) {
	f.record("GetResult")
	if f.GetResultFunc == nil {
		return api.JobResult{JobID: id}, nil
	}
	return f.GetResultFunc(ctx, id, opts)
}

func (f *Fake) Health(ctx context.Context) (api.Health, error) {
	f.record("Health")
	if f.HealthFunc == nil {
		return Healthy(), nil
	}
	return f.HealthFunc(ctx)
}
