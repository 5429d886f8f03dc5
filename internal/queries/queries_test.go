package queries

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/scrapedeck/internal/api"
	"github.com/five82/scrapedeck/internal/api/apitest"
	"github.com/five82/scrapedeck/internal/query"
	"github.com/five82/scrapedeck/internal/state"
)

func TestKeys_Nesting(t *testing.T) {
	list := JobList(api.ListJobsQuery{Status: api.StatusFailed, Limit: 50, SortBy: "created_at", SortOrder: api.SortDesc})
	assert.True(t, list.HasPrefix(JobLists()))
	assert.True(t, list.HasPrefix(Jobs()))
	assert.False(t, list.HasPrefix(JobDetails()))
	assert.Equal(t, `["jobs","list","status=failed","limit=50","offset=0","sort=created_at","order=desc"]`, list.String())

	assert.True(t, Job("42").HasPrefix(JobDetails()))
	assert.True(t, Job("42").HasPrefix(Jobs()))
	assert.Equal(t, `["jobs","detail","42"]`, Job("42").String())

	assert.False(t, Result("42", api.ResultOptions{}).Equal(Result("42", api.ResultOptions{IncludeHTML: true})))
	assert.Equal(t, "health", Health().Kind())
}

func TestListAccepts(t *testing.T) {
	all := JobList(api.ListJobsQuery{})
	failed := JobList(api.ListJobsQuery{Status: api.StatusFailed})

	assert.True(t, ListAccepts(all, api.StatusPending))
	assert.True(t, ListAccepts(failed, api.StatusFailed))
	assert.False(t, ListAccepts(failed, api.StatusPending))
	assert.True(t, ListAccepts(state.NewKey("jobs", "list"), api.StatusPending))
}

func TestCatalog_Policies(t *testing.T) {
	c := New(&apitest.Fake{}, Intervals{Jobs: 7 * time.Second})

	h := c.Health()
	assert.Equal(t, 30*time.Second, h.Policy.RefetchInterval)
	assert.True(t, h.Policy.RefetchInBackground)

	l := c.JobList(api.ListJobsQuery{})
	assert.Equal(t, 7*time.Second, l.Policy.RefetchInterval)
	assert.False(t, l.Policy.RefetchInBackground)
	assert.True(t, l.Policy.RefetchOnFocus)

	r := c.Result("1", api.ResultOptions{})
	assert.Equal(t, query.Forever, r.Policy.StaleTime)
	assert.Zero(t, r.Policy.RefetchInterval)

	j := c.Job("1")
	assert.Equal(t, 2*time.Second, j.Policy.RefetchInterval)
	require.NotNil(t, j.Policy.PollWhile)
	assert.True(t, j.Policy.PollWhile(state.Entry{}))
	assert.True(t, j.Policy.PollWhile(state.Entry{Data: api.Job{Status: api.StatusInProgress}, HasData: true}))
	assert.False(t, j.Policy.PollWhile(state.Entry{Data: api.Job{Status: api.StatusCancelled}, HasData: true}))
}

func TestCatalog_RetryFollowsIntervals(t *testing.T) {
	c := New(&apitest.Fake{}, Intervals{Retries: 1, RetryBase: 100 * time.Millisecond, RetryMax: 150 * time.Millisecond})
	p := c.JobList(api.ListJobsQuery{}).Policy

	netErr := &api.NetworkError{Op: "list", Err: errors.New("refused")}
	assert.True(t, p.Retry(0, netErr))
	assert.False(t, p.Retry(1, netErr))
	assert.Equal(t, 100*time.Millisecond, p.RetryDelay(0))
	assert.Equal(t, 150*time.Millisecond, p.RetryDelay(3))
}

func TestCatalog_FetchesThroughAPI(t *testing.T) {
	fake := &apitest.Fake{
		ListJobsFunc: func(_ context.Context, q api.ListJobsQuery) (api.JobList, error) {
			return api.JobList{Jobs: []api.Job{{ID: "1", Status: q.Status}}, Total: 1}, nil
		},
		GetResultFunc: func(_ context.Context, id string, opts api.ResultOptions) (api.JobResult, error) {
			return api.JobResult{JobID: id, HTML: map[bool]string{true: "<html>"}[opts.IncludeHTML]}, nil
		},
	}
	c := New(fake, Intervals{})
	ctx := context.Background()

	v, err := c.JobList(api.ListJobsQuery{Status: api.StatusFailed}).Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, api.StatusFailed, v.(api.JobList).Jobs[0].Status)

	v, err = c.Result("9", api.ResultOptions{IncludeHTML: true}).Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "<html>", v.(api.JobResult).HTML)

	v, err = c.Health().Fetch(ctx)
	require.NoError(t, err)
	assert.IsType(t, api.Health{}, v)

	v, err = c.Job("5").Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "5", v.(api.Job).ID)

	assert.Equal(t, 1, fake.Calls("ListJobs"))
	assert.Equal(t, 1, fake.Calls("GetResult"))
	assert.Same(t, fake, c.API())
}
