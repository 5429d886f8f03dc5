package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/scrapedeck/internal/api"
	"github.com/five82/scrapedeck/internal/api/apitest"
	"github.com/five82/scrapedeck/internal/clock"
	"github.com/five82/scrapedeck/internal/queries"
	"github.com/five82/scrapedeck/internal/query"
	"github.com/five82/scrapedeck/internal/state"
)

func newEngine(t *testing.T, fake *apitest.Fake) (*query.Synchronizer, *queries.Catalog) {
	t.Helper()
	clk := clock.NewManual(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	store := state.NewStore(state.WithClock(clk))
	s := query.New(context.Background(), store, query.WithClock(clk))
	t.Cleanup(s.Close)
	return s, queries.New(fake, queries.Intervals{Retries: 0})
}

func TestPrime_LoadsHealthAndFirstPage(t *testing.T) {
	fake := &apitest.Fake{
		ListJobsFunc: func(_ context.Context, q api.ListJobsQuery) (api.JobList, error) {
			return api.JobList{Jobs: []api.Job{{ID: "j1", Status: api.StatusPending}}, Total: 1}, nil
		},
	}
	s, catalog := newEngine(t, fake)
	first := api.ListJobsQuery{Limit: 50, SortBy: "created_at", SortOrder: api.SortDesc}

	require.NoError(t, Prime(context.Background(), s, catalog, first))

	health, ok := s.Store().Get(queries.Health())
	require.True(t, ok)
	assert.True(t, health.HasData)

	list, ok := s.Store().Get(queries.JobList(first))
	require.True(t, ok)
	jobs, _ := state.Data[api.JobList](list)
	assert.Equal(t, 1, jobs.Total)
	assert.Zero(t, list.Observers, "priming does not observe")
}

func TestPrime_OneFailureDoesNotStopTheOther(t *testing.T) {
	fake := &apitest.Fake{
		HealthFunc: func(context.Context) (api.Health, error) {
			return api.Health{}, &api.NetworkError{Op: "health", Err: context.DeadlineExceeded}
		},
		ListJobsFunc: func(context.Context, api.ListJobsQuery) (api.JobList, error) {
			return api.JobList{Total: 7}, nil
		},
	}
	s, catalog := newEngine(t, fake)

	err := Prime(context.Background(), s, catalog, api.ListJobsQuery{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "health:")
	assert.NotContains(t, err.Error(), "job list:")
	assert.True(t, api.IsNetwork(err))

	health, _ := s.Store().Get(queries.Health())
	assert.Error(t, health.Err)
	list, _ := s.Store().Get(queries.JobList(api.ListJobsQuery{}))
	assert.True(t, list.HasData)
	assert.Equal(t, 1, fake.Calls("ListJobs"))
}
