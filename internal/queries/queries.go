package queries

import (
	"context"
	"time"

	"github.com/five82/scrapedeck/internal/api"
	"github.com/five82/scrapedeck/internal/query"
	"github.com/five82/scrapedeck/internal/state"
)

// Intervals tunes the catalogue's policies.
type Intervals struct {
	Health    time.Duration
	Jobs      time.Duration
	Job       time.Duration
	StaleTime time.Duration
	Retries   int
	RetryBase time.Duration
	RetryMax  time.Duration
}

// DefaultIntervals matches the backend's expected load: health every 30s
// even in the background, lists every 5s, a running job every 2s.
func DefaultIntervals() Intervals {
	return Intervals{
		Health:    30 * time.Second,
		Jobs:      5 * time.Second,
		Job:       2 * time.Second,
		StaleTime: 0,
		Retries:   query.DefaultRetries,
		RetryBase: query.DefaultRetryBase,
		RetryMax:  query.DefaultRetryCap,
	}
}

// Catalog builds the dashboard's queries against one API.
type Catalog struct {
	api       api.JobsAPI
	intervals Intervals
}

// New returns a Catalog. Zero intervals fall back to the defaults.
func New(client api.JobsAPI, iv Intervals) *Catalog {
	def := DefaultIntervals()
	if iv.Health <= 0 {
		iv.Health = def.Health
	}
	if iv.Jobs <= 0 {
		iv.Jobs = def.Jobs
	}
	if iv.Job <= 0 {
		iv.Job = def.Job
	}
	if iv.Retries < 0 {
		iv.Retries = 0
	}
	if iv.RetryBase <= 0 {
		iv.RetryBase = def.RetryBase
	}
	if iv.RetryMax <= 0 {
		iv.RetryMax = def.RetryMax
	}
	return &Catalog{api: client, intervals: iv}
}

// API returns the client the catalogue fetches through.
func (c *Catalog) API() api.JobsAPI {
	return c.api
}

func (c *Catalog) base() query.Policy {
	p := query.DefaultPolicy()
	p.StaleTime = c.intervals.StaleTime
	p.Retry = query.RetryUpTo(c.intervals.Retries)
	p.RetryDelay = query.Backoff(c.intervals.RetryBase, c.intervals.RetryMax)
	return p
}

// Health polls backend health, in the background too, since it gates job
// creation.
func (c *Catalog) Health() query.Query {
	p := c.base()
	p.RefetchInterval = c.intervals.Health
	p.RefetchInBackground = true
	return query.Query{
		Key: Health(),
		Fetch: func(ctx context.Context) (any, error) {
			return c.api.Health(ctx)
		},
		Policy: p,
	}
}

// JobList polls one page of jobs while the dashboard has focus.
func (c *Catalog) JobList(params api.ListJobsQuery) query.Query {
	p := c.base()
	p.RefetchInterval = c.intervals.Jobs
	return query.Query{
		Key: JobList(params),
		Fetch: func(ctx context.Context) (any, error) {
			return c.api.ListJobs(ctx, params)
		},
		Policy: p,
	}
}

// Job polls a single job until it reaches a terminal status.
func (c *Catalog) Job(id string) query.Query {
	p := c.base()
	p.RefetchInterval = c.intervals.Job
	p.PollWhile = func(e state.Entry) bool {
		job, ok := state.Data[api.Job](e)
		return !ok || !job.Status.Terminal()
	}
	return query.Query{
		Key: Job(id),
		Fetch: func(ctx context.Context) (any, error) {
			return c.api.GetJob(ctx, id)
		},
		Policy: p,
	}
}

// Result never refetches: a result does not change once produced.
func (c *Catalog) Result(id string, opts api.ResultOptions) query.Query {
	p := c.base()
	p.StaleTime = query.Forever
	p.RefetchOnFocus = false
	p.RefetchOnReconnect = false
	return query.Query{
		Key: Result(id, opts),
		Fetch: func(ctx context.Context) (any, error) {
			return c.api.GetResult(ctx, id, opts)
		},
		Policy: p,
	}
}
