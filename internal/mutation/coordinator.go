package mutation

import (
	"context"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/five82/scrapedeck/internal/api"
	"github.com/five82/scrapedeck/internal/clock"
	"github.com/five82/scrapedeck/internal/metrics"
	"github.com/five82/scrapedeck/internal/queries"
	"github.com/five82/scrapedeck/internal/query"
	"github.com/five82/scrapedeck/internal/selectors"
	"github.com/five82/scrapedeck/internal/state"
)

// TempIDPrefix marks jobs that exist only in the cache.
const TempIDPrefix = "temp-"

// Coordinator runs job mutations against the API and keeps the cache in
// step: optimistic writes before the request, rollback or reconciliation
// after it.
type Coordinator struct {
	sync    *query.Synchronizer
	store   *state.Store
	api     api.JobsAPI
	clock   clock.Clock
	logger  *zap.Logger
	metrics *metrics.Metrics
	newID   func() string
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records mutation outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithClock sets the time stamped on optimistic entries.
func WithClock(cl clock.Clock) Option {
	return func(c *Coordinator) {
		if cl != nil {
			c.clock = cl
		}
	}
}

// WithIDGenerator replaces the temporary id source.
func WithIDGenerator(fn func() string) Option {
	return func(c *Coordinator) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// New builds a Coordinator writing through sync's store.
func New(sync *query.Synchronizer, client api.JobsAPI, opts ...Option) *Coordinator {
	c := &Coordinator{
		sync:   sync,
		store:  sync.Store(),
		api:    client,
		clock:  clock.System(),
		logger: zap.NewNop(),
		newID:  func() string { return TempIDPrefix + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Begin captures the entries a mutation may touch. Pass the result to
// Rollback to undo the optimistic write.
func (c *Coordinator) Begin(prefixes ...state.Key) state.Snapshot {
	return c.store.Snapshot(prefixes...)
}

// Rollback restores the cache to snap.
func (c *Coordinator) Rollback(snap state.Snapshot) {
	c.store.Restore(snap)
}

// CanCreate reports the health tier and whether it admits new jobs. Health
// that was never fetched counts as unhealthy.
func (c *Coordinator) CanCreate() (api.Tier, bool) {
	e, _ := c.store.Get(queries.Health())
	tier := selectors.EntryTier(e)
	return tier, tier == api.TierHealthy
}

// CreateJob submits a new job. A pending placeholder with a temporary id is
// shown at the head of every matching cached list until the server answers.
// On failure the lists are restored exactly as they were.
func (c *Coordinator) CreateJob(ctx context.Context, req api.CreateJobRequest) (api.Job, error) {
	req.URL = strings.TrimSpace(req.URL)
	if err := ValidateURL(req.URL); err != nil {
		c.observe("create", err)
		return api.Job{}, err
	}
	if tier, ok := c.CanCreate(); !ok {
		err := &api.NotReadyError{Tier: tier}
		c.observe("create", err)
		return api.Job{}, err
	}

	// A list response already on the wire predates the new job.
	c.sync.Cancel(queries.JobLists())
	snap := c.Begin(queries.JobLists())

	now := c.clock.Now()
	temp := api.Job{
		ID:        c.newID(),
		URL:       req.URL,
		Status:    api.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  req.Metadata,
	}
	c.updateLists(func(key state.Key, list api.JobList) (api.JobList, bool) {
		if !queries.ListAccepts(key, temp.Status) {
			return list, false
		}
		return prepend(list, temp), true
	})
	c.logger.Debug("optimistic job inserted", zap.String("temp_id", temp.ID), zap.String("url", temp.URL))

	job, err := c.api.CreateJob(ctx, req)
	c.observe("create", err)
	if err != nil {
		c.Rollback(snap)
		c.logger.Warn("create job failed, rolled back", zap.String("url", req.URL), zap.Error(err))
		return api.Job{}, err
	}

	c.updateLists(func(_ state.Key, list api.JobList) (api.JobList, bool) {
		return replace(list, temp.ID, job)
	})
	c.sync.SetData(queries.Job(job.ID), job)
	c.logger.Info("job created", zap.String("job_id", job.ID), zap.String("url", job.URL))
	c.reconcile(ctx, queries.JobLists())
	return job, nil
}

// CancelJob marks id cancelled everywhere it is cached, then asks the server
// to cancel it. A failed request is returned without reverting the cache;
// the next poll brings back whatever the server says. Callers that want the
// old state back can pass the returned snapshot to Rollback.
func (c *Coordinator) CancelJob(ctx context.Context, id string) (state.Snapshot, error) {
	jobKey := queries.Job(id)
	c.sync.Cancel(jobKey)
	c.sync.Cancel(queries.JobLists())
	snap := c.Begin(jobKey, queries.JobLists())

	now := c.clock.Now()
	cancel := func(job api.Job) api.Job {
		job.Status = api.StatusCancelled
		job.UpdatedAt = now
		return job
	}
	if _, ok := c.store.Get(jobKey); ok {
		c.store.Set(jobKey, func(e state.Entry) state.Entry {
			if job, ok := state.Data[api.Job](e); ok {
				e.Data = cancel(job)
			}
			return e
		})
	}
	c.updateLists(func(_ state.Key, list api.JobList) (api.JobList, bool) {
		return mapJob(list, id, cancel)
	})

	_, err := c.cancelWithRetry(ctx, id)
	c.observe("cancel", err)
	if err != nil {
		c.logger.Warn("cancel job failed", zap.String("job_id", id), zap.Error(err))
		return snap, err
	}
	c.logger.Info("job cancelled", zap.String("job_id", id))
	c.reconcile(ctx, jobKey)
	c.reconcile(ctx, queries.JobLists())
	return snap, nil
}

// cancelWithRetry sends the DELETE, repeating it once on a retryable error.
// Cancelling twice is harmless.
func (c *Coordinator) cancelWithRetry(ctx context.Context, id string) (api.MessageResponse, error) {
	resp, err := c.api.CancelJob(ctx, id)
	if err == nil || !api.Retryable(err) || ctx.Err() != nil {
		return resp, err
	}
	c.logger.Debug("retrying cancel", zap.String("job_id", id), zap.Error(err))
	return c.api.CancelJob(ctx, id)
}

// RetryJob asks the server to rerun id. The original job is left alone; the
// new job is seeded into the cache and the lists are refreshed to show it.
func (c *Coordinator) RetryJob(ctx context.Context, id string) (api.Job, error) {
	job, err := c.api.RetryJob(ctx, id)
	c.observe("retry", err)
	if err != nil {
		c.logger.Warn("retry job failed", zap.String("job_id", id), zap.Error(err))
		return api.Job{}, err
	}
	c.settleNewJob(ctx, job)
	c.logger.Info("job retried", zap.String("job_id", id), zap.String("new_job_id", job.ID))
	return job, nil
}

// CloneJob submits a new job with the same URL and metadata as id. Like any
// creation it has to pass the health gate.
func (c *Coordinator) CloneJob(ctx context.Context, id string) (api.Job, error) {
	if tier, ok := c.CanCreate(); !ok {
		err := &api.NotReadyError{Tier: tier}
		c.observe("clone", err)
		return api.Job{}, err
	}
	src, err := c.source(ctx, id)
	if err != nil {
		c.observe("clone", err)
		return api.Job{}, err
	}
	job, err := c.api.CreateJob(ctx, api.CreateJobRequest{URL: src.URL, Metadata: src.Metadata})
	c.observe("clone", err)
	if err != nil {
		c.logger.Warn("clone job failed", zap.String("job_id", id), zap.Error(err))
		return api.Job{}, err
	}
	c.settleNewJob(ctx, job)
	c.logger.Info("job cloned", zap.String("job_id", id), zap.String("new_job_id", job.ID))
	return job, nil
}

// source finds the job to clone, preferring the cache.
func (c *Coordinator) source(ctx context.Context, id string) (api.Job, error) {
	if e, ok := c.store.Get(queries.Job(id)); ok {
		if job, ok := state.Data[api.Job](e); ok {
			return job, nil
		}
	}
	for _, e := range c.store.Entries(queries.JobLists()) {
		for _, job := range selectors.JobsFromEntry(e) {
			if job.ID == id {
				return job, nil
			}
		}
	}
	return c.api.GetJob(ctx, id)
}

func (c *Coordinator) settleNewJob(ctx context.Context, job api.Job) {
	c.sync.SetData(queries.Job(job.ID), job)
	c.reconcile(ctx, queries.JobLists())
}

// reconcile invalidates scope and waits for observed entries to refetch.
// Refetch failures are already recorded in their entries.
func (c *Coordinator) reconcile(ctx context.Context, scope state.Key) {
	if err := c.sync.Invalidate(ctx, scope); err != nil {
		c.logger.Debug("invalidate interrupted", zap.Stringer("scope", scope), zap.Error(err))
	}
}

// updateLists rewrites every cached job list that fn reports as changed.
// Lists that were never loaded are left alone.
func (c *Coordinator) updateLists(fn func(state.Key, api.JobList) (api.JobList, bool)) {
	for _, e := range c.store.Entries(queries.JobLists()) {
		if !e.HasData {
			continue
		}
		c.store.Set(e.Key, func(cur state.Entry) state.Entry {
			list, ok := state.Data[api.JobList](cur)
			if !ok {
				return cur
			}
			if next, changed := fn(cur.Key, list); changed {
				cur.Data = next
			}
			return cur
		})
	}
}

func (c *Coordinator) observe(op string, err error) {
	c.metrics.ObserveMutation(op, err)
}

// ValidateURL accepts absolute http and https URLs with a host.
func ValidateURL(raw string) error {
	if raw == "" {
		return &api.ValidationError{Field: "url", Reason: "required"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return &api.ValidationError{Field: "url", Reason: "malformed"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &api.ValidationError{Field: "url", Reason: "scheme must be http or https"}
	}
	if u.Host == "" {
		return &api.ValidationError{Field: "url", Reason: "missing host"}
	}
	return nil
}

// IsTemporary reports whether id was assigned locally.
func IsTemporary(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

func prepend(list api.JobList, job api.Job) api.JobList {
	jobs := make([]api.Job, 0, len(list.Jobs)+1)
	jobs = append(jobs, job)
	jobs = append(jobs, list.Jobs...)
	return api.JobList{Jobs: jobs, Total: list.Total + 1}
}

// replace swaps the job with id for job, dropping it instead when job is
// already present under its real id.
func replace(list api.JobList, id string, job api.Job) (api.JobList, bool) {
	at, dup := -1, false
	for i, j := range list.Jobs {
		switch j.ID {
		case id:
			at = i
		case job.ID:
			dup = true
		}
	}
	if at < 0 {
		return list, false
	}
	jobs := make([]api.Job, 0, len(list.Jobs))
	for i, j := range list.Jobs {
		switch {
		case i == at && dup:
			continue
		case i == at:
			jobs = append(jobs, job)
		default:
			jobs = append(jobs, j)
		}
	}
	total := list.Total
	if dup {
		total--
	}
	return api.JobList{Jobs: jobs, Total: total}, true
}

func mapJob(list api.JobList, id string, fn func(api.Job) api.Job) (api.JobList, bool) {
	for i, j := range list.Jobs {
		if j.ID != id {
			continue
		}
		jobs := append([]api.Job(nil), list.Jobs...)
		jobs[i] = fn(j)
		return api.JobList{Jobs: jobs, Total: list.Total}, true
	}
	return list, false
}
