package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/five82/scrapedeck/internal/api"
	"github.com/five82/scrapedeck/internal/clock"
	"github.com/five82/scrapedeck/internal/metrics"
	"github.com/five82/scrapedeck/internal/state"
)

// ErrUnknownQuery is returned when refetching a key nothing registered.
var ErrUnknownQuery = errors.New("query not registered")

// FetchFunc loads the data for one key.
type FetchFunc func(ctx context.Context) (any, error)

// Query binds a key to the function that loads it and its refresh policy.
type Query struct {
	Key    state.Key
	Fetch  FetchFunc
	Policy Policy
}

// Synchronizer keeps store entries fresh for their observers. It
// de-duplicates concurrent fetches per key, polls, retries with backoff and
// discards responses that were overtaken by newer ones.
type Synchronizer struct {
	ctx     context.Context
	cancel  context.CancelFunc
	store   *state.Store
	clock   clock.Clock
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	records map[string]*record
	focused bool
	online  bool
	closed  bool
}

// record is the synchronizer's bookkeeping for one key.
type record struct {
	key       state.Key
	fetch     FetchFunc
	policy    Policy
	observers int
	pollTimer clock.Timer
	pollGen   uint64 // identifies pollTimer; ticks from older timers are ignored
	inflight  *call

	// issued counts fetches started; floor is the newest generation whose
	// response was applied or superseded. Responses at or below floor are
	// dropped.
	issued uint64
	floor  uint64
}

// call is one logical fetch, spanning its retries.
type call struct {
	gen        uint64
	done       chan struct{}
	retryTimer clock.Timer
	err        error
}

// Option customizes a Synchronizer.
type Option func(*Synchronizer)

// WithClock sets the time source for polling and retry timers.
func WithClock(c clock.Clock) Option {
	return func(s *Synchronizer) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Synchronizer) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records fetch outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Synchronizer) { s.metrics = m }
}

// New builds a Synchronizer writing into store. Fetches run under ctx, not
// under the context of whoever triggered them, so a response still lands in
// the cache after its requester has gone away.
func New(ctx context.Context, store *state.Store, opts ...Option) *Synchronizer {
	ctx, cancel := context.WithCancel(ctx)
	s := &Synchronizer{
		ctx:     ctx,
		cancel:  cancel,
		store:   store,
		clock:   clock.System(),
		logger:  zap.NewNop(),
		records: make(map[string]*record),
		focused: true,
		online:  true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the backing cache.
func (s *Synchronizer) Store() *state.Store {
	return s.store
}

// Subscribe registers an observer for q.Key. The latest registration's fetch
// function and policy win. If the entry is missing or stale a fetch starts
// immediately; if one is already in flight the subscriber shares it.
func (s *Synchronizer) Subscribe(q Query) *Subscription {
	s.mu.Lock()
	r := s.recordLocked(q.Key)
	if q.Fetch != nil {
		r.fetch = q.Fetch
	}
	r.policy = q.Policy.withDefaults()
	r.observers++
	entry := s.store.Set(r.key, func(e state.Entry) state.Entry {
		e.Observers++
		return e
	})
	if r.policy.RefetchInterval > 0 && r.pollTimer == nil && !s.closed {
		s.schedulePollLocked(r)
	}
	var c *call
	started := false
	if entry.IsStale(s.clock.Now(), r.policy.StaleTime) {
		c, started = s.beginLocked(r)
	}
	s.mu.Unlock()

	if started {
		go s.attempt(r, c, 0)
	}
	return &Subscription{s: s, r: r}
}

// Fetch returns the entry for q.Key, loading it first unless it is fresh.
// It does not observe the key, so nothing polls it afterwards.
func (s *Synchronizer) Fetch(ctx context.Context, q Query) (state.Entry, error) {
	s.mu.Lock()
	r := s.recordLocked(q.Key)
	if q.Fetch != nil {
		r.fetch = q.Fetch
	}
	if r.observers == 0 {
		r.policy = q.Policy.withDefaults()
	}
	entry, ok := s.store.Get(r.key)
	if ok && r.inflight == nil && !entry.IsStale(s.clock.Now(), r.policy.StaleTime) {
		s.mu.Unlock()
		return entry, nil
	}
	c, started := s.beginLocked(r)
	s.mu.Unlock()

	if c == nil {
		return entry, ErrUnknownQuery
	}
	if started {
		go s.attempt(r, c, 0)
	}
	return s.await(ctx, r, c)
}

// Refetch reloads key now. Without force an in-flight fetch is shared; with
// force it is superseded and its response will be discarded.
func (s *Synchronizer) Refetch(ctx context.Context, key state.Key, force bool) (state.Entry, error) {
	s.mu.Lock()
	r, ok := s.records[key.String()]
	if !ok || r.fetch == nil {
		s.mu.Unlock()
		return state.Entry{Key: key}, fmt.Errorf("refetch %s: %w", key, ErrUnknownQuery)
	}
	var orphan *call
	if force {
		orphan = s.supersedeLocked(r)
	}
	c, started := s.beginLocked(r)
	s.mu.Unlock()

	finish(orphan, context.Canceled)
	if c == nil {
		return state.Entry{Key: key}, ErrUnknownQuery
	}
	if started {
		go s.attempt(r, c, 0)
	}
	return s.await(ctx, r, c)
}

// Invalidate marks every entry under prefix stale, refetches the ones being
// observed and waits for those refetches to settle. Fetch errors land in the
// entries; the returned error is only ever ctx's.
func (s *Synchronizer) Invalidate(ctx context.Context, prefix state.Key) error {
	keys := s.store.Invalidate(prefix)

	s.mu.Lock()
	var calls []*call
	var starts []func()
	var orphans []*call
	for _, key := range keys {
		r, ok := s.records[key.String()]
		if !ok || r.observers == 0 || r.fetch == nil {
			continue
		}
		// A fetch issued before the invalidation may carry data from before
		// the change that caused it.
		if o := s.supersedeLocked(r); o != nil {
			orphans = append(orphans, o)
		}
		c, started := s.beginLocked(r)
		if c == nil {
			continue
		}
		calls = append(calls, c)
		if started {
			r := r
			starts = append(starts, func() { s.attempt(r, c, 0) })
		}
	}
	s.mu.Unlock()

	for _, o := range orphans {
		finish(o, context.Canceled)
	}
	for _, start := range starts {
		go start()
	}

	s.logger.Debug("invalidated queries",
		zap.Stringer("prefix", prefix),
		zap.Int("matched", len(keys)),
		zap.Int("refetching", len(calls)))

	var g errgroup.Group
	for _, c := range calls {
		c := c
		g.Go(func() error {
			select {
			case <-c.done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
	return g.Wait()
}

// Cancel supersedes in-flight fetches under prefix. Their requests are not
// aborted, but their responses will not be written. It returns how many
// fetches were superseded.
func (s *Synchronizer) Cancel(prefix state.Key) int {
	s.mu.Lock()
	var orphans []*call
	n := 0
	for _, r := range s.records {
		if !r.key.HasPrefix(prefix) || r.inflight == nil {
			continue
		}
		n++
		if o := s.supersedeLocked(r); o != nil {
			orphans = append(orphans, o)
		}
	}
	s.mu.Unlock()

	for _, o := range orphans {
		finish(o, context.Canceled)
	}
	return n
}

// SetData seeds key with authoritative data, as if a fetch had just
// succeeded.
func (s *Synchronizer) SetData(key state.Key, data any) state.Entry {
	now := s.clock.Now()
	return s.store.Set(key, func(e state.Entry) state.Entry {
		e.Data = data
		e.HasData = true
		e.Err = nil
		e.Stale = false
		e.UpdatedAt = now
		e.FailureCount = 0
		return e
	})
}

// Focus resumes foreground polling and refetches stale observed queries
// that opted into refetch-on-focus.
func (s *Synchronizer) Focus() {
	s.mu.Lock()
	wasFocused := s.focused
	s.focused = true
	s.mu.Unlock()
	if !wasFocused {
		s.refetchStale(func(p Policy) bool { return p.RefetchOnFocus })
	}
}

// Blur pauses polling for queries that do not poll in the background.
func (s *Synchronizer) Blur() {
	s.mu.Lock()
	s.focused = false
	s.mu.Unlock()
}

// Close stops every timer and cancels the fetch context.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cancel()
	type pending struct {
		r *record
		c *call
	}
	var stopped []pending
	for _, r := range s.records {
		s.stopPollLocked(r)
		if c := r.inflight; c != nil && c.retryTimer != nil && c.retryTimer.Stop() {
			stopped = append(stopped, pending{r: r, c: c})
		}
	}
	s.mu.Unlock()

	for _, p := range stopped {
		s.settle(p.r, p.c, nil, context.Canceled)
	}
}

func (s *Synchronizer) unsubscribe(r *record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.observers > 0 {
		r.observers--
	}
	s.store.Set(r.key, func(e state.Entry) state.Entry {
		e.Observers--
		return e
	})
	if r.observers == 0 {
		s.stopPollLocked(r)
	}
}

func (s *Synchronizer) recordLocked(key state.Key) *record {
	id := key.String()
	if r, ok := s.records[id]; ok {
		return r
	}
	s.pruneLocked()
	r := &record{key: state.NewKey(key...)}
	s.records[id] = r
	return r
}

// pruneLocked forgets records whose entries were garbage collected.
func (s *Synchronizer) pruneLocked() {
	for id, r := range s.records {
		if r.observers > 0 || r.inflight != nil || r.pollTimer != nil {
			continue
		}
		if _, ok := s.store.Get(r.key); !ok {
			delete(s.records, id)
		}
	}
}

// beginLocked starts a new fetch for r unless one is already running, in
// which case that one is returned with started=false.
func (s *Synchronizer) beginLocked(r *record) (*call, bool) {
	if r.inflight != nil {
		return r.inflight, false
	}
	if s.closed || r.fetch == nil {
		return nil, false
	}
	r.issued++
	c := &call{gen: r.issued, done: make(chan struct{})}
	r.inflight = c
	s.store.Set(r.key, func(e state.Entry) state.Entry {
		e.FetchStatus = state.Fetching
		return e
	})
	return c, true
}

// supersedeLocked detaches r's in-flight fetch so its response is dropped.
// When the fetch was parked between retries it will never settle on its
// own, so it is returned for the caller to finish outside the lock.
func (s *Synchronizer) supersedeLocked(r *record) *call {
	c := r.inflight
	if c == nil {
		return nil
	}
	r.floor = r.issued
	r.inflight = nil
	s.store.Set(r.key, func(e state.Entry) state.Entry {
		e.FetchStatus = state.Idle
		return e
	})
	if c.retryTimer != nil && c.retryTimer.Stop() {
		return c
	}
	return nil
}

func finish(c *call, err error) {
	if c == nil {
		return
	}
	c.err = err
	close(c.done)
}

func (s *Synchronizer) attempt(r *record, c *call, n int) {
	s.mu.Lock()
	fn, policy := r.fetch, r.policy
	s.mu.Unlock()

	start := s.clock.Now()
	data, err := fn(s.ctx)
	s.metrics.ObserveAttempt(r.key.Kind(), s.clock.Now().Sub(start))

	if err != nil {
		s.mu.Lock()
		if r.inflight == c && !s.closed && policy.Retry(n, err) {
			delay := policy.RetryDelay(n)
			s.store.Set(r.key, func(e state.Entry) state.Entry {
				e.FailureCount++
				return e
			})
			c.retryTimer = s.clock.AfterFunc(delay, func() { s.attempt(r, c, n+1) })
			s.mu.Unlock()

			s.metrics.ObserveRetry(r.key.Kind())
			s.logger.Debug("fetch failed, retrying",
				zap.Stringer("key", r.key),
				zap.Int("attempt", n),
				zap.Duration("delay", delay),
				zap.Error(err))
			return
		}
		s.mu.Unlock()
	}
	s.settle(r, c, data, err)
}

func (s *Synchronizer) settle(r *record, c *call, data any, err error) {
	s.mu.Lock()
	now := s.clock.Now()
	apply := c.gen > r.floor
	current := r.inflight == c
	if apply {
		r.floor = c.gen
	}
	if current {
		r.inflight = nil
	}
	s.store.Set(r.key, func(e state.Entry) state.Entry {
		if current {
			e.FetchStatus = state.Idle
		}
		if !apply {
			return e
		}
		if err != nil {
			e.Err = err
			e.ErrorAt = now
			e.FailureCount++
			return e
		}
		e.Data = data
		e.HasData = true
		e.Err = nil
		e.Stale = false
		e.UpdatedAt = now
		e.FailureCount = 0
		return e
	})
	reconnected := false
	if apply {
		reconnected = s.noteConnectivityLocked(err)
	}
	s.mu.Unlock()

	c.err = err
	close(c.done)

	kind := r.key.Kind()
	switch {
	case !apply:
		s.metrics.ObserveFetch(kind, metrics.OutcomeDiscarded)
		s.logger.Debug("discarded stale response",
			zap.Stringer("key", r.key),
			zap.Uint64("generation", c.gen))
	case err != nil:
		s.metrics.ObserveFetch(kind, metrics.OutcomeError)
		s.logger.Warn("fetch failed",
			zap.Stringer("key", r.key),
			zap.Int("status", api.StatusCode(err)),
			zap.Error(err))
	default:
		s.metrics.ObserveFetch(kind, metrics.OutcomeSuccess)
	}

	if reconnected {
		s.logger.Info("backend reachable again, refetching stale queries")
		s.refetchStale(func(p Policy) bool { return p.RefetchOnReconnect })
	}
}

// noteConnectivityLocked tracks network failures and reports the transition
// back to reachable.
func (s *Synchronizer) noteConnectivityLocked(err error) bool {
	if err != nil {
		if api.IsNetwork(err) {
			s.online = false
		}
		return false
	}
	if s.online {
		return false
	}
	s.online = true
	return true
}

func (s *Synchronizer) refetchStale(want func(Policy) bool) {
	s.mu.Lock()
	now := s.clock.Now()
	type start struct {
		r *record
		c *call
	}
	var starts []start
	for _, r := range s.records {
		if r.observers == 0 || !want(r.policy) {
			continue
		}
		e, ok := s.store.Get(r.key)
		if ok && !e.IsStale(now, r.policy.StaleTime) {
			continue
		}
		if c, started := s.beginLocked(r); started {
			starts = append(starts, start{r: r, c: c})
		}
	}
	s.mu.Unlock()

	for _, st := range starts {
		go s.attempt(st.r, st.c, 0)
	}
}

func (s *Synchronizer) schedulePollLocked(r *record) {
	r.pollGen++
	gen := r.pollGen
	r.pollTimer = s.clock.AfterFunc(r.policy.RefetchInterval, func() { s.tick(r, gen) })
}

// stopPollLocked stops the poll timer. A tick that already fired but has not
// taken the lock yet sees the bumped generation and does nothing.
func (s *Synchronizer) stopPollLocked(r *record) {
	if r.pollTimer == nil {
		return
	}
	r.pollTimer.Stop()
	r.pollTimer = nil
	r.pollGen++
}

// tick fires on the poll grid. The next tick is scheduled before fetching
// so retries never shift the grid; a tick landing while a fetch is still in
// flight joins it instead of issuing another request.
func (s *Synchronizer) tick(r *record, gen uint64) {
	s.mu.Lock()
	if gen != r.pollGen {
		s.mu.Unlock()
		return
	}
	if s.closed || r.observers == 0 || r.policy.RefetchInterval <= 0 {
		r.pollTimer = nil
		s.mu.Unlock()
		return
	}
	s.schedulePollLocked(r)
	var c *call
	started := false
	if (s.focused || r.policy.RefetchInBackground) && s.wantsPollLocked(r) {
		c, started = s.beginLocked(r)
	}
	s.mu.Unlock()

	if started {
		s.attempt(r, c, 0)
	}
}

func (s *Synchronizer) wantsPollLocked(r *record) bool {
	if r.policy.PollWhile == nil {
		return true
	}
	e, _ := s.store.Get(r.key)
	return r.policy.PollWhile(e)
}

func (s *Synchronizer) await(ctx context.Context, r *record, c *call) (state.Entry, error) {
	select {
	case <-c.done:
	case <-ctx.Done():
		e, _ := s.store.Get(r.key)
		return e, ctx.Err()
	}
	e, ok := s.store.Get(r.key)
	if !ok {
		e = state.Entry{Key: r.key}
	}
	return e, c.err
}

// Subscription is one observer's handle on a key.
type Subscription struct {
	s    *Synchronizer
	r    *record
	once sync.Once
}

// Key returns the observed key.
func (sub *Subscription) Key() state.Key {
	return sub.r.key
}

// Entry returns the current cache entry.
func (sub *Subscription) Entry() state.Entry {
	e, ok := sub.s.store.Get(sub.r.key)
	if !ok {
		return state.Entry{Key: sub.r.key}
	}
	return e
}

// Wait blocks until the in-flight fetch, if any, settles and returns the
// resulting entry with the entry's error.
func (sub *Subscription) Wait(ctx context.Context) (state.Entry, error) {
	sub.s.mu.Lock()
	c := sub.r.inflight
	sub.s.mu.Unlock()
	if c != nil {
		select {
		case <-c.done:
		case <-ctx.Done():
			return sub.Entry(), ctx.Err()
		}
	}
	e := sub.Entry()
	return e, e.Err
}

// Unsubscribe detaches the observer. The last one out stops polling; a
// request already sent still lands in the cache.
func (sub *Subscription) Unsubscribe() {
	sub.once.Do(func() { sub.s.unsubscribe(sub.r) })
}

// Since reports how long ago the entry was last updated.
func (sub *Subscription) Since() time.Duration {
	e := sub.Entry()
	if e.UpdatedAt.IsZero() {
		return 0
	}
	return sub.s.clock.Now().Sub(e.UpdatedAt)
}
