package state

import (
	"sort"
	"sync"
	"time"

	"github.com/five82/scrapedeck/internal/clock"
)

// DefaultGCWindow is how long an unobserved entry survives.
const DefaultGCWindow = 10 * time.Minute

// Store is the keyed cache of query results. All access goes through its
// methods; it is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	entries  map[string]Entry
	clock    clock.Clock
	gcWindow time.Duration
	onEvict  func(Key)
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithClock sets the time source used for timestamps and GC.
func WithClock(c clock.Clock) StoreOption {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithGCWindow overrides DefaultGCWindow. Non-positive values are ignored.
func WithGCWindow(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.gcWindow = d
		}
	}
}

// WithEvictHook registers fn to be called for every GC eviction. fn runs
// with the store locked and must not call back into the store.
func WithEvictHook(fn func(Key)) StoreOption {
	return func(s *Store) { s.onEvict = fn }
}

// NewStore builds an empty Store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		entries:  make(map[string]Entry),
		clock:    clock.System(),
		gcWindow: DefaultGCWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store's notion of the current time.
func (s *Store) Now() time.Time {
	return s.clock.Now()
}

// Get returns the entry for key.
func (s *Store) Get(key Key) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	e, ok := s.entries[key.String()]
	return e, ok
}

// Set applies update to the entry for key as a single read-modify-write and
// returns the stored result. A missing entry is passed in as a zero Entry
// carrying only its Key.
func (s *Store) Set(key Key, update func(Entry) Entry) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	id := key.String()
	cur, ok := s.entries[id]
	if !ok {
		cur = Entry{Key: NewKey(key...), InactiveSince: s.clock.Now()}
	}
	prevObservers := cur.Observers

	next := update(cur)
	next.Key = cur.Key
	if next.Observers < 0 {
		next.Observers = 0
	}
	if next.Observers == 0 && prevObservers > 0 {
		next.InactiveSince = s.clock.Now()
	}
	s.entries[id] = next
	return next
}

// Invalidate marks every entry under prefix stale and returns their keys.
func (s *Store) Invalidate(prefix Key) []Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	var keys []Key
	for id, e := range s.entries {
		if !e.Key.HasPrefix(prefix) {
			continue
		}
		e.Stale = true
		s.entries[id] = e
		keys = append(keys, e.Key)
	}
	sortKeys(keys)
	return keys
}

// Remove evicts the entry for key.
func (s *Store) Remove(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key.String())
}

// Entries returns every entry under prefix ordered by key.
func (s *Store) Entries(prefix Key) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.Key.HasPrefix(prefix) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}

// Len reports the number of live entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	return len(s.entries)
}

// sweepLocked evicts unobserved entries idle longer than the GC window.
// Entries with a fetch in flight are kept so the response has a home.
func (s *Store) sweepLocked() {
	now := s.clock.Now()
	for id, e := range s.entries {
		if e.Observers > 0 || e.FetchStatus == Fetching {
			continue
		}
		if now.Sub(e.InactiveSince) <= s.gcWindow {
			continue
		}
		delete(s.entries, id)
		if s.onEvict != nil {
			s.onEvict(e.Key)
		}
	}
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
}
