package state

import (
	"fmt"
	"time"
)

// FetchStatus tells whether a network request is outstanding for an entry.
type FetchStatus int

const (
	Idle FetchStatus = iota
	Fetching
)

func (s FetchStatus) String() string {
	if s == Fetching {
		return "fetching"
	}
	return "idle"
}

// Entry is the cached state of one query. Data is treated as immutable:
// writers replace it rather than mutating it in place.
type Entry struct {
	Key          Key
	Data         any
	HasData      bool
	Err          error
	FetchStatus  FetchStatus
	Stale        bool
	UpdatedAt    time.Time
	ErrorAt      time.Time
	FailureCount int
	Observers    int

	// InactiveSince is when the entry last dropped to zero observers. GC
	// measures age from here.
	InactiveSince time.Time
}

// IsStale reports whether the entry warrants a refetch under staleTime.
func (e Entry) IsStale(now time.Time, staleTime time.Duration) bool {
	if e.Stale || !e.HasData {
		return true
	}
	return now.Sub(e.UpdatedAt) >= staleTime
}

// Data returns the entry payload as T.
func Data[T any](e Entry) (T, bool) {
	var zero T
	if !e.HasData {
		return zero, false
	}
	v, ok := e.Data.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

func (e Entry) String() string {
	return fmt.Sprintf("%s status=%s stale=%t data=%t err=%v observers=%d",
		e.Key, e.FetchStatus, e.Stale, e.HasData, e.Err, e.Observers)
}
