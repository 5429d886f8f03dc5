package query

import (
	"math"
	"time"

	"github.com/five82/scrapedeck/internal/api"
	"github.com/five82/scrapedeck/internal/state"
)

// Forever is a stale time under which data never goes stale on its own.
const Forever time.Duration = math.MaxInt64

const (
	// DefaultRetries is how many times a failed fetch is retried.
	DefaultRetries = 3
	// DefaultRetryBase is the first retry delay.
	DefaultRetryBase = time.Second
	// DefaultRetryCap bounds the retry delay.
	DefaultRetryCap = 30 * time.Second
)

// Policy controls when a query refreshes.
type Policy struct {
	// StaleTime is how long data counts as fresh after a successful fetch.
	StaleTime time.Duration
	// RefetchInterval polls on a fixed grid while observed. Zero disables it.
	RefetchInterval time.Duration
	// RefetchInBackground keeps polling while the dashboard is blurred.
	RefetchInBackground bool
	// RefetchOnFocus refetches stale data when the dashboard regains focus.
	RefetchOnFocus bool
	// RefetchOnReconnect refetches stale data when connectivity returns.
	RefetchOnReconnect bool
	// PollWhile, when set, skips poll ticks once it returns false for the
	// current entry. The grid keeps running so polling picks up again if the
	// entry changes back.
	PollWhile func(state.Entry) bool
	// Retry decides whether the failed attempt (zero based) is retried.
	Retry func(attempt int, err error) bool
	// RetryDelay is the wait before the retry following attempt.
	RetryDelay func(attempt int) time.Duration
}

// DefaultPolicy returns the policy used when a query does not say otherwise.
func DefaultPolicy() Policy {
	return Policy{
		RefetchOnFocus:     true,
		RefetchOnReconnect: true,
		Retry:              DefaultRetry,
		RetryDelay:         DefaultRetryDelay,
	}
}

func (p Policy) withDefaults() Policy {
	if p.Retry == nil {
		p.Retry = DefaultRetry
	}
	if p.RetryDelay == nil {
		p.RetryDelay = DefaultRetryDelay
	}
	if p.StaleTime < 0 {
		p.StaleTime = 0
	}
	return p
}

// DefaultRetry retries retryable errors up to DefaultRetries times.
func DefaultRetry(attempt int, err error) bool {
	return attempt < DefaultRetries && api.Retryable(err)
}

// RetryUpTo retries retryable errors up to n times.
func RetryUpTo(n int) func(int, error) bool {
	return func(attempt int, err error) bool {
		return attempt < n && api.Retryable(err)
	}
}

// NoRetry never retries.
func NoRetry(int, error) bool { return false }

// DefaultRetryDelay is Backoff with the default base and cap.
func DefaultRetryDelay(attempt int) time.Duration {
	return calculateBackoff(attempt, DefaultRetryBase, DefaultRetryCap)
}

// Backoff returns a capped exponential delay function: min(base*2^attempt, ceiling).
func Backoff(base, ceiling time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return calculateBackoff(attempt, base, ceiling)
	}
}

func calculateBackoff(attempt int, base, ceiling time.Duration) time.Duration {
	if attempt <= 0 {
		return min(base, ceiling)
	}
	// Past this shift the product overflows; the cap applies well before.
	if attempt >= 62 {
		return ceiling
	}
	delay := base << attempt
	if delay <= 0 || delay > ceiling || delay/base != 1<<attempt {
		return ceiling
	}
	return delay
}
