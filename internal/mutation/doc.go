// Package mutation changes jobs on the backend and keeps the cache honest
// while it does.
//
// Creating a job inserts a pending placeholder with a temp- id at the head
// of each cached list that could show it, then swaps in the server's job on
// success or restores the lists from a snapshot on failure. Cancelling marks
// the job cancelled in every cached copy before the request goes out and is
// not reverted on failure, and the dashboard leaves it for the next poll to
// correct. The returned snapshot lets a caller that wants the old state undo it.
// Retry and clone write nothing up front. Every success invalidates only
// the scopes the mutation touched.
//
// Job creation and cloning pass through a health gate first: unless the
// cached health tier is healthy the call fails with *api.NotReadyError and
// nothing is sent.
package mutation
