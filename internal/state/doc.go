// Package state holds the keyed query cache shared by the synchronizer, the
// mutation coordinator and the UI.
//
// # Overview
//
// Every piece of remote data the dashboard shows (job lists, individual jobs,
// results, backend health) lives in a Store entry addressed by a Key. A Key
// is an ordered tuple whose first element is the entity kind:
//
//	["jobs", "list", "status=failed", ...]
//	["jobs", "detail", "42"]
//	["results", "42", "html=false", "screenshot=false"]
//	["health"]
//
// Prefix matching on keys scopes invalidation and snapshots, so
// Invalidate(["jobs"]) marks every list and detail entry stale in one call.
//
// # Entries
//
// An Entry carries the last good data, the last error, whether a fetch is in
// flight, whether the entry was invalidated, timestamps, and how many
// subscriptions currently observe it. Errors never clear data: the UI keeps
// showing the previous payload next to the failure (stale-while-error).
//
// # Ownership
//
// The Store only offers read-modify-write through Set. Fetch bookkeeping is
// owned by package query and optimistic writes by package mutation; UI code
// reads entries and never writes them.
//
// # Garbage collection
//
// Entries nobody observes are evicted once they have been inactive for the
// GC window (ten minutes by default). Eviction is lazy: each store access
// sweeps first. Entries with a fetch in flight are never evicted.
//
// # Snapshots
//
// Snapshot captures the entries under a set of prefixes and Restore puts
// their data back. The mutation coordinator takes a snapshot before each
// optimistic write and restores it when the remote call fails.
package state
