// Package query keeps cache entries in sync with the backend.
//
// # Overview
//
// A Query pairs a state.Key with a FetchFunc and a Policy. Consumers call
// Subscribe to observe a key; the Synchronizer fetches when the entry is
// missing or stale, polls on the policy's interval while anyone observes the
// key, and retries failures with capped exponential backoff.
//
//	sub := sync.Subscribe(queries.JobList(cfg, client, params))
//	defer sub.Unsubscribe()
//	entry := sub.Entry()
//
// # De-duplication
//
// Each key has at most one logical fetch (a call) at a time. A call spans
// its retries, so subscriptions, poll ticks and refetches arriving while it
// runs attach to it instead of issuing another request.
//
// # Ordering
//
// Calls carry a per-key generation number. A response is written only when
// its generation is newer than the last one applied or superseded. Forced
// refetches, Invalidate and Cancel supersede the running call, so a slow
// older response can never overwrite newer data or an optimistic write.
//
// # Polling
//
// Poll timers run on a fixed grid from the moment the first observer
// attaches. The next tick is scheduled before the fetch starts, so retry
// delays never shift the grid. The last Unsubscribe stops the timer; requests
// already sent still land in the cache.
//
// # Focus and connectivity
//
// Blur pauses polling for queries without RefetchInBackground. Focus and the
// first success after a network error refetch stale observed queries that
// opted in with RefetchOnFocus or RefetchOnReconnect.
package query
