package selectors

import (
	"github.com/five82/scrapedeck/internal/api"
	"github.com/five82/scrapedeck/internal/state"
)

// HealthTier folds a health response into a tier. Any required component
// being down makes a reachable backend degraded, whatever it reports for
// itself; an error or missing response means unhealthy.
func HealthTier(h *api.Health, err error) api.Tier {
	if err != nil || h == nil {
		return api.TierUnhealthy
	}
	for _, name := range api.RequiredComponents {
		if !h.Components[name] {
			return api.TierDegraded
		}
	}
	if h.Overall != api.TierHealthy {
		return api.TierDegraded
	}
	return api.TierHealthy
}

// CanCreateJobs reports whether the backend accepts new jobs.
func CanCreateJobs(h *api.Health, err error) bool {
	return HealthTier(h, err) == api.TierHealthy
}

// HealthFromEntry reads the cached health entry. A failed latest check wins
// over older data: the last good payload says nothing about now. Only the
// create gate and the header read health; cached job rows keep rendering.
func HealthFromEntry(e state.Entry) (*api.Health, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	h, ok := state.Data[api.Health](e)
	if !ok {
		return nil, nil
	}
	return &h, nil
}

// EntryTier is HealthTier over a cache entry.
func EntryTier(e state.Entry) api.Tier {
	return HealthTier(HealthFromEntry(e))
}
