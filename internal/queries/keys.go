package queries

import (
	"strconv"
	"strings"

	"github.com/five82/scrapedeck/internal/api"
	"github.com/five82/scrapedeck/internal/state"
)

const (
	kindJobs    = "jobs"
	kindResults = "results"
	kindHealth  = "health"

	statusParam = "status="
)

// Jobs covers every job list and job detail entry.
func Jobs() state.Key { return state.NewKey(kindJobs) }

// JobLists covers every job list entry.
func JobLists() state.Key { return state.NewKey(kindJobs, "list") }

// JobDetails covers every single-job entry.
func JobDetails() state.Key { return state.NewKey(kindJobs, "detail") }

// JobList addresses one page of GET /jobs. Every parameter is part of the
// key, so pages and filters are cached independently.
func JobList(q api.ListJobsQuery) state.Key {
	return JobLists().Append(
		statusParam+string(q.Status),
		"limit="+strconv.Itoa(q.Limit),
		"offset="+strconv.Itoa(q.Offset),
		"sort="+q.SortBy,
		"order="+string(q.SortOrder),
	)
}

// Job addresses GET /jobs/{id}.
func Job(id string) state.Key { return JobDetails().Append(id) }

// Results covers every result entry.
func Results() state.Key { return state.NewKey(kindResults) }

// Result addresses GET /results/{id} for one option set.
func Result(id string, opts api.ResultOptions) state.Key {
	return Results().Append(id,
		"html="+strconv.FormatBool(opts.IncludeHTML),
		"screenshot="+strconv.FormatBool(opts.IncludeScreenshot))
}

// Health addresses GET /health.
func Health() state.Key { return state.NewKey(kindHealth) }

// ListAccepts reports whether the list cached under key would show a job
// with the given status. Keys not built by JobList accept everything.
func ListAccepts(key state.Key, status api.JobStatus) bool {
	for _, part := range key {
		if v, ok := strings.CutPrefix(part, statusParam); ok {
			return v == "" || api.JobStatus(v) == status
		}
	}
	return true
}
