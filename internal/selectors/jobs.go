package selectors

import (
	"sort"
	"strings"

	"github.com/five82/scrapedeck/internal/api"
	"github.com/five82/scrapedeck/internal/state"
)

// Counts partitions a job list by status.
type Counts map[api.JobStatus]int

// Total sums every bucket.
func (c Counts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

// Active counts jobs that can still change.
func (c Counts) Active() int {
	return c[api.StatusPending] + c[api.StatusInProgress]
}

// CountByStatus counts jobs per status in one pass. Unknown statuses get
// their own bucket so the total always equals len(jobs).
func CountByStatus(jobs []api.Job) Counts {
	counts := make(Counts, len(api.Statuses))
	for _, job := range jobs {
		counts[job.Status]++
	}
	return counts
}

// SortField names a job list column.
type SortField string

const (
	SortCreated SortField = "created"
	SortUpdated SortField = "updated"
	SortStatus  SortField = "status"
	SortURL     SortField = "url"
)

// SortFields lists the fields in cycling order.
var SortFields = []SortField{SortCreated, SortUpdated, SortStatus, SortURL}

// Filter narrows and orders a job list for display.
type Filter struct {
	Status api.JobStatus
	Search string
	SortBy SortField
	Order  api.SortOrder
}

// FilterJobs keeps jobs matching the status and a case-insensitive URL or
// id substring. The input is not modified.
func FilterJobs(jobs []api.Job, f Filter) []api.Job {
	needle := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]api.Job, 0, len(jobs))
	for _, job := range jobs {
		if f.Status != "" && job.Status != f.Status {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(job.URL), needle) &&
			!strings.Contains(strings.ToLower(job.ID), needle) {
			continue
		}
		out = append(out, job)
	}
	return out
}

// SortJobs returns a sorted copy. Ties keep their input order.
func SortJobs(jobs []api.Job, by SortField, order api.SortOrder) []api.Job {
	out := append([]api.Job(nil), jobs...)
	less := lessFunc(by)
	desc := order == api.SortDesc
	sort.SliceStable(out, func(i, j int) bool {
		if desc {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})
	return out
}

func lessFunc(by SortField) func(a, b api.Job) bool {
	switch by {
	case SortUpdated:
		return func(a, b api.Job) bool { return a.UpdatedAt.Before(b.UpdatedAt) }
	case SortStatus:
		return func(a, b api.Job) bool { return statusRank(a.Status) < statusRank(b.Status) }
	case SortURL:
		return func(a, b api.Job) bool { return strings.ToLower(a.URL) < strings.ToLower(b.URL) }
	default:
		return func(a, b api.Job) bool { return a.CreatedAt.Before(b.CreatedAt) }
	}
}

func statusRank(s api.JobStatus) int {
	for i, known := range api.Statuses {
		if s == known {
			return i
		}
	}
	return len(api.Statuses)
}

// View filters then sorts.
func View(jobs []api.Job, f Filter) []api.Job {
	return SortJobs(FilterJobs(jobs, f), f.SortBy, f.Order)
}

// JobsFromEntry returns the jobs of a cached list entry.
func JobsFromEntry(e state.Entry) []api.Job {
	list, ok := state.Data[api.JobList](e)
	if !ok {
		return nil
	}
	return list.Jobs
}
