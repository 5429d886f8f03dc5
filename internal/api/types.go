package api

import (
	"encoding/json"
	"strings"
	"time"
)

// JobStatus is the lifecycle state reported by the scraping backend.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusInProgress JobStatus = "in_progress"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusCancelled  JobStatus = "cancelled"
)

// Statuses lists every known status in display order.
var Statuses = []JobStatus{
	StatusPending,
	StatusInProgress,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

// Terminal reports whether the status can no longer change.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Job mirrors a single job payload.
type Job struct {
	ID           string            `json:"id"`
	URL          string            `json:"url"`
	Status       JobStatus         `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Metadata     map[string]string `json:"job_metadata,omitempty"`
}

// JobList mirrors GET /jobs.
type JobList struct {
	Jobs  []Job `json:"jobs"`
	Total int   `json:"total"`
}

// SortOrder is the direction used by list queries.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ListJobsQuery configures GET /jobs.
type ListJobsQuery struct {
	Status    JobStatus
	Limit     int
	Offset    int
	SortBy    string
	SortOrder SortOrder
}

// CreateJobRequest is the POST /jobs body.
type CreateJobRequest struct {
	URL        string            `json:"url"`
	Selectors  map[string]string `json:"selectors,omitempty"`
	Timeout    int               `json:"timeout,omitempty"`
	JavaScript bool              `json:"javascript,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Metadata   map[string]string `json:"job_metadata,omitempty"`
}

// MessageResponse is returned by DELETE /jobs/{id}.
type MessageResponse struct {
	Message string `json:"message"`
}

// ResultOptions selects optional heavy fields of a result.
type ResultOptions struct {
	IncludeHTML       bool
	IncludeScreenshot bool
}

// JobResult mirrors GET /results/{id}.
type JobResult struct {
	JobID            string          `json:"job_id"`
	Data             json.RawMessage `json:"data"`
	HTML             string          `json:"html,omitempty"`
	Screenshot       string          `json:"screenshot,omitempty"`
	ScrapedAt        time.Time       `json:"scraped_at"`
	ProcessingTimeMs int64           `json:"processing_time_ms"`
}

// Tier is the folded health classification.
type Tier string

const (
	TierHealthy   Tier = "healthy"
	TierDegraded  Tier = "degraded"
	TierUnhealthy Tier = "unhealthy"
)

// RequiredComponents must all be up for the backend to accept jobs.
var RequiredComponents = []string{"database", "redis"}

// Health is the client view of GET /health.
type Health struct {
	Overall       Tier
	Components    map[string]bool
	Version       string
	UptimeSeconds float64
	ResponseTime  time.Duration
	Timestamp     time.Time
}

// healthPayload is the wire shape of GET /health. Component fields arrive as
// either booleans or status words depending on backend version.
type healthPayload struct {
	Status   string          `json:"status"`
	Database json.RawMessage `json:"database"`
	Redis    json.RawMessage `json:"redis"`
	Version  string          `json:"version"`
	Uptime   float64         `json:"uptime"`
}

func (p healthPayload) toHealth() Health {
	overall := Tier(strings.ToLower(strings.TrimSpace(p.Status)))
	switch overall {
	case TierHealthy, TierDegraded, TierUnhealthy:
	case "ok", "up":
		overall = TierHealthy
	default:
		overall = TierDegraded
	}
	return Health{
		Overall: overall,
		Components: map[string]bool{
			"database": componentUp(p.Database),
			"redis":    componentUp(p.Redis),
		},
		Version:       p.Version,
		UptimeSeconds: p.Uptime,
	}
}

func componentUp(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "connected", "healthy", "ok", "up", "true":
		return true
	}
	return false
}
