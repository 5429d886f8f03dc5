// Package api talks to the scraping backend's HTTP API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// JobsAPI is the subset of the backend the dashboard uses. It is implemented
// by *Client and can be faked in tests.
type JobsAPI interface {
	ListJobs(ctx context.Context, query ListJobsQuery) (JobList, error)
	GetJob(ctx context.Context, id string) (Job, error)
	CreateJob(ctx context.Context, req CreateJobRequest) (Job, error)
	CancelJob(ctx context.Context, id string) (MessageResponse, error)
	RetryJob(ctx context.Context, id string) (Job, error)
	GetResult(ctx context.Context, id string, opts ResultOptions) (JobResult, error)
	Health(ctx context.Context) (Health, error)
}

// Ensure Client implements JobsAPI at compile time.
var _ JobsAPI = (*Client)(nil)

// Client talks to the scraping backend HTTP API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
	apiKey    string
	now       func() time.Time
}

const (
	defaultBaseURL   = "http://127.0.0.1:8000/api/v1"
	defaultUserAgent = "scrapedeck/0.1"
	defaultTimeout   = 10 * time.Second
	maxErrorBody     = 4 << 10
)

// Option customizes a Client.
type Option func(*Client)

// WithAPIKey sends key in the X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = strings.TrimSpace(key) }
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient builds a Client for the API rooted at baseURL. A bare host:port
// is accepted and treated as http.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL:   base,
		http:      &http.Client{Timeout: defaultTimeout},
		userAgent: defaultUserAgent,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the normalized API root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// ListJobs retrieves a page of jobs.
func (c *Client) ListJobs(ctx context.Context, query ListJobsQuery) (JobList, error) {
	values := url.Values{}
	if query.Status != "" {
		values.Set("status", string(query.Status))
	}
	if query.Limit > 0 {
		values.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.Offset > 0 {
		values.Set("offset", strconv.Itoa(query.Offset))
	}
	if sortBy := strings.TrimSpace(query.SortBy); sortBy != "" {
		values.Set("sortBy", sortBy)
	}
	if query.SortOrder != "" {
		values.Set("sortOrder", string(query.SortOrder))
	}
	var payload JobList
	if err := c.do(ctx, "list jobs", http.MethodGet, "jobs", values, nil, &payload); err != nil {
		return JobList{}, err
	}
	return payload, nil
}

// GetJob retrieves a single job.
func (c *Client) GetJob(ctx context.Context, id string) (Job, error) {
	if strings.TrimSpace(id) == "" {
		return Job{}, &ValidationError{Field: "id", Reason: "required"}
	}
	var payload Job
	if err := c.do(ctx, "get job", http.MethodGet, "jobs/"+url.PathEscape(id), nil, nil, &payload); err != nil {
		return Job{}, err
	}
	return payload, nil
}

// CreateJob submits a new scraping job.
func (c *Client) CreateJob(ctx context.Context, req CreateJobRequest) (Job, error) {
	var payload Job
	if err := c.do(ctx, "create job", http.MethodPost, "jobs", nil, req, &payload); err != nil {
		return Job{}, err
	}
	return payload, nil
}

// CancelJob cancels a job.
func (c *Client) CancelJob(ctx context.Context, id string) (MessageResponse, error) {
	if strings.TrimSpace(id) == "" {
		return MessageResponse{}, &ValidationError{Field: "id", Reason: "required"}
	}
	var payload MessageResponse
	if err := c.do(ctx, "cancel job", http.MethodDelete, "jobs/"+url.PathEscape(id), nil, nil, &payload); err != nil {
		return MessageResponse{}, err
	}
	return payload, nil
}

// RetryJob asks the backend to re-run a job; the response is the new job.
func (c *Client) RetryJob(ctx context.Context, id string) (Job, error) {
	if strings.TrimSpace(id) == "" {
		return Job{}, &ValidationError{Field: "id", Reason: "required"}
	}
	var payload Job
	if err := c.do(ctx, "retry job", http.MethodPost, "jobs/"+url.PathEscape(id)+"/retry", nil, nil, &payload); err != nil {
		return Job{}, err
	}
	return payload, nil
}

// GetResult retrieves the result of a completed job.
func (c *Client) GetResult(ctx context.Context, id string, opts ResultOptions) (JobResult, error) {
	if strings.TrimSpace(id) == "" {
		return JobResult{}, &ValidationError{Field: "id", Reason: "required"}
	}
	values := url.Values{}
	values.Set("includeHtml", strconv.FormatBool(opts.IncludeHTML))
	values.Set("includeScreenshot", strconv.FormatBool(opts.IncludeScreenshot))
	var payload JobResult
	if err := c.do(ctx, "get result", http.MethodGet, "results/"+url.PathEscape(id), values, nil, &payload); err != nil {
		return JobResult{}, err
	}
	return payload, nil
}

// Health retrieves backend health and stamps the observed response time.
func (c *Client) Health(ctx context.Context) (Health, error) {
	start := c.now()
	var payload healthPayload
	if err := c.do(ctx, "health", http.MethodGet, "health", nil, nil, &payload); err != nil {
		return Health{}, err
	}
	h := payload.toHealth()
	h.Timestamp = c.now()
	h.ResponseTime = h.Timestamp.Sub(start)
	return h, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, dest any) error {
	if c == nil {
		return fmt.Errorf("%s: client is nil", op)
	}
	// path arrives escaped; parsing keeps an id's %2F from becoming a separator.
	rel, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("%s: build path: %w", op, err)
	}
	if len(query) > 0 {
		rel.RawQuery = query.Encode()
	}
	reqURL := c.baseURL.ResolveReference(rel)

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", op, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// errorMessage pulls a human readable message out of an error body. FastAPI
// style backends answer with {"detail": "..."}.
func errorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var body struct {
		Detail  any    `json:"detail"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		switch {
		case body.Message != "":
			return body.Message
		case body.Error != "":
			return body.Error
		}
		if s, ok := body.Detail.(string); ok && s != "" {
			return s
		}
	}
	return strings.TrimSpace(string(raw))
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api url %q: %w", raw, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse api url %q: missing host", raw)
	}
	// Relative references resolve against the last path segment, so the
	// root must end in a slash.
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
