package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBaseURL_DefaultsAndNormalizes(t *testing.T) {
	u, err := parseBaseURL("")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8000/api/v1/", u.String())

	u, err = parseBaseURL("example.com:1234/api?x=1#frag")
	require.NoError(t, err)
	assert.Equal(t, "http://example.com:1234/api/", u.String())

	_, err = parseBaseURL("http://")
	require.Error(t, err)
}

func newTestServer(t *testing.T, r chi.Router) *Client {
	t.Helper()
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL+"/api/v1", WithAPIKey("secret"))
	require.NoError(t, err)
	return c
}

func TestClient_JobEndpoints(t *testing.T) {
	t.Parallel()

	var gotListQuery url.Values
	var gotCreate CreateJobRequest
	var gotKey string
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/jobs", func(w http.ResponseWriter, r *http.Request) {
			gotListQuery = r.URL.Query()
			gotKey = r.Header.Get("X-API-Key")
			_ = json.NewEncoder(w).Encode(JobList{Jobs: []Job{{ID: "1", Status: StatusPending}}, Total: 1})
		})
		r.Get("/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(Job{ID: chi.URLParam(r, "id"), Status: StatusInProgress, CreatedAt: created})
		})
		r.Post("/jobs", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&gotCreate)
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(Job{ID: "42", URL: gotCreate.URL, Status: StatusPending})
		})
		r.Delete("/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(MessageResponse{Message: "cancelled " + chi.URLParam(r, "id")})
		})
		r.Post("/jobs/{id}/retry", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(Job{ID: "43", Status: StatusPending})
		})
	})

	c := newTestServer(t, r)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)

	list, err := c.ListJobs(ctx, ListJobsQuery{Status: StatusFailed, Limit: 50, Offset: 10, SortBy: "created_at", SortOrder: SortDesc})
	require.NoError(t, err)
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, "failed", gotListQuery.Get("status"))
	assert.Equal(t, "50", gotListQuery.Get("limit"))
	assert.Equal(t, "10", gotListQuery.Get("offset"))
	assert.Equal(t, "created_at", gotListQuery.Get("sortBy"))
	assert.Equal(t, "desc", gotListQuery.Get("sortOrder"))
	assert.Equal(t, "secret", gotKey)

	job, err := c.GetJob(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, "7", job.ID)
	assert.True(t, job.CreatedAt.Equal(created))

	job, err = c.CreateJob(ctx, CreateJobRequest{URL: "https://example.com", JavaScript: true, Metadata: map[string]string{"team": "pricing"}})
	require.NoError(t, err)
	assert.Equal(t, "42", job.ID)
	assert.Equal(t, "https://example.com", gotCreate.URL)
	assert.True(t, gotCreate.JavaScript)
	assert.Equal(t, "pricing", gotCreate.Metadata["team"])

	msg, err := c.CancelJob(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, "cancelled 7", msg.Message)

	job, err = c.RetryJob(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, "43", job.ID)

	_, err = c.GetJob(ctx, " ")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestClient_EscapesIDsInPaths(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.EscapedPath())
		mu.Unlock()
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL + "/api/v1")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)

	id := "../a/b?c"
	_, err = c.GetJob(ctx, id)
	require.NoError(t, err)
	_, err = c.CancelJob(ctx, id)
	require.NoError(t, err)
	_, err = c.RetryJob(ctx, id)
	require.NoError(t, err)
	_, err = c.GetResult(ctx, id, ResultOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"GET /api/v1/jobs/..%2Fa%2Fb%3Fc",
		"DELETE /api/v1/jobs/..%2Fa%2Fb%3Fc",
		"POST /api/v1/jobs/..%2Fa%2Fb%3Fc/retry",
		"GET /api/v1/results/..%2Fa%2Fb%3Fc",
	}, paths)
}

func TestClient_ResultAndHealth(t *testing.T) {
	t.Parallel()

	var gotResultQuery url.Values
	r := chi.NewRouter()
	r.Get("/api/v1/results/{id}", func(w http.ResponseWriter, r *http.Request) {
		gotResultQuery = r.URL.Query()
		_, _ = w.Write([]byte(`{"job_id":"9","data":{"title":"x"},"processing_time_ms":120}`))
	})
	r.Get("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"healthy","database":"connected","redis":false,"version":"1.2.0","uptime":12.5}`))
	})

	c := newTestServer(t, r)
	ctx := context.Background()

	res, err := c.GetResult(ctx, "9", ResultOptions{IncludeHTML: true})
	require.NoError(t, err)
	assert.Equal(t, "9", res.JobID)
	assert.JSONEq(t, `{"title":"x"}`, string(res.Data))
	assert.Equal(t, int64(120), res.ProcessingTimeMs)
	assert.Equal(t, "true", gotResultQuery.Get("includeHtml"))
	assert.Equal(t, "false", gotResultQuery.Get("includeScreenshot"))

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, TierHealthy, h.Overall)
	assert.True(t, h.Components["database"])
	assert.False(t, h.Components["redis"])
	assert.Equal(t, "1.2.0", h.Version)
	assert.InDelta(t, 12.5, h.UptimeSeconds, 0.001)
	assert.False(t, h.Timestamp.IsZero())
}

func TestClient_ErrorTaxonomy(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Get("/api/v1/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch chi.URLParam(r, "id") {
		case "missing":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"Job not found"}`))
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	})
	c := newTestServer(t, r)

	_, err := c.GetJob(context.Background(), "missing")
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.Equal(t, "Job not found", httpErr.Message)
	assert.False(t, Retryable(err))

	_, err = c.GetJob(context.Background(), "broken")
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
	assert.True(t, Retryable(err))

	dead, err := NewClient("127.0.0.1:1", WithTimeout(200*time.Millisecond))
	require.NoError(t, err)
	_, err = dead.Health(context.Background())
	assert.True(t, IsNetwork(err))
	assert.True(t, Retryable(err))
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network", &NetworkError{Op: "x", Err: errors.New("refused")}, true},
		{"wrapped 503", errors.Join(errors.New("ctx"), &HTTPError{StatusCode: 503}), true},
		{"400", &HTTPError{StatusCode: 400}, false},
		{"not ready", &NotReadyError{Tier: TierDegraded}, false},
		{"validation", &ValidationError{Field: "url", Reason: "empty"}, false},
		{"plain", errors.New("decode"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}

func TestComponentUp(t *testing.T) {
	assert.True(t, componentUp(json.RawMessage(`true`)))
	assert.True(t, componentUp(json.RawMessage(`"Connected"`)))
	assert.False(t, componentUp(json.RawMessage(`"disconnected"`)))
	assert.False(t, componentUp(nil))
	assert.False(t, componentUp(json.RawMessage(`{}`)))
}
