package debugserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/scrapedeck/internal/api"
	"github.com/five82/scrapedeck/internal/clock"
	"github.com/five82/scrapedeck/internal/metrics"
	"github.com/five82/scrapedeck/internal/state"
)

type cacheResponse struct {
	Count   int         `json:"count"`
	Entries []entryView `json:"entries"`
}

func seededStore() *state.Store {
	clk := clock.NewManual(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	store := state.NewStore(state.WithClock(clk))
	store.Set(state.NewKey("health"), func(e state.Entry) state.Entry {
		e.Err = errors.New("connection refused")
		e.FailureCount = 2
		return e
	})
	store.Set(state.NewKey("jobs", "list", "status="), func(e state.Entry) state.Entry {
		e.Data = api.JobList{Jobs: []api.Job{{ID: "j1", Status: api.StatusPending}}, Total: 1}
		e.HasData = true
		e.Observers = 1
		return e
	})
	store.Set(state.NewKey("jobs", "detail", "j1"), func(e state.Entry) state.Entry {
		e.Data = api.Job{ID: "j1"}
		e.HasData = true
		return e
	})
	return store
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_Healthz(t *testing.T) {
	s := New(state.NewStore(), nil, nil)
	rec := get(t, s.Handler(), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_CacheListsEntries(t *testing.T) {
	s := New(seededStore(), nil, nil)

	rec := get(t, s.Handler(), "/debug/cache")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body cacheResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 3, body.Count)

	byKey := map[string]entryView{}
	for _, e := range body.Entries {
		byKey[state.Key(e.Key).String()] = e
		assert.Nil(t, e.Data, "data is omitted unless asked for")
	}
	health := byKey[state.NewKey("health").String()]
	assert.Equal(t, "connection refused", health.Error)
	assert.Equal(t, 2, health.FailureCount)
	assert.False(t, health.HasData)

	list := byKey[state.NewKey("jobs", "list", "status=").String()]
	assert.Equal(t, 1, list.Observers)
	assert.Equal(t, "idle", list.FetchStatus)
}

func TestServer_CacheFiltersByPrefix(t *testing.T) {
	s := New(seededStore(), nil, nil)

	rec := get(t, s.Handler(), "/debug/cache/jobs/list?data=1")
	require.Equal(t, http.StatusOK, rec.Code)

	var body cacheResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, []string{"jobs", "list", "status="}, body.Entries[0].Key)
	assert.NotNil(t, body.Entries[0].Data)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.ObserveMutation("create", nil)
	s := New(state.NewStore(), m, nil)

	rec := get(t, s.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `scrapedeck_mutations_total{op="create",outcome="success"} 1`)

	bare := New(state.NewStore(), nil, nil)
	assert.Equal(t, http.StatusNotFound, get(t, bare.Handler(), "/metrics").Code)
}

func TestServer_StartAndShutdown(t *testing.T) {
	s := New(state.NewStore(), nil, nil)
	require.NoError(t, s.Start("127.0.0.1:0"))
	require.NotEmpty(t, s.Addr())

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
}

func TestServer_ShutdownWithoutStart(t *testing.T) {
	assert.NoError(t, New(state.NewStore(), nil, nil).Shutdown(context.Background()))
}
