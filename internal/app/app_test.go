package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/scrapedeck/internal/api"
	"github.com/five82/scrapedeck/internal/config"
	"github.com/five82/scrapedeck/internal/prefs"
	"github.com/five82/scrapedeck/internal/ui"
)

func backend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"status":"healthy","database":true,"redis":"connected","version":"2.1.0"}`)
	})
	mux.HandleFunc("GET /api/v1/jobs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		_ = json.NewEncoder(w).Encode(api.JobList{
			Jobs:  []api.Job{{ID: "j1", URL: "https://example.com", Status: api.StatusCompleted}},
			Total: 1,
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func fetchBody(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestBuild_WiresEngineAndDebugServer(t *testing.T) {
	srv := backend(t)
	cfg := config.Default()
	cfg.APIURL = srv.URL + "/api/v1"
	cfg.APIKey = "secret"
	cfg.MetricsAddr = "127.0.0.1:0"

	rt, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer rt.Close()
	require.NotNil(t, rt.Debug)

	first := ui.FirstPage(prefs.Default(), cfg.PageSize)
	require.NoError(t, Prime(context.Background(), rt.Sync, rt.Catalog, first))

	tier, ok := rt.Mutations.CanCreate()
	assert.True(t, ok)
	assert.Equal(t, api.TierHealthy, tier)

	base := "http://" + rt.Debug.Addr()
	var cache struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal([]byte(fetchBody(t, base+"/debug/cache/jobs")), &cache))
	assert.Equal(t, 1, cache.Count)

	metrics := fetchBody(t, base+"/metrics")
	assert.Contains(t, metrics, "scrapedeck_cache_entries 2")
	assert.Contains(t, metrics, `scrapedeck_fetches_total{kind="health",outcome="success"} 1`)
}

func TestBuild_WithoutDebugServer(t *testing.T) {
	cfg := config.Default()
	cfg.APIURL = "http://127.0.0.1:1"

	rt, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, rt.Debug)
	rt.Close()
}

func TestBuild_RejectsBadAPIURL(t *testing.T) {
	cfg := config.Default()
	cfg.APIURL = "http://"

	_, err := Build(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "init api client")
}
