package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MissingConfigFallsBackToDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("SCRAPEDECK_API_URL", "")
	t.Setenv("SCRAPEDECK_API_KEY", "")

	cfg, err := Load(filepath.Join(home, "does-not-exist.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, defaultAPIURL, cfg.APIURL)
	assert.Equal(t, 30*time.Second, cfg.HealthPoll)
	assert.Equal(t, 10*time.Minute, cfg.GCWindow)
	assert.Empty(t, cfg.LogFile)
}

func TestLoad_ParsesAndTrimsConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("SCRAPEDECK_API_URL", "")
	t.Setenv("SCRAPEDECK_API_KEY", "")

	cfg, err := Load(writeConfig(t, `
api_url = "  https://scraper.internal/api/v1  "
api_key = " s3cret "
request_timeout_ms = 2500
jobs_poll_ms = 7000
stale_time_ms = 0
retry_count = 0
page_size = 25
log_file = "  ~/.scrapedeck/deck.log  "
log_level = "DEBUG"
metrics_addr = "127.0.0.1:9464"
`))
	require.NoError(t, err)
	assert.Equal(t, "https://scraper.internal/api/v1", cfg.APIURL)
	assert.Equal(t, "s3cret", cfg.APIKey)
	assert.Equal(t, 2500*time.Millisecond, cfg.RequestTimeout)
	assert.Equal(t, 7*time.Second, cfg.JobsPoll)
	assert.Equal(t, defaultJobPoll, cfg.JobPoll, "missing key keeps default")
	assert.Zero(t, cfg.RetryCount, "explicit zero is kept")
	assert.Equal(t, 25, cfg.PageSize)
	assert.Equal(t, filepath.Join(home, ".scrapedeck/deck.log"), cfg.LogFile)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "127.0.0.1:9464", cfg.MetricsAddr)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	t.Setenv("SCRAPEDECK_API_URL", "http://override:8000/api/v1")
	t.Setenv("SCRAPEDECK_API_KEY", "from-env")

	cfg, err := Load(writeConfig(t, `api_url = "http://file:8000"`))
	require.NoError(t, err)
	assert.Equal(t, "http://override:8000/api/v1", cfg.APIURL)
	assert.Equal(t, "from-env", cfg.APIKey)
}

func TestLoad_InvalidTOMLFails(t *testing.T) {
	_, err := Load(writeConfig(t, `api_url = [`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	_, err := Load(writeConfig(t, `
jobs_poll_ms = 0
retry_base_ms = 5000
retry_max_ms = 1000
log_level = "verbose"
`))
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "jobs_poll_ms must be positive")
	assert.Contains(t, msg, "retry_max_ms must be at least retry_base_ms")
	assert.Contains(t, msg, `log_level "verbose"`)
}

func TestValidate_Default(t *testing.T) {
	assert.NoError(t, Default().Validate())

	cfg := Default()
	cfg.Overscan = -1
	cfg.PageSize = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, 2, strings.Count(err.Error(), "\n")+1)
}

func TestExpandPath_ExpandsTildeAndReturnsAbs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := expandPath("~/a/b")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "a/b"), got)
}

func TestExpandPath_EmptyErrors(t *testing.T) {
	_, err := expandPath("   ")
	assert.Error(t, err)
}
