package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds everything scrapedeck reads from its config file.
type Config struct {
	APIURL         string
	APIKey         string
	RequestTimeout time.Duration

	HealthPoll time.Duration
	JobsPoll   time.Duration
	JobPoll    time.Duration
	StaleTime  time.Duration
	GCWindow   time.Duration

	RetryCount int
	RetryBase  time.Duration
	RetryMax   time.Duration

	PageSize int
	Overscan int

	LogFile     string
	LogLevel    string
	MetricsAddr string
}

const (
	defaultConfigPath = "~/.config/scrapedeck/config.toml"
	defaultAPIURL     = "http://127.0.0.1:8000/api/v1"
	defaultLogLevel   = "info"

	defaultRequestTimeout = 10 * time.Second
	defaultHealthPoll     = 30 * time.Second
	defaultJobsPoll       = 5 * time.Second
	defaultJobPoll        = 2 * time.Second
	defaultGCWindow       = 10 * time.Minute
	defaultRetryCount     = 3
	defaultRetryBase      = time.Second
	defaultRetryMax       = 30 * time.Second
	defaultPageSize       = 100
	defaultOverscan       = 5
)

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return defaultConfigPath
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		APIURL:         defaultAPIURL,
		RequestTimeout: defaultRequestTimeout,
		HealthPoll:     defaultHealthPoll,
		JobsPoll:       defaultJobsPoll,
		JobPoll:        defaultJobPoll,
		GCWindow:       defaultGCWindow,
		RetryCount:     defaultRetryCount,
		RetryBase:      defaultRetryBase,
		RetryMax:       defaultRetryMax,
		PageSize:       defaultPageSize,
		Overscan:       defaultOverscan,
		LogLevel:       defaultLogLevel,
	}
}

// fileConfig is the on-disk shape. Durations are integer milliseconds;
// pointers tell an explicit zero apart from a missing key.
type fileConfig struct {
	APIURL           string `toml:"api_url"`
	APIKey           string `toml:"api_key"`
	RequestTimeoutMS *int64 `toml:"request_timeout_ms"`
	HealthPollMS     *int64 `toml:"health_poll_ms"`
	JobsPollMS       *int64 `toml:"jobs_poll_ms"`
	JobPollMS        *int64 `toml:"job_poll_ms"`
	StaleTimeMS      *int64 `toml:"stale_time_ms"`
	GCWindowMS       *int64 `toml:"gc_window_ms"`
	RetryCount       *int   `toml:"retry_count"`
	RetryBaseMS      *int64 `toml:"retry_base_ms"`
	RetryMaxMS       *int64 `toml:"retry_max_ms"`
	PageSize         *int   `toml:"page_size"`
	Overscan         *int   `toml:"overscan"`
	LogFile          string `toml:"log_file"`
	LogLevel         string `toml:"log_level"`
	MetricsAddr      string `toml:"metrics_addr"`
}

// Load locates and parses the config, falling back to defaults when missing.
// SCRAPEDECK_API_URL and SCRAPEDECK_API_KEY override the file.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	file, err := os.Open(resolved)
	switch {
	case errors.Is(err, os.ErrNotExist):
		applyEnv(&cfg)
		return cfg, cfg.Validate()
	case err != nil:
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw fileConfig
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if v := strings.TrimSpace(raw.APIURL); v != "" {
		cfg.APIURL = v
	}
	cfg.APIKey = strings.TrimSpace(raw.APIKey)
	setMillis(&cfg.RequestTimeout, raw.RequestTimeoutMS)
	setMillis(&cfg.HealthPoll, raw.HealthPollMS)
	setMillis(&cfg.JobsPoll, raw.JobsPollMS)
	setMillis(&cfg.JobPoll, raw.JobPollMS)
	setMillis(&cfg.StaleTime, raw.StaleTimeMS)
	setMillis(&cfg.GCWindow, raw.GCWindowMS)
	setMillis(&cfg.RetryBase, raw.RetryBaseMS)
	setMillis(&cfg.RetryMax, raw.RetryMaxMS)
	setInt(&cfg.RetryCount, raw.RetryCount)
	setInt(&cfg.PageSize, raw.PageSize)
	setInt(&cfg.Overscan, raw.Overscan)

	if v := strings.TrimSpace(raw.LogFile); v != "" {
		cfg.LogFile = mustExpand(v)
	}
	if v := strings.TrimSpace(raw.LogLevel); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", resolved, err)
	}
	return cfg, nil
}

// Validate rejects values the rest of the program cannot work with.
func (c Config) Validate() error {
	var errs []error
	positive := []struct {
		name string
		v    time.Duration
	}{
		{"request_timeout_ms", c.RequestTimeout},
		{"health_poll_ms", c.HealthPoll},
		{"jobs_poll_ms", c.JobsPoll},
		{"job_poll_ms", c.JobPoll},
		{"gc_window_ms", c.GCWindow},
		{"retry_base_ms", c.RetryBase},
		{"retry_max_ms", c.RetryMax},
	}
	for _, p := range positive {
		if p.v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", p.name))
		}
	}
	if c.StaleTime < 0 {
		errs = append(errs, errors.New("stale_time_ms must not be negative"))
	}
	if c.RetryMax < c.RetryBase {
		errs = append(errs, errors.New("retry_max_ms must be at least retry_base_ms"))
	}
	if c.RetryCount < 0 {
		errs = append(errs, errors.New("retry_count must not be negative"))
	}
	if c.PageSize <= 0 {
		errs = append(errs, errors.New("page_size must be positive"))
	}
	if c.Overscan < 0 {
		errs = append(errs, errors.New("overscan must not be negative"))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}
	return errors.Join(errs...)
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("SCRAPEDECK_API_URL")); v != "" {
		cfg.APIURL = v
	}
	if v := strings.TrimSpace(os.Getenv("SCRAPEDECK_API_KEY")); v != "" {
		cfg.APIKey = v
	}
}

func setMillis(dst *time.Duration, ms *int64) {
	if ms != nil {
		*dst = time.Duration(*ms) * time.Millisecond
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
