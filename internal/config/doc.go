// Package config loads scrapedeck's TOML configuration.
//
// # Configuration Discovery
//
// The Load function follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/scrapedeck/config.toml (default)
//  3. If the config file doesn't exist, fall back to Default()
//  4. If the file exists but keys are missing, use their defaults
//  5. SCRAPEDECK_API_URL and SCRAPEDECK_API_KEY override the file
//
// # TOML Format
//
// Durations are integer milliseconds:
//
//	api_url = "http://127.0.0.1:8000/api/v1"
//	api_key = ""
//	request_timeout_ms = 10000
//	health_poll_ms = 30000
//	jobs_poll_ms = 5000
//	job_poll_ms = 2000
//	stale_time_ms = 0
//	gc_window_ms = 600000
//	retry_count = 3
//	retry_base_ms = 1000
//	retry_max_ms = 30000
//	page_size = 100
//	overscan = 5
//	log_file = "~/.local/state/scrapedeck/scrapedeck.log"
//	log_level = "info"
//	metrics_addr = "127.0.0.1:9464"
//
// Every key is optional. log_file is tilde-expanded; an empty log_file
// disables logging since the dashboard owns the terminal. An empty
// metrics_addr disables the debug server.
//
// # Error Handling
//
// Load returns errors for path expansion failures, read errors other than a
// missing file, TOML parse errors, and values that fail Validate. A missing
// file is not an error.
package config
