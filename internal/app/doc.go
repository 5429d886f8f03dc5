// Package app is the composition root for scrapedeck.
//
// # Overview
//
// Run loads the configuration, builds the logger and the sync engine, warms
// the cache and hands the engine to the terminal UI. Build does the wiring
// on its own so tests can run the engine against a fake backend.
//
// # Startup
//
//  1. Load ~/.config/scrapedeck/config.toml (defaults when missing)
//  2. Build the zap logger; with no log_file it discards everything
//  3. Create the API client, metrics registry, cache store, synchronizer,
//     query catalogue and mutation coordinator
//  4. Start the debug server when metrics_addr is set
//  5. Prime: fetch health and the first job page concurrently
//  6. Start the TUI and block until the user quits or ctx ends
//
// # Data Flow
//
//	┌──────────────┐
//	│   Run()      │
//	└──────┬───────┘
//	       ├─────> config.Load()     Read config file and env overrides
//	       ├─────> logging.New()     File-backed zap logger
//	       ├─────> Build()           Client, store, synchronizer, coordinator
//	       ├─────> Prime()           Initial health and job page
//	       └─────> ui.Run()          TUI (blocks)
//
// Ongoing polling is not done here: the UI subscribes to the queries it
// shows and the synchronizer polls each at its own interval.
//
// # Error Handling
//
// Fatal (returned from Run):
//   - Unreadable or invalid configuration
//   - Bad log file or level
//   - Bad API URL
//   - Debug server address already in use
//
// Recoverable (logged, recorded in the cache):
//   - Prime failures, such as the backend being down at startup
//   - Every later fetch or mutation failure
package app
