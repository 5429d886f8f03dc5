// Package ui is the scrapedeck terminal dashboard, built on Bubble Tea.
//
// # Architecture Overview
//
// The UI owns no job state of its own. It holds query subscriptions on the
// shared cache (health, the current job page, the open job and its result)
// and rereads their entries on a short tick. Polling, retries and
// de-duplication all happen in the query synchronizer; mutations go through
// the mutation coordinator and show up in the cache before the server
// answers.
//
// # Package Structure
//
//   - model.go: Model, Options, Update and key handling
//   - commands.go: tea messages and the commands that run mutations
//   - render.go: header, windowed job list, detail, result and log panels
//   - keys.go: bubbles/key bindings and help
//   - theme.go, style_helpers.go: lipgloss themes and styling helpers
//
// # Rendering
//
// Only the rows the windower places inside the viewport (plus overscan) are
// rendered. Failed jobs with a message take two lines, so row offsets come
// from the windower rather than the row index.
//
// # Focus
//
// Terminal focus events map to Synchronizer.Focus and Blur, pausing
// foreground polling while the terminal is in the background.
//
// # Key Bindings
//
//   - j/k, g/G, pgup/pgdown: Move selection
//   - [ / ]: Previous/next server page
//   - enter: Job detail; v: Result; esc: Back
//   - f: Cycle status filter; s: Cycle sort; o: Toggle order; /: Search
//   - n: New job; x: Cancel; r: Retry; c: Clone
//   - ctrl+r: Refresh everything now; L: Show the log file
//   - T: Cycle theme; ?: Help; q or ctrl+c: Quit
package ui
