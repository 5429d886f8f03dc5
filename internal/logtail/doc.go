// Package logtail reads the end of scrapedeck's own log file for the
// in-dashboard log panel.
//
// The logger writes JSON records to a file because the dashboard owns the
// terminal. Read extracts the last N lines with a ring buffer of N strings,
// so memory stays bounded however large the file grows. Parse decodes a
// record into its time, level, logger name, message and remaining fields,
// and Record.String renders it as one line:
//
//	09:14:02 WARN  query: fetch failed error="list jobs: network error" key=["jobs","list"]
//
// Lines that are not JSON, such as a panic trace, are kept verbatim.
package logtail
