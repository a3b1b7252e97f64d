// Package logging assembles structured slog loggers and formatting helpers used
// across audioconv.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code can tag log
// lines with run IDs, job indexes, and relative source paths. An optional log
// file receives every record as JSON regardless of the console level.
package logging
