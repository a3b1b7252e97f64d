// Package history persists conversion runs and per-job outcomes in SQLite.
//
// The database uses WAL journaling and retries SQLITE_BUSY with bounded
// exponential backoff so several concurrent invocations can share one file.
package history
