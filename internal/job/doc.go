// Package job drives a single conversion from start to a terminal state.
//
// Output is written to a temporary sibling of the destination and renamed into
// place on success; on failure both the temporary file and any stale
// destination are removed, the failure is appended to the failure log and a
// TaskError event is published.
package job
