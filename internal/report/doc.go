// Package report consumes the event bus on a fixed cadence and feeds the
// folded run state to rendering and persistence sinks.
package report
