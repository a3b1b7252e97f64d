// Package services defines shared utilities consumed by the conversion
// pipeline components.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, job indexes, and relative source
//     paths for logging.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures (configuration, scan, job, external tool, failure log) with
//     errors.Is.
//   - Chain, which renders a wrapped or joined error as one cause per line for
//     the failure log.
package services
