// Package plan turns the input tree into the ordered list of conversion jobs.
package plan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"audioconv/internal/logging"
	"audioconv/internal/matcher"
	"audioconv/internal/services"
	"audioconv/internal/staleness"
	"audioconv/internal/transcode"
)

// Job describes one conversion. Jobs are immutable once built.
type Job struct {
	RelPath     string
	Source      string
	Destination string
	Spec        transcode.Spec
	Size        int64
}

// FileError is a recoverable problem confined to one source file.
type FileError struct {
	RelPath string
	Err     error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.RelPath, e.Err)
}

func (e FileError) Unwrap() error { return e.Err }

// ErrDestinationConflict marks a source whose output path is already produced
// by an earlier source in the same scan.
var ErrDestinationConflict = errors.New("destination conflict")

// Options configures Build.
type Options struct {
	From    string
	To      string
	Matcher *matcher.Matcher
	Logger  *slog.Logger
}

// Result is the outcome of a scan.
type Result struct {
	Jobs      []Job
	Errors    []FileError
	Scanned   int
	Unmatched int
	UpToDate  int
}

// TotalBytes sums the source sizes of all jobs.
func (r Result) TotalBytes() int64 {
	var total int64
	for _, job := range r.Jobs {
		total += job.Size
	}
	return total
}

// Build walks opts.From and returns the stale, matching files as jobs in walk
// order. Unreadable source metadata and non-regular files that match a rule
// abort the scan with an error marked services.ErrScan. Failures to read a
// destination's metadata only affect that file and are collected in
// Result.Errors, as are later sources mapping to a destination an earlier
// source already claimed.
func Build(ctx context.Context, opts Options) (Result, error) {
	if opts.Matcher == nil {
		return Result{}, errors.New("plan: matcher is required")
	}
	logger := logging.NewComponentLogger(opts.Logger, "plan")

	var res Result
	// Destination paths already owned by an earlier source in walk order.
	claimed := make(map[string]string)
	for entry, err := range Walk(ctx, opts.From) {
		if err != nil {
			return Result{}, services.Wrap(services.ErrScan, "plan", "walk", entry.Rel, err)
		}
		res.Scanned++

		spec, ok := opts.Matcher.Match(entry.Rel)
		if !ok {
			res.Unmatched++
			logger.Debug("no rule matched", logging.String(logging.FieldRelPath, entry.Rel))
			continue
		}
		if !entry.Regular() {
			return Result{}, services.Wrap(services.ErrScan, "plan", "inspect", entry.Rel,
				fmt.Errorf("unsupported file type %s matches a rule", entry.Info.Mode().Type()))
		}

		dest := transcode.OutputPath(opts.To, entry.Rel, spec)
		if owner, taken := claimed[dest]; taken {
			conflict := fmt.Errorf("%w: %s is also produced by %s", ErrDestinationConflict, dest, owner)
			res.Errors = append(res.Errors, FileError{RelPath: entry.Rel, Err: conflict})
			logger.Warn("destination already claimed; skipping file",
				logging.String(logging.FieldRelPath, entry.Rel),
				logging.String("claimed_by", owner),
				logging.String(logging.FieldEventType, "destination_conflict"),
				logging.String(logging.FieldErrorHint, "rename one of the sources or narrow the match rules"),
			)
			continue
		}
		claimed[dest] = entry.Rel

		stale, err := staleness.IsStale(entry.Info, dest)
		if err != nil {
			res.Errors = append(res.Errors, FileError{RelPath: entry.Rel, Err: err})
			logger.Warn("destination metadata unreadable; skipping file",
				logging.String(logging.FieldRelPath, entry.Rel),
				logging.String(logging.FieldEventType, "destination_stat_failed"),
				logging.String(logging.FieldErrorHint, "check permissions on the output tree"),
				logging.Error(err),
			)
			continue
		}
		if !stale {
			res.UpToDate++
			continue
		}
		res.Jobs = append(res.Jobs, Job{
			RelPath:     entry.Rel,
			Source:      entry.Path,
			Destination: dest,
			Spec:        spec,
			Size:        entry.Info.Size(),
		})
	}
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("plan: %w", err)
	}
	logger.Info("scan complete",
		logging.Int("scanned", res.Scanned),
		logging.Int("jobs", len(res.Jobs)),
		logging.Int("up_to_date", res.UpToDate),
		logging.Int("unmatched", res.Unmatched),
		logging.Int("file_errors", len(res.Errors)),
	)
	return res, nil
}
