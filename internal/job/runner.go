package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"audioconv/internal/engine"
	"audioconv/internal/events"
	"audioconv/internal/failurelog"
	"audioconv/internal/fileutil"
	"audioconv/internal/logging"
	"audioconv/internal/plan"
	"audioconv/internal/services"
	"audioconv/internal/transcode"
)

// TempSuffix marks partially written outputs.
const TempSuffix = ".audioconv-tmp"

// DefaultProgressInterval is the engine position polling period.
const DefaultProgressInterval = 250 * time.Millisecond

// copyProgressStep limits copy progress events to one per percent.
const copyProgressStep = 0.01

// TempPath returns the in-progress path for dest.
func TempPath(dest string) string {
	return dest + TempSuffix
}

// Options configures a Runner.
type Options struct {
	Engine           engine.Engine
	Bus              *events.Bus
	FailureLog       *failurelog.Log
	ProgressInterval time.Duration
	Logger           *slog.Logger
}

// Runner executes jobs. It is safe for concurrent use.
type Runner struct {
	engine   engine.Engine
	bus      *events.Bus
	failures *failurelog.Log
	interval time.Duration
	logger   *slog.Logger
}

// NewRunner validates opts and constructs a runner.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Bus == nil {
		return nil, errors.New("job: event bus is required")
	}
	if opts.FailureLog == nil {
		return nil, errors.New("job: failure log is required")
	}
	interval := opts.ProgressInterval
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	return &Runner{
		engine:   opts.Engine,
		bus:      opts.Bus,
		failures: opts.FailureLog,
		interval: interval,
		logger:   logging.NewComponentLogger(opts.Logger, "job"),
	}, nil
}

// Run converts one job. id must be unique within the run. The returned error
// is nil only when the destination was written; it has already been reported
// through the bus and the failure log.
func (r *Runner) Run(ctx context.Context, id int, job plan.Job) error {
	ctx = services.WithJobID(ctx, id)
	ctx = services.WithRelPath(ctx, job.RelPath)
	logger := logging.WithContext(ctx, r.logger).With(logging.String(logging.FieldCodec, job.Spec.String()))

	r.bus.Publish(events.TaskStart{ID: id, Job: job})
	logger.Debug("job started", logging.String("destination", job.Destination))
	started := time.Now()
	prior, _ := os.Stat(job.Destination)

	if err := r.execute(ctx, id, job); err != nil {
		return r.fail(ctx, id, job, prior, err, logger)
	}

	r.bus.Publish(events.TaskEnd{ID: id})
	logger.Debug("job completed", logging.Duration("elapsed", time.Since(started)))
	return nil
}

func (r *Runner) execute(ctx context.Context, id int, job plan.Job) error {
	if err := ctx.Err(); err != nil {
		return services.Wrap(services.ErrInterrupted, "job", "start", "", err)
	}
	dir := filepath.Dir(job.Destination)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return services.Wrap(services.ErrJob, "job", "create directory", dir, err)
	}
	tmp := TempPath(job.Destination)
	progress := &tracker{bus: r.bus, id: id}

	if transcode.NeedsEngine(job.Spec) {
		if err := r.encode(ctx, job, tmp, progress); err != nil {
			return err
		}
	} else {
		if err := fileutil.Copy(ctx, job.Source, tmp, 0, func(copied, total int64) {
			if total > 0 {
				progress.observe(float64(copied)/float64(total), copyProgressStep)
			}
		}); err != nil {
			if ctx.Err() != nil {
				return services.Wrap(services.ErrInterrupted, "job", "copy", "", err)
			}
			return services.Wrap(services.ErrJob, "job", "copy", job.Source, err)
		}
	}

	if err := keepNewerThanSource(job.Source, tmp); err != nil {
		return services.Wrap(services.ErrJob, "job", "set modification time", tmp, err)
	}
	if err := os.Rename(tmp, job.Destination); err != nil {
		return services.Wrap(services.ErrJob, "job", "rename", job.Destination, err)
	}
	progress.observe(1, 0)
	return nil
}

// encode drives the engine pipeline. Position polling and pipeline events
// are raced in one loop, so no progress is published after the terminal
// event.
func (r *Runner) encode(ctx context.Context, job plan.Job, tmp string, progress *tracker) error {
	if r.engine == nil {
		return services.Wrap(services.ErrJob, "job", "encode", "no engine configured", nil)
	}
	pipe, err := r.engine.Build(ctx, job.Source, tmp, job.Spec)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	defer func() {
		_ = pipe.Stop()
	}()
	if err := pipe.Start(); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	pipeEvents := pipe.Events()
	for {
		select {
		case <-ctx.Done():
			_ = pipe.Stop()
			return services.Wrap(services.ErrInterrupted, "job", "encode", "", ctx.Err())
		case <-ticker.C:
			if pos, dur, ok := pipe.Position(); ok {
				if ratio, ok := engine.Ratio(pos, dur); ok {
					progress.observe(ratio, 0)
				}
			}
		case ev, ok := <-pipeEvents:
			if !ok {
				return services.Wrap(services.ErrExternalTool, "job", "encode", "engine exited without a result", nil)
			}
			switch e := ev.(type) {
			case engine.Progress:
				if ratio, ok := engine.Ratio(e.Position, e.Duration); ok {
					progress.observe(ratio, 0)
				}
			case engine.Completed:
				return nil
			case engine.Error:
				return fmt.Errorf("encode: %w", e.Err)
			}
		}
	}
}

// fail removes the temp file and the destination seen at job start. A
// destination created or replaced while the job ran belongs to someone else
// and is kept.
func (r *Runner) fail(ctx context.Context, id int, job plan.Job, prior os.FileInfo, cause error, logger *slog.Logger) error {
	err := cause
	paths := []string{TempPath(job.Destination)}
	if sameFile(prior, job.Destination) {
		paths = append(paths, job.Destination)
	}
	if cleanupErr := cleanup(paths...); cleanupErr != nil {
		err = errors.Join(err, fmt.Errorf("cleanup: %w", cleanupErr))
	}
	runID, _ := services.RunIDFromContext(ctx)
	if logErr := r.failures.Append(failurelog.Entry{RunID: runID, RelPath: job.RelPath, Err: err}); logErr != nil {
		logging.ErrorWithContext(logger, "failure log write failed", "failure_log_write",
			logging.String("log_path", r.failures.Path()),
			logging.String(logging.FieldErrorHint, "check that the working directory is writable"),
			logging.Error(logErr),
		)
		err = errors.Join(err, logErr)
	}
	r.bus.Publish(events.TaskError{ID: id, Err: err})
	logging.WarnWithContext(logger, "job failed", "job_failed",
		logging.String("failure_kind", services.FailureKind(cause)),
		logging.Error(cause),
	)
	return err
}

// sameFile reports whether path still names the file described by prior.
func sameFile(prior os.FileInfo, path string) bool {
	if prior == nil {
		return false
	}
	current, err := os.Stat(path)
	if err != nil {
		return false
	}
	return os.SameFile(prior, current) && current.ModTime().Equal(prior.ModTime())
}

// cleanup removes every path, ignoring those already absent.
func cleanup(paths ...string) error {
	var errs []error
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// keepNewerThanSource bumps the output mtime when the source carries a
// timestamp from the future.
func keepNewerThanSource(src, out string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}
	outInfo, err := os.Stat(out)
	if err != nil {
		return err
	}
	if outInfo.ModTime().Before(srcInfo.ModTime()) {
		return os.Chtimes(out, srcInfo.ModTime(), srcInfo.ModTime())
	}
	return nil
}

// tracker publishes clamped, non-decreasing progress for one job.
type tracker struct {
	bus       *events.Bus
	id        int
	last      float64
	published bool
}

func (t *tracker) observe(ratio, minStep float64) {
	switch {
	case ratio < 0:
		ratio = 0
	case ratio > 1:
		ratio = 1
	}
	if t.published && (ratio <= t.last || (ratio < 1 && ratio-t.last < minStep)) {
		return
	}
	t.last = ratio
	t.published = true
	t.bus.Publish(events.TaskProgress{ID: t.id, Ratio: ratio})
}
