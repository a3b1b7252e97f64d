// Package scheduler runs conversion jobs with bounded concurrency.
package scheduler

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"audioconv/internal/events"
	"audioconv/internal/logging"
	"audioconv/internal/plan"
	"audioconv/internal/services"
)

// Runner executes one job to a terminal state.
type Runner interface {
	Run(ctx context.Context, id int, job plan.Job) error
}

// Options configures a Scheduler.
type Options struct {
	Runner  Runner
	Bus     *events.Bus
	Jobs    int
	LogPath string
	Logger  *slog.Logger
}

// Failure records one failed job.
type Failure struct {
	ID      int
	RelPath string
	Err     error
}

// Summary is the outcome of a run.
type Summary struct {
	Total     int
	Completed int
	Failed    int
	Skipped   int
	Failures  []Failure
	Elapsed   time.Duration
}

// OK reports whether every job completed.
func (s Summary) OK() bool {
	return s.Completed == s.Total
}

// Scheduler dispatches jobs in order to at most Jobs concurrent runners.
type Scheduler struct {
	runner  Runner
	bus     *events.Bus
	limit   int
	logPath string
	logger  *slog.Logger
}

// New validates opts. A non-positive Jobs value uses the host parallelism.
func New(opts Options) (*Scheduler, error) {
	if opts.Runner == nil {
		return nil, errors.New("scheduler: runner is required")
	}
	if opts.Bus == nil {
		return nil, errors.New("scheduler: event bus is required")
	}
	limit := opts.Jobs
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	return &Scheduler{
		runner:  opts.Runner,
		bus:     opts.Bus,
		limit:   limit,
		logPath: opts.LogPath,
		logger:  logging.NewComponentLogger(opts.Logger, "scheduler"),
	}, nil
}

// Limit returns the effective concurrency bound.
func (s *Scheduler) Limit() int {
	return s.limit
}

// Run publishes Init, runs every job and publishes Exit once all dispatched
// jobs settled. A failed job never prevents others from running. When ctx is
// cancelled no further jobs start; those are counted as skipped and the
// returned error is marked services.ErrInterrupted.
func (s *Scheduler) Run(ctx context.Context, jobs []plan.Job) (Summary, error) {
	started := time.Now()
	logger := logging.WithContext(ctx, s.logger)
	s.bus.Publish(events.Init{Total: len(jobs), LogPath: s.logPath})
	defer s.bus.Publish(events.Exit{})

	var (
		mu      sync.Mutex
		summary = Summary{Total: len(jobs)}
	)
	record := func(id int, job plan.Job, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case err == nil:
			summary.Completed++
		default:
			summary.Failed++
			summary.Failures = append(summary.Failures, Failure{ID: id, RelPath: job.RelPath, Err: err})
		}
	}
	skip := func(n int) {
		mu.Lock()
		summary.Skipped += n
		mu.Unlock()
	}

	logger.Info("dispatching jobs", logging.Int("jobs", len(jobs)), logging.Int("concurrency", s.limit))

	var g errgroup.Group
	g.SetLimit(s.limit)
	for id, job := range jobs {
		if ctx.Err() != nil {
			skip(len(jobs) - id)
			break
		}
		g.Go(func() error {
			// The slot may free up only after cancellation.
			if ctx.Err() != nil {
				skip(1)
				return nil
			}
			record(id, job, s.runner.Run(ctx, id, job))
			return nil
		})
	}
	_ = g.Wait()
	slices.SortFunc(summary.Failures, func(a, b Failure) int { return cmp.Compare(a.ID, b.ID) })

	summary.Elapsed = time.Since(started)
	logger.Info("run finished",
		logging.Int("completed", summary.Completed),
		logging.Int("failed", summary.Failed),
		logging.Int("skipped", summary.Skipped),
		logging.Duration("elapsed", summary.Elapsed),
	)
	if err := ctx.Err(); err != nil {
		return summary, services.Wrap(services.ErrInterrupted, "scheduler", "run", "", err)
	}
	return summary, nil
}
