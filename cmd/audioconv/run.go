package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"audioconv/internal/config"
	"audioconv/internal/deps"
	"audioconv/internal/engine/ffmpeg"
	"audioconv/internal/events"
	"audioconv/internal/failurelog"
	"audioconv/internal/history"
	"audioconv/internal/job"
	"audioconv/internal/logging"
	"audioconv/internal/plan"
	"audioconv/internal/preflight"
	"audioconv/internal/report"
	"audioconv/internal/scheduler"
	"audioconv/internal/services"
)

func runConversion(ctx context.Context, cmd *cobra.Command, cfg *config.Config, dryRun bool) error {
	out := cmd.OutOrStdout()
	tty := isTerminal(out)

	logger, err := newLogger(cfg, tty)
	if err != nil {
		return err
	}
	runID := history.NewRunID()
	ctx = services.WithRunID(ctx, runID)
	logger = logging.WithContext(ctx, logger)

	if failed := preflight.Failed(preflight.RunAll(ctx, cfg)); len(failed) > 0 {
		details := make([]string, 0, len(failed))
		for _, r := range failed {
			details = append(details, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
		return services.Wrap(services.ErrConfiguration, "preflight", "check directories", strings.Join(details, "; "), nil)
	}

	result, err := plan.Build(ctx, plan.Options{
		From:    cfg.From,
		To:      cfg.To,
		Matcher: cfg.Matcher(),
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	if dryRun {
		printPlan(out, result)
		if len(result.Errors) > 0 {
			return fmt.Errorf("%d file(s) could not be planned", len(result.Errors))
		}
		return nil
	}

	if missing := deps.Missing(preflight.CheckSystemDeps(ctx, cfg)); len(missing) > 0 && len(result.Jobs) > 0 {
		names := make([]string, 0, len(missing))
		for _, s := range missing {
			names = append(names, fmt.Sprintf("%s (%s)", s.Name, s.Detail))
		}
		return services.Wrap(services.ErrExternalTool, "preflight", "check dependencies", strings.Join(names, ", "), nil)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	failures := failurelog.InDir(cwd)
	for _, fe := range result.Errors {
		if err := failures.Append(failurelog.Entry{RunID: runID, RelPath: fe.RelPath, Err: fe.Err}); err != nil {
			return err
		}
	}

	store, run := openHistory(ctx, cfg, runID, len(result.Jobs), logger)
	if store != nil {
		defer store.Close()
	}

	bus := events.NewBus(events.DefaultCapacity)
	runner, err := job.NewRunner(job.Options{
		Engine:           ffmpeg.New(ffmpeg.WithBinaries(cfg.Engine.FFmpeg, cfg.Engine.FFprobe), ffmpeg.WithLogger(logger)),
		Bus:              bus,
		FailureLog:       failures,
		ProgressInterval: cfg.ProgressInterval(),
		Logger:           logger,
	})
	if err != nil {
		return err
	}
	sched, err := scheduler.New(scheduler.Options{
		Runner:  runner,
		Bus:     bus,
		Jobs:    cfg.Jobs,
		LogPath: failures.Path(),
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	sinks := []report.Sink{}
	if tty {
		sinks = append(sinks, report.NewConsoleSink(out))
	} else {
		sinks = append(sinks, report.NewLogSink(logger))
	}
	if store != nil {
		sinks = append(sinks, history.NewRecorder(context.WithoutCancel(ctx), store, runID))
	}
	consumer := report.NewConsumer(bus, cfg.ReportInterval(), logger, sinks...)

	// The consumer keeps draining after an interrupt until the scheduler's
	// Exit event.
	consumerDone := make(chan error, 1)
	go func() {
		consumerDone <- consumer.Run(context.WithoutCancel(ctx))
	}()

	summary, runErr := sched.Run(ctx, result.Jobs)
	if err := <-consumerDone; err != nil {
		logging.WarnWithContext(logger, "progress reporting failed", "report_error", logging.Error(err))
	}

	if store != nil {
		run.Completed = summary.Completed
		run.Failed = summary.Failed + len(result.Errors)
		run.Skipped = summary.Skipped
		run.Interrupted = errors.Is(runErr, services.ErrInterrupted)
		if err := store.FinishRun(context.WithoutCancel(ctx), run); err != nil {
			logging.WarnWithContext(logger, "history update failed", "history_error", logging.Error(err))
		}
	}

	printSummary(out, summary, result, sched.Limit())

	switch {
	case runErr != nil:
		return runErr
	case !summary.OK() || len(result.Errors) > 0:
		return fmt.Errorf("%d file(s) failed; details in %s", summary.Failed+len(result.Errors), failures.Path())
	}
	return nil
}

// newLogger builds the run logger. On a terminal the progress bar owns the
// screen, so routine records are raised to warnings unless debugging.
func newLogger(cfg *config.Config, tty bool) (*slog.Logger, error) {
	level := cfg.Logging.Level
	if tty && strings.EqualFold(level, "info") {
		level = "warn"
	}
	return logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stderr"},
		FilePath:    cfg.Logging.File,
	})
}

func openHistory(ctx context.Context, cfg *config.Config, runID string, total int, logger *slog.Logger) (*history.Store, *history.Run) {
	if !cfg.History.Enabled {
		return nil, nil
	}
	store, err := history.Open(ctx, cfg.History.Path)
	if err != nil {
		logging.WarnWithContext(logger, "history disabled for this run", "history_error",
			logging.String("path", cfg.History.Path),
			logging.Error(err),
		)
		return nil, nil
	}
	run := &history.Run{ID: runID, From: cfg.From, To: cfg.To, Total: total}
	if err := store.BeginRun(ctx, run); err != nil {
		logging.WarnWithContext(logger, "history disabled for this run", "history_error", logging.Error(err))
		_ = store.Close()
		return nil, nil
	}
	return store, run
}

func printPlan(out io.Writer, result plan.Result) {
	if len(result.Jobs) == 0 {
		fmt.Fprintln(out, "Nothing to convert")
	} else {
		rows := make([][]string, 0, len(result.Jobs))
		for i, j := range result.Jobs {
			rows = append(rows, []string{strconv.Itoa(i), j.RelPath, j.Spec.String(), humanize.IBytes(uint64(j.Size))})
		}
		fmt.Fprintln(out, renderTable(
			[]string{"#", "File", "Target", "Size"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight},
		))
	}
	fmt.Fprintf(out, "%d to convert (%s), %d up to date, %d unmatched\n",
		len(result.Jobs), humanize.IBytes(uint64(result.TotalBytes())), result.UpToDate, result.Unmatched)
	for _, fe := range result.Errors {
		fmt.Fprintf(out, "error: %s\n", fe.Error())
	}
}

func printSummary(out io.Writer, summary scheduler.Summary, result plan.Result, workers int) {
	fmt.Fprintf(out, "Converted %s of %s file(s) (%s) in %s with %d parallel job(s)",
		humanize.Comma(int64(summary.Completed)),
		humanize.Comma(int64(summary.Total)),
		humanize.IBytes(uint64(result.TotalBytes())),
		summary.Elapsed.Round(10*time.Millisecond),
		workers,
	)
	if summary.Skipped > 0 {
		fmt.Fprintf(out, ", %d skipped", summary.Skipped)
	}
	fmt.Fprintln(out)

	if len(summary.Failures) == 0 && len(result.Errors) == 0 {
		return
	}
	rows := make([][]string, 0, len(summary.Failures)+len(result.Errors))
	for _, fe := range result.Errors {
		rows = append(rows, []string{"-", fe.RelPath, services.FailureKind(fe.Err), firstLine(fe.Err.Error())})
	}
	for _, f := range summary.Failures {
		rows = append(rows, []string{strconv.Itoa(f.ID), f.RelPath, services.FailureKind(f.Err), firstLine(f.Err.Error())})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"#", "File", "Kind", "Error"},
		rows,
		[]columnAlignment{alignRight},
	))
}
