package report

import (
	"log/slog"

	"audioconv/internal/events"
	"audioconv/internal/logging"
	"audioconv/internal/services"
)

// LogSink writes lifecycle events as structured log lines. Progress is
// sampled per job.
type LogSink struct {
	logger   *slog.Logger
	samplers map[int]*logging.ProgressSampler
}

// NewLogSink logs through logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{
		logger:   logging.NewComponentLogger(logger, "progress"),
		samplers: make(map[int]*logging.ProgressSampler),
	}
}

func (l *LogSink) Observe(env events.Envelope, task *Task, state *State) {
	switch ev := env.Event.(type) {
	case events.Init:
		l.logger.Info("run started", logging.Int("total", ev.Total), logging.String("failure_log", ev.LogPath))
	case events.TaskStart:
		l.samplers[ev.ID] = logging.NewProgressSampler(25)
		l.logger.Info("conversion started", logging.Args(taskAttrs(task)...)...)
	case events.TaskProgress:
		sampler := l.samplers[ev.ID]
		percent := task.Ratio * 100
		if sampler.ShouldLog(percent) && percent < 100 {
			l.logger.Info("conversion progress", logging.Args(append(taskAttrs(task), logging.Float64("percent", percent))...)...)
		}
	case events.TaskEnd:
		delete(l.samplers, ev.ID)
		l.logger.Info("conversion finished", logging.Args(append(taskAttrs(task),
			logging.Int("ended", state.Ended),
			logging.Int("total", state.Total),
		)...)...)
	case events.TaskError:
		delete(l.samplers, ev.ID)
		attrs := append(taskAttrs(task),
			logging.String("failure_kind", services.FailureKind(ev.Err)),
			logging.String(logging.FieldErrorHint, "see "+state.LogPath+" for the full error chain"),
			logging.Error(ev.Err),
		)
		logging.ErrorWithContext(l.logger, "conversion failed", "conversion_failed", attrs...)
	case events.Exit:
		l.logger.Info("run complete",
			logging.Int("completed", state.Completed),
			logging.Int("failed", state.Failed),
			logging.Int("total", state.Total),
		)
	}
}

func (l *LogSink) Flush(*State) error { return nil }

func taskAttrs(task *Task) []logging.Attr {
	if task == nil {
		return nil
	}
	attrs := []logging.Attr{
		logging.Int(logging.FieldJobID, task.ID),
		logging.String(logging.FieldRelPath, task.Job.RelPath),
	}
	if task.Job.Spec != nil {
		attrs = append(attrs, logging.String(logging.FieldCodec, task.Job.Spec.String()))
	}
	return attrs
}
