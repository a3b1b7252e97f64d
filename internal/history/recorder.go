package history

import (
	"context"
	"strings"

	"audioconv/internal/events"
	"audioconv/internal/report"
	"audioconv/internal/services"
)

// Recorder is a report sink that persists job outcomes once per tick.
type Recorder struct {
	ctx     context.Context
	store   *Store
	runID   string
	pending []JobOutcome
}

// NewRecorder records outcomes of runID into store.
func NewRecorder(ctx context.Context, store *Store, runID string) *Recorder {
	return &Recorder{ctx: ctx, store: store, runID: runID}
}

func (r *Recorder) Observe(env events.Envelope, task *report.Task, _ *report.State) {
	if task == nil {
		return
	}
	outcome := JobOutcome{
		RunID:      r.runID,
		JobID:      task.ID,
		RelPath:    task.Job.RelPath,
		StartedAt:  task.Started,
		FinishedAt: env.At,
	}
	if task.Job.Spec != nil {
		outcome.Codec = task.Job.Spec.String()
	}
	switch ev := env.Event.(type) {
	case events.TaskEnd:
		outcome.Status = StatusCompleted
	case events.TaskError:
		outcome.Status = StatusFailed
		outcome.ErrorKind = services.FailureKind(ev.Err)
		outcome.Error = strings.Join(services.Chain(ev.Err), "\n")
	default:
		return
	}
	r.pending = append(r.pending, outcome)
}

// Flush writes buffered outcomes. They stay buffered when the write fails and
// are retried on the next tick.
func (r *Recorder) Flush(*report.State) error {
	if len(r.pending) == 0 {
		return nil
	}
	if err := r.store.RecordJobs(r.ctx, r.pending); err != nil {
		return services.Wrap(services.ErrJob, "history", "record jobs", "", err)
	}
	r.pending = r.pending[:0]
	return nil
}

// Pending returns the number of unwritten outcomes.
func (r *Recorder) Pending() int {
	return len(r.pending)
}
