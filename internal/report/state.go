package report

import (
	"slices"
	"time"

	"audioconv/internal/events"
	"audioconv/internal/plan"
)

// Task is a running job as seen by the consumer.
type Task struct {
	ID      int
	Job     plan.Job
	Ratio   float64
	Started time.Time
}

// State is the consumer's view of the run.
type State struct {
	Total      int
	LogPath    string
	Ended      int
	Completed  int
	Failed     int
	Running    map[int]*Task
	HasErrored bool
	Exited     bool
}

// NewState returns an empty state.
func NewState() *State {
	return &State{Running: make(map[int]*Task)}
}

// Progress is the overall completion in [0,1], counting partial progress of
// running tasks.
func (s *State) Progress() float64 {
	if s.Total <= 0 {
		if s.Exited {
			return 1
		}
		return 0
	}
	done := float64(s.Ended)
	for _, task := range s.Running {
		done += task.Ratio
	}
	return min(done/float64(s.Total), 1)
}

// RunningTasks returns running tasks ordered by id.
func (s *State) RunningTasks() []*Task {
	out := make([]*Task, 0, len(s.Running))
	for _, task := range s.Running {
		out = append(out, task)
	}
	slices.SortFunc(out, func(a, b *Task) int { return a.ID - b.ID })
	return out
}

// apply folds env into the state and returns the task it refers to, if any.
// known is false for task events carrying an id that was never started or
// already ended.
func (s *State) apply(env events.Envelope) (task *Task, known bool) {
	switch ev := env.Event.(type) {
	case events.Init:
		s.Total = ev.Total
		s.LogPath = ev.LogPath
	case events.TaskStart:
		task = &Task{ID: ev.ID, Job: ev.Job, Started: env.At}
		s.Running[ev.ID] = task
	case events.TaskProgress:
		if task = s.Running[ev.ID]; task == nil {
			return nil, false
		}
		task.Ratio = max(task.Ratio, min(max(ev.Ratio, 0), 1))
	case events.TaskEnd:
		if task = s.Running[ev.ID]; task == nil {
			return nil, false
		}
		task.Ratio = 1
		delete(s.Running, ev.ID)
		s.Ended++
		s.Completed++
	case events.TaskError:
		if task = s.Running[ev.ID]; task == nil {
			return nil, false
		}
		delete(s.Running, ev.ID)
		s.Ended++
		s.Failed++
		s.HasErrored = true
	case events.Exit:
		s.Exited = true
	}
	return task, true
}
