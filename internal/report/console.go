package report

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/schollz/progressbar/v3"

	"audioconv/internal/events"
)

const (
	barScale         = 1000
	maxDescribedJobs = 3
)

// ConsoleSink draws an overall progress bar and the running jobs on a
// terminal.
type ConsoleSink struct {
	out io.Writer
	bar *progressbar.ProgressBar
}

// NewConsoleSink renders to out, which should be a terminal.
func NewConsoleSink(out io.Writer) *ConsoleSink {
	return &ConsoleSink{out: out}
}

func (c *ConsoleSink) Observe(env events.Envelope, _ *Task, state *State) {
	if _, ok := env.Event.(events.Init); ok && c.bar == nil {
		c.bar = progressbar.NewOptions(barScale,
			progressbar.OptionSetWriter(c.out),
			progressbar.OptionSetWidth(30),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionThrottle(0),
		)
	}
}

func (c *ConsoleSink) Flush(state *State) error {
	if c.bar == nil {
		return nil
	}
	c.bar.Describe(Describe(state))
	if err := c.bar.Set(int(state.Progress() * barScale)); err != nil {
		return fmt.Errorf("render progress: %w", err)
	}
	if !state.Exited {
		return nil
	}
	if err := c.bar.Finish(); err != nil {
		return fmt.Errorf("finish progress: %w", err)
	}
	fmt.Fprintln(c.out)
	if state.HasErrored {
		fmt.Fprintf(c.out, "Error(s) occurred and were logged to %s\n", state.LogPath)
	}
	c.bar = nil
	return nil
}

// Describe summarises the counters and the first running jobs.
func Describe(state *State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d/%d]", state.Ended, state.Total)
	if state.Failed > 0 {
		fmt.Fprintf(&b, " %d failed", state.Failed)
	}
	running := state.RunningTasks()
	for i, task := range running {
		if i == maxDescribedJobs {
			fmt.Fprintf(&b, " +%d more", len(running)-i)
			break
		}
		fmt.Fprintf(&b, " %s %d%%", path.Base(task.Job.RelPath), int(task.Ratio*100))
	}
	return b.String()
}
