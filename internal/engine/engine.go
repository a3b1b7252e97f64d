// Package engine defines the contract between job runners and the external
// transcoding engine.
package engine

import (
	"context"
	"errors"
	"time"

	"audioconv/internal/transcode"
)

// ErrNoAudioStream is returned when the input holds no decodable audio.
var ErrNoAudioStream = errors.New("no audio stream")

// Event is emitted on a pipeline's event channel: Progress, Completed, or
// Error.
type Event interface {
	isEvent()
}

// Progress reports the encoder position within the input.
type Progress struct {
	Position time.Duration
	Duration time.Duration
}

// Completed reports that the output was fully written.
type Completed struct{}

// Error reports a terminal engine failure.
type Error struct {
	Err error
}

func (Progress) isEvent()  {}
func (Completed) isEvent() {}
func (Error) isEvent()     {}

// Engine builds pipelines that convert input into output according to spec.
// Building may probe the input; an input without audio fails with
// ErrNoAudioStream.
type Engine interface {
	Build(ctx context.Context, input, output string, spec transcode.Spec) (Pipeline, error)
}

// Pipeline is one engine run.
type Pipeline interface {
	// Start launches the run. It must be called at most once.
	Start() error
	// Events delivers progress followed by exactly one Completed or Error,
	// after which the channel is closed. A stopped pipeline may close the
	// channel without a terminal event.
	Events() <-chan Event
	// Position returns the latest known position and total duration; ok is
	// false until the duration is known.
	Position() (position, duration time.Duration, ok bool)
	// Stop aborts a running pipeline and waits for it to exit. It is safe to
	// call more than once and after completion.
	Stop() error
}

// Ratio converts a position report into a completion ratio clamped to [0,1].
// ok is false when the duration is unknown or zero.
func Ratio(position, duration time.Duration) (float64, bool) {
	if duration <= 0 {
		return 0, false
	}
	r := float64(position) / float64(duration)
	switch {
	case r < 0:
		r = 0
	case r > 1:
		r = 1
	}
	return r, true
}
