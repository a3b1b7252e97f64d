// Package events carries job lifecycle notifications from job runners to the
// single reporting consumer.
package events

import (
	"sync/atomic"
	"time"

	"audioconv/internal/plan"
)

// Event is the closed set of lifecycle notifications.
type Event interface {
	isEvent()
}

// Init announces the number of jobs and where failures are logged.
type Init struct {
	Total   int
	LogPath string
}

// TaskStart reports that a job entered the running state.
type TaskStart struct {
	ID  int
	Job plan.Job
}

// TaskProgress reports completion in [0,1].
type TaskProgress struct {
	ID    int
	Ratio float64
}

// TaskEnd reports successful completion.
type TaskEnd struct {
	ID int
}

// TaskError reports failure; Err carries the full causal chain.
type TaskError struct {
	ID  int
	Err error
}

// Exit is emitted once after every dispatched job settled.
type Exit struct{}

func (Init) isEvent()         {}
func (TaskStart) isEvent()    {}
func (TaskProgress) isEvent() {}
func (TaskEnd) isEvent()      {}
func (TaskError) isEvent()    {}
func (Exit) isEvent()         {}

// Envelope wraps an event with a bus-wide sequence number and publish time.
type Envelope struct {
	Seq   int64
	At    time.Time
	Event Event
}

// DefaultCapacity bounds the number of undrained events before publishers
// block.
const DefaultCapacity = 1024

// Bus is a multi-producer, single-consumer queue. Events from one producer
// are received in publish order; there is no ordering across producers.
type Bus struct {
	ch  chan Envelope
	seq atomic.Int64
}

// NewBus creates a bus buffering up to capacity events.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{ch: make(chan Envelope, capacity)}
}

// Publish enqueues ev, blocking while the buffer is full.
func (b *Bus) Publish(ev Event) {
	b.ch <- Envelope{Seq: b.seq.Add(1), At: time.Now().UTC(), Event: ev}
}

// Drain returns every event queued at call time without blocking.
func (b *Bus) Drain() []Envelope {
	var out []Envelope
	for {
		select {
		case env := <-b.ch:
			out = append(out, env)
		default:
			return out
		}
	}
}
