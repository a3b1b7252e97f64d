package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"audioconv/internal/events"
	"audioconv/internal/logging"
)

// DefaultInterval is the drain cadence.
const DefaultInterval = 100 * time.Millisecond

// Sink renders or persists run state. Observe is called for every event after
// it was folded into state; task is the job the event refers to, or nil.
// Flush is called once per tick after the drained batch.
type Sink interface {
	Observe(env events.Envelope, task *Task, state *State)
	Flush(state *State) error
}

// Consumer is the single reader of an event bus.
type Consumer struct {
	bus      *events.Bus
	interval time.Duration
	sinks    []Sink
	logger   *slog.Logger
	state    *State
}

// NewConsumer constructs a consumer draining bus every interval.
func NewConsumer(bus *events.Bus, interval time.Duration, logger *slog.Logger, sinks ...Sink) *Consumer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Consumer{
		bus:      bus,
		interval: interval,
		sinks:    sinks,
		logger:   logging.NewComponentLogger(logger, "report"),
		state:    NewState(),
	}
}

// State exposes the folded state. It must not be read while Run is active.
func (c *Consumer) State() *State {
	return c.state
}

// Run drains the bus on every tick until it has processed Exit. Sink errors
// are logged and never stop the loop; they are returned joined once the run
// ends. Cancelling ctx forces one last drain and returns.
func (c *Consumer) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	var sinkErrs []error
	for {
		select {
		case <-ctx.Done():
			sinkErrs = append(sinkErrs, c.tick()...)
			return errors.Join(append(sinkErrs, ctx.Err())...)
		case <-ticker.C:
			sinkErrs = append(sinkErrs, c.tick()...)
			if c.state.Exited {
				return errors.Join(sinkErrs...)
			}
		}
	}
}

func (c *Consumer) tick() []error {
	for _, env := range c.bus.Drain() {
		task, known := c.state.apply(env)
		if !known {
			c.logger.Warn("event for unknown task ignored",
				logging.Int64("seq", env.Seq),
				logging.String("event", fmt.Sprintf("%T", env.Event)),
			)
			continue
		}
		for _, sink := range c.sinks {
			sink.Observe(env, task, c.state)
		}
	}
	var errs []error
	for _, sink := range c.sinks {
		if err := sink.Flush(c.state); err != nil {
			c.logger.Warn("report sink flush failed", logging.Error(err))
			errs = append(errs, err)
		}
	}
	return errs
}
