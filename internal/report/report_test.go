package report

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"audioconv/internal/events"
	"audioconv/internal/plan"
	"audioconv/internal/transcode"
)

type recordingSink struct {
	observed []events.Event
	flushes  int
	err      error
}

func (r *recordingSink) Observe(env events.Envelope, _ *Task, _ *State) {
	r.observed = append(r.observed, env.Event)
}

func (r *recordingSink) Flush(*State) error {
	r.flushes++
	return r.err
}

func job(rel string) plan.Job {
	return plan.Job{RelPath: rel, Spec: transcode.Default()}
}

func publishRun(bus *events.Bus) {
	bus.Publish(events.Init{Total: 2, LogPath: "audio-conv.log"})
	bus.Publish(events.TaskStart{ID: 0, Job: job("a.flac")})
	bus.Publish(events.TaskStart{ID: 1, Job: job("b.flac")})
	bus.Publish(events.TaskProgress{ID: 0, Ratio: 0.5})
	bus.Publish(events.TaskProgress{ID: 9, Ratio: 0.5})
	bus.Publish(events.TaskEnd{ID: 0})
	bus.Publish(events.TaskError{ID: 1, Err: errors.New("boom")})
	bus.Publish(events.Exit{})
}

func TestConsumerStopsAfterExit(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	bus := events.NewBus(32)
	sink := &recordingSink{}
	consumer := NewConsumer(bus, time.Millisecond, nil, sink)
	publishRun(bus)

	done := make(chan error, 1)
	go func() { done <- consumer.Run(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop after Exit")
	}

	if len(sink.observed) != 7 {
		t.Fatalf("expected 7 observed events (unknown id dropped), got %d", len(sink.observed))
	}
	if _, ok := sink.observed[len(sink.observed)-1].(events.Exit); !ok {
		t.Fatal("Exit should be observed last")
	}
	state := consumer.State()
	if state.Total != 2 || state.Ended != 2 || state.Completed != 1 || state.Failed != 1 || !state.HasErrored {
		t.Fatalf("unexpected state %+v", state)
	}
	if len(state.Running) != 0 || state.Progress() != 1 {
		t.Fatalf("expected no running tasks and full progress, got %d %v", len(state.Running), state.Progress())
	}
}

func TestConsumerKeepsDrainingAfterSinkErrors(t *testing.T) {
	bus := events.NewBus(32)
	sink := &recordingSink{err: errors.New("disk full")}
	consumer := NewConsumer(bus, time.Millisecond, nil, sink)
	publishRun(bus)

	err := consumer.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected sink error, got %v", err)
	}
	if !consumer.State().Exited {
		t.Fatal("consumer stopped before Exit")
	}
}

func TestConsumerCancel(t *testing.T) {
	bus := events.NewBus(4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewConsumer(bus, time.Hour, nil).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestStateProgressIgnoresRegressions(t *testing.T) {
	s := NewState()
	apply := func(ev events.Event) {
		if _, known := s.apply(events.Envelope{Event: ev}); !known {
			t.Fatalf("unexpected unknown event %#v", ev)
		}
	}
	apply(events.Init{Total: 4})
	apply(events.TaskStart{ID: 2, Job: job("x.flac")})
	apply(events.TaskProgress{ID: 2, Ratio: 0.8})
	apply(events.TaskProgress{ID: 2, Ratio: 0.4})
	if got := s.Running[2].Ratio; got != 0.8 {
		t.Fatalf("ratio = %v, want 0.8", got)
	}
	if got := s.Progress(); got != 0.2 {
		t.Fatalf("progress = %v, want 0.2", got)
	}
	if _, known := s.apply(events.Envelope{Event: events.TaskEnd{ID: 5}}); known {
		t.Fatal("expected unknown id")
	}
}

func TestDescribe(t *testing.T) {
	s := NewState()
	s.Total = 10
	s.Ended = 3
	s.Failed = 1
	for i, rel := range []string{"a/one.flac", "two.flac", "three.flac", "four.flac"} {
		s.Running[i] = &Task{ID: i, Job: job(rel), Ratio: 0.25}
	}
	got := Describe(s)
	want := "[3/10] 1 failed one.flac 25% two.flac 25% three.flac 25% +1 more"
	if got != want {
		t.Fatalf("Describe = %q, want %q", got, want)
	}
}

func TestConsoleSinkReportsErrors(t *testing.T) {
	var out bytes.Buffer
	bus := events.NewBus(32)
	publishRun(bus)
	if err := NewConsumer(bus, time.Millisecond, nil, NewConsoleSink(&out)).Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !strings.Contains(out.String(), "Error(s) occurred and were logged to audio-conv.log") {
		t.Fatalf("missing error notice in %q", out.String())
	}
}

func TestLogSinkSamplesProgress(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	bus := events.NewBus(64)
	bus.Publish(events.Init{Total: 1, LogPath: "audio-conv.log"})
	bus.Publish(events.TaskStart{ID: 0, Job: job("a.flac")})
	for _, r := range []float64{0.1, 0.2, 0.3, 0.55, 0.6, 0.8} {
		bus.Publish(events.TaskProgress{ID: 0, Ratio: r})
	}
	bus.Publish(events.TaskEnd{ID: 0})
	bus.Publish(events.Exit{})

	if err := NewConsumer(bus, time.Millisecond, nil, NewLogSink(logger)).Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	output := buf.String()
	if got := strings.Count(output, "conversion progress"); got != 4 {
		t.Fatalf("expected 4 sampled progress lines, got %d:\n%s", got, output)
	}
	for _, want := range []string{"run started", "conversion started", "conversion finished", "run complete", "rel_path=a.flac"} {
		if !strings.Contains(output, want) {
			t.Fatalf("missing %q in:\n%s", want, output)
		}
	}
}
