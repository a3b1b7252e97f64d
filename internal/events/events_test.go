package events

import (
	"errors"
	"sync"
	"testing"
)

func TestDrainReturnsQueuedEventsInOrder(t *testing.T) {
	bus := NewBus(8)
	bus.Publish(Init{Total: 2, LogPath: "audio-conv.log"})
	bus.Publish(TaskStart{ID: 0})
	bus.Publish(TaskProgress{ID: 0, Ratio: 0.5})
	bus.Publish(TaskError{ID: 0, Err: errors.New("boom")})

	got := bus.Drain()
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	for i, env := range got {
		if env.Seq != int64(i+1) {
			t.Fatalf("event %d seq = %d", i, env.Seq)
		}
		if env.At.IsZero() {
			t.Fatalf("event %d missing timestamp", i)
		}
	}
	if _, ok := got[3].Event.(TaskError); !ok {
		t.Fatalf("unexpected last event %T", got[3].Event)
	}
	if again := bus.Drain(); len(again) != 0 {
		t.Fatalf("expected empty drain, got %d", len(again))
	}
}

func TestPerProducerOrderIsPreserved(t *testing.T) {
	const producers, perProducer = 4, 50
	bus := NewBus(producers * perProducer)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				bus.Publish(TaskProgress{ID: id, Ratio: float64(i) / perProducer})
			}
		}(p)
	}
	wg.Wait()

	last := map[int]float64{}
	count := 0
	for _, env := range bus.Drain() {
		ev := env.Event.(TaskProgress)
		if prev, ok := last[ev.ID]; ok && ev.Ratio <= prev {
			t.Fatalf("producer %d out of order: %v after %v", ev.ID, ev.Ratio, prev)
		}
		last[ev.ID] = ev.Ratio
		count++
	}
	if count != producers*perProducer {
		t.Fatalf("count = %d, want %d", count, producers*perProducer)
	}
}

func TestNewBusDefaultsCapacity(t *testing.T) {
	bus := NewBus(0)
	if cap(bus.ch) != DefaultCapacity {
		t.Fatalf("capacity = %d, want %d", cap(bus.ch), DefaultCapacity)
	}
	bus.Publish(Exit{})
	if len(bus.ch) != 1 {
		t.Fatalf("queued = %d, want 1", len(bus.ch))
	}
}
