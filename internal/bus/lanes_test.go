package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"main/internal/schema"
)

func makeTick(id schema.InstrumentID, ts int64) schema.Tick {
	return schema.Tick{InstrumentID: id, Price: 100, Volume: 1, Ts: ts}
}

func TestLanesKeepPerInstrumentOrder(t *testing.T) {
	l := NewLanes([]schema.InstrumentID{1, 2}, 16)
	for ts := int64(1); ts <= 5; ts++ {
		if err := l.Publish(makeTick(1, ts)); err != nil {
			t.Fatalf("publish lane 1 ts %d: %v", ts, err)
		}
		if err := l.Publish(makeTick(2, ts*10)); err != nil {
			t.Fatalf("publish lane 2 ts %d: %v", ts, err)
		}
	}
	l.Close()

	var mu sync.Mutex
	got := map[schema.InstrumentID][]int64{}
	l.Run(context.Background(), func(tick schema.Tick) {
		mu.Lock()
		got[tick.InstrumentID] = append(got[tick.InstrumentID], tick.Ts)
		mu.Unlock()
	})

	want := map[schema.InstrumentID][]int64{
		1: {1, 2, 3, 4, 5},
		2: {10, 20, 30, 40, 50},
	}
	for id, ts := range want {
		if len(got[id]) != len(ts) {
			t.Fatalf("lane %d count mismatch: got %d want %d", id, len(got[id]), len(ts))
		}
		for i := range ts {
			if got[id][i] != ts[i] {
				t.Fatalf("lane %d event %d out of order: got ts %d want %d", id, i, got[id][i], ts[i])
			}
		}
	}
}

func TestLanesDropOnFullLane(t *testing.T) {
	l := NewLanes([]schema.InstrumentID{1}, 1)
	if err := l.Publish(makeTick(1, 1)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := l.Publish(makeTick(1, 2)); !errors.Is(err, ErrLaneFull) {
		t.Fatalf("full error mismatch: got %v", err)
	}
	if got := l.Drops(); got != 1 {
		t.Fatalf("drops mismatch: got %d want 1", got)
	}
}

func TestLanesRejectUnknownInstrument(t *testing.T) {
	l := NewLanes([]schema.InstrumentID{1}, 4)
	if err := l.Publish(makeTick(9, 1)); !errors.Is(err, ErrLaneUnknown) {
		t.Fatalf("unknown error mismatch: got %v", err)
	}
	if got := l.Drops(); got != 0 {
		t.Fatalf("unknown publish counted as drop: got %d", got)
	}
}

func TestLanesCloseStopsPublishAndRun(t *testing.T) {
	l := NewLanes([]schema.InstrumentID{1, 2}, 4)
	done := make(chan struct{})
	go func() {
		l.Run(context.Background(), func(schema.Tick) {})
		close(done)
	}()
	l.Close()
	l.Close() // second close no-ops
	if err := l.Publish(makeTick(1, 1)); !errors.Is(err, ErrLaneClosed) {
		t.Fatalf("closed error mismatch: got %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after close")
	}
}

func TestLanesPublishRacesCloseSafely(t *testing.T) {
	l := NewLanes([]schema.InstrumentID{1, 2}, 4)
	done := make(chan struct{})
	go func() {
		l.Run(context.Background(), func(schema.Tick) {})
		close(done)
	}()

	// Publishers hammer the lanes while Close lands mid-stream. A send on
	// a closed channel would panic one of these goroutines.
	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func(id schema.InstrumentID) {
			defer wg.Done()
			for ts := int64(1); ; ts++ {
				if err := l.Publish(makeTick(id, ts)); errors.Is(err, ErrLaneClosed) {
					return
				}
			}
		}(schema.InstrumentID(w%2 + 1))
	}
	time.Sleep(time.Millisecond)
	l.Close()
	wg.Wait()

	if err := l.Publish(makeTick(1, 1)); !errors.Is(err, ErrLaneClosed) {
		t.Fatalf("closed error mismatch: got %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after close")
	}
}

func TestLanesRunStopsOnContextCancel(t *testing.T) {
	l := NewLanes([]schema.InstrumentID{1}, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx, func(schema.Tick) {})
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop on cancel")
	}
}
