package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"postbot/internal/eventbus"
	logx "postbot/pkg/logx"
)

func startEngine(t *testing.T, cfg Config) (*Service, eventbus.Bus) {
	t.Helper()
	bus := eventbus.New()
	cfg.Enabled = true
	s := New(cfg, logx.Nop(), bus)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s, bus
}

func waitEvent(t *testing.T, ch <-chan eventbus.Event, typ string) eventbus.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-ch:
			if e.Type == typ {
				return e
			}
		case <-deadline:
			t.Fatalf("no %s event", typ)
		}
	}
}

func TestEnqueueRunsTask(t *testing.T) {
	t.Parallel()
	s, bus := startEngine(t, Config{Workers: 2, QueueSize: 4})
	events, unsub := bus.Subscribe(16)
	defer unsub()

	done := make(chan struct{})
	if err := s.Enqueue(Task{Name: "send:1", Run: func(context.Context) error { close(done); return nil }}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}
	ev := waitEvent(t, events, eventbus.TaskFinished).Data.(TaskEvent)
	if ev.Name != "send:1" || ev.ID == "" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestEnqueueRejectsWhenDisabledOrStopped(t *testing.T) {
	t.Parallel()
	off := New(Config{}, logx.Nop(), nil)
	if err := off.Enqueue(Task{Name: "x", Run: func(context.Context) error { return nil }}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}
	idle := New(Config{Enabled: true}, logx.Nop(), nil)
	if err := idle.Enqueue(Task{Name: "x", Run: func(context.Context) error { return nil }}); !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
}

func TestOverlapSkipIfRunning(t *testing.T) {
	t.Parallel()
	s, _ := startEngine(t, Config{Workers: 2, QueueSize: 4})

	release := make(chan struct{})
	started := make(chan struct{})
	st := &RunState{}
	task := Task{Name: "send:7", State: st, Opt: TaskOptions{Overlap: OverlapSkipIfRunning}, Run: func(context.Context) error {
		close(started)
		<-release
		return nil
	}}
	if err := s.Enqueue(task); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	<-started
	task.Run = func(context.Context) error { return nil }
	if err := s.Enqueue(task); !errors.Is(err, ErrOverlapSkip) {
		t.Fatalf("second enqueue err = %v, want ErrOverlapSkip", err)
	}
	close(release)
}

func TestPanicAndTimeoutAreFailures(t *testing.T) {
	t.Parallel()
	s, bus := startEngine(t, Config{Workers: 1, QueueSize: 4})
	events, unsub := bus.Subscribe(16)
	defer unsub()

	if err := s.Enqueue(Task{Name: "panics", Run: func(context.Context) error { panic("boom") }}); err != nil {
		t.Fatal(err)
	}
	if ev := waitEvent(t, events, eventbus.TaskFailed).Data.(TaskEvent); ev.Name != "panics" {
		t.Fatalf("event = %+v", ev)
	}

	var sawDeadline atomic.Bool
	err := s.Enqueue(Task{Name: "slow", Timeout: 20 * time.Millisecond, Run: func(ctx context.Context) error {
		<-ctx.Done()
		sawDeadline.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))
		return ctx.Err()
	}})
	if err != nil {
		t.Fatal(err)
	}
	waitEvent(t, events, eventbus.TaskFailed)
	if !sawDeadline.Load() {
		t.Fatal("task context did not hit its deadline")
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(s.Snapshot().History) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h := s.Snapshot().History; len(h) != 2 || h[0].Error == "" {
		t.Fatalf("history = %+v", h)
	}
}

func TestQueueFull(t *testing.T) {
	t.Parallel()
	s, _ := startEngine(t, Config{Workers: 1, QueueSize: 1})
	block := make(chan struct{})
	defer close(block)
	started := make(chan struct{})

	_ = s.Enqueue(Task{Name: "blocker", Run: func(context.Context) error { close(started); <-block; return nil }})
	<-started
	_ = s.Enqueue(Task{Name: "queued", Run: func(context.Context) error { return nil }})
	err := s.Enqueue(Task{Name: "overflow", Run: func(context.Context) error { return nil }})
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
	if got := s.Snapshot().DroppedQueueFull; got != 1 {
		t.Fatalf("dropped = %d", got)
	}
}

func TestKeepStaleSkipsQueueDelayDrop(t *testing.T) {
	t.Parallel()
	s, _ := startEngine(t, Config{Workers: 1, QueueSize: 4, MaxQueueDelay: 5 * time.Millisecond})
	block := make(chan struct{})
	started := make(chan struct{})
	_ = s.Enqueue(Task{Name: "blocker", Run: func(context.Context) error { close(started); <-block; return nil }})
	<-started

	var plain, kept atomic.Bool
	done := make(chan struct{})
	_ = s.Enqueue(Task{Name: "plain", Run: func(context.Context) error { plain.Store(true); return nil }})
	_ = s.Enqueue(Task{Name: "kept", Opt: TaskOptions{KeepStale: true}, Run: func(context.Context) error {
		kept.Store(true)
		close(done)
		return nil
	}})
	time.Sleep(30 * time.Millisecond)
	close(block)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("kept task did not run")
	}
	if plain.Load() {
		t.Fatal("stale task should have been dropped")
	}
	if got := s.Snapshot().DroppedStale; got != 1 {
		t.Fatalf("dropped stale = %d, want 1", got)
	}
}
