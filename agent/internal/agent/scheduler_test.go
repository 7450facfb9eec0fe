package agent

import (
	"context"
	"reflect"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerRetainCancelsOthers(t *testing.T) {
	s := NewScheduler()
	ctx := context.Background()

	canceled := make(map[string]chan struct{})
	for _, name := range []string{"a", "b", "c"} {
		ch := make(chan struct{})
		canceled[name] = ch
		s.Run(ctx, name, func(ctx context.Context) {
			<-ctx.Done()
			close(ch)
		})
	}

	s.Retain("a")

	for _, name := range []string{"b", "c"} {
		select {
		case <-canceled[name]:
		case <-time.After(time.Second):
			t.Fatalf("task %s not canceled by Retain", name)
		}
	}
	select {
	case <-canceled["a"]:
		t.Fatal("retained task was canceled")
	case <-time.After(20 * time.Millisecond):
	}

	if got := s.Active(); !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("Active() = %v, want [a]", got)
	}
	s.Shutdown()
}

func TestSchedulerRunReplacesSameName(t *testing.T) {
	s := NewScheduler()
	ctx := context.Background()

	firstCanceled := make(chan struct{})
	s.Run(ctx, "task", func(ctx context.Context) {
		<-ctx.Done()
		close(firstCanceled)
	})
	s.Run(ctx, "task", func(ctx context.Context) { <-ctx.Done() })

	select {
	case <-firstCanceled:
	case <-time.After(time.Second):
		t.Fatal("replaced task was not canceled")
	}
	if got := s.Active(); len(got) != 1 {
		t.Fatalf("Active() = %v, want one task", got)
	}
	s.Shutdown()
}

func TestSchedulerEvery(t *testing.T) {
	s := NewScheduler()
	var ticks atomic.Int64
	s.Every(context.Background(), "ticker", 5*time.Millisecond, func(context.Context) {
		ticks.Add(1)
	})

	deadline := time.After(time.Second)
	for ticks.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d ticks before deadline", ticks.Load())
		case <-time.After(time.Millisecond):
		}
	}

	s.Cancel("ticker")
	time.Sleep(20 * time.Millisecond)
	n := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	if ticks.Load() != n {
		t.Fatal("ticker kept firing after Cancel")
	}
}

func TestSchedulerCancelFromInsideTask(t *testing.T) {
	// a task must be able to trigger its own cancellation without deadlock
	s := NewScheduler()
	done := make(chan struct{})
	s.Run(context.Background(), "self", func(ctx context.Context) {
		s.Retain() // cancels everything, including this task
		<-ctx.Done()
		close(done)
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("self-cancel deadlocked")
	}
}
