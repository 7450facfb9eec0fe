package agent

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Scheduler owns every background task the agent runs: periodic ticks,
// polls and feed subscriptions. Tasks are named; entering a state retains
// only that state's allow-list and cancels the rest, so a task can never
// leak across a state transition.
//
// Cancellation is synchronous (the context is canceled before the call
// returns) but does not wait for the goroutine to unwind: a transition may
// be triggered from inside the very task it cancels. Late callbacks from an
// unwinding task are discarded by the orchestrator's generation counter.
type Scheduler struct {
	mu    sync.Mutex
	tasks map[string]*task
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler() *Scheduler {
	return &Scheduler{tasks: make(map[string]*task)}
}

// Every runs fn on a fixed interval until the task is canceled. Starting a
// name that is already running replaces it.
func (s *Scheduler) Every(parent context.Context, name string, interval time.Duration, fn func(ctx context.Context)) {
	s.Run(parent, name, func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	})
}

// Run starts fn as a named long-lived task. fn must return when its context
// is canceled.
func (s *Scheduler) Run(parent context.Context, name string, fn func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(parent)
	t := &task{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	if old, ok := s.tasks[name]; ok {
		old.cancel()
	}
	s.tasks[name] = t
	s.mu.Unlock()

	go func() {
		defer close(t.done)
		fn(ctx)
	}()
}

// Cancel stops one task.
func (s *Scheduler) Cancel(name string) {
	s.mu.Lock()
	t, ok := s.tasks[name]
	if ok {
		delete(s.tasks, name)
	}
	s.mu.Unlock()
	if ok {
		t.cancel()
	}
}

// Retain cancels every task whose name is not listed. This is the state
// transition primitive: the new state names what may keep running.
func (s *Scheduler) Retain(names ...string) {
	keep := make(map[string]bool, len(names))
	for _, n := range names {
		keep[n] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, t := range s.tasks {
		if !keep[name] {
			t.cancel()
			delete(s.tasks, name)
		}
	}
}

// Shutdown cancels everything and waits for all task goroutines to exit.
// Never call it while holding a lock a task function may take.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	doomed := make([]*task, 0, len(s.tasks))
	for name, t := range s.tasks {
		t.cancel()
		doomed = append(doomed, t)
		delete(s.tasks, name)
	}
	s.mu.Unlock()
	for _, t := range doomed {
		<-t.done
	}
}

// Active returns the names of running tasks, sorted.
func (s *Scheduler) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
