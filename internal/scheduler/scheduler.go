// Package scheduler runs the application's periodic tasks: the update sweep,
// the download drain, metadata backfill and history pruning.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Task is one named periodic job
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error

	// WarmUp schedules one extra invocation this long after Start, so the
	// first run does not wait a full interval
	WarmUp time.Duration

	// SingleFlight skips an invocation while a previous one is still running
	SingleFlight bool
}

type taskState struct {
	task        Task
	running     atomic.Bool
	reconfigure chan time.Duration
}

// Scheduler owns the task goroutines. Tasks are registered before Start and
// run until Stop or context cancellation.
type Scheduler struct {
	mu      sync.Mutex
	tasks   map[string]*taskState
	order   []string
	paused  atomic.Bool
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  *slog.Logger
}

// New creates an empty scheduler
func New() *Scheduler {
	return &Scheduler{
		tasks:  make(map[string]*taskState),
		logger: slog.Default(),
	}
}

// Add registers a task. It must be called before Start.
func (s *Scheduler) Add(task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("cannot add task %q after start", task.Name)
	}
	if task.Name == "" || task.Run == nil || task.Interval <= 0 {
		return fmt.Errorf("task %q is incomplete", task.Name)
	}
	if _, exists := s.tasks[task.Name]; exists {
		return fmt.Errorf("task %q already registered", task.Name)
	}

	s.tasks[task.Name] = &taskState{
		task:        task,
		reconfigure: make(chan time.Duration, 1),
	}
	s.order = append(s.order, task.Name)
	return nil
}

// Start launches one goroutine per task. The scheduler stops when the given
// context is canceled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, name := range s.order {
		st := s.tasks[name]
		s.wg.Add(1)
		go s.runLoop(ctx, st)
	}

	s.logger.Info("Scheduler started", "tasks", len(s.order))
}

func (s *Scheduler) runLoop(ctx context.Context, st *taskState) {
	defer s.wg.Done()

	if st.task.WarmUp > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(st.task.WarmUp):
			s.invoke(ctx, st)
		}
	}

	ticker := time.NewTicker(st.task.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case interval := <-st.reconfigure:
			ticker.Reset(interval)
			s.logger.Info("Task interval changed", "task", st.task.Name, "interval", interval)
		case <-ticker.C:
			s.invoke(ctx, st)
		}
	}
}

func (s *Scheduler) invoke(ctx context.Context, st *taskState) {
	if s.paused.Load() {
		s.logger.Debug("Scheduler paused, skipping task", "task", st.task.Name)
		return
	}
	if st.task.SingleFlight && !st.running.CompareAndSwap(false, true) {
		s.logger.Debug("Task still running, skipping", "task", st.task.Name)
		return
	}

	start := time.Now()
	err := st.task.Run(ctx)
	if st.task.SingleFlight {
		st.running.Store(false)
	}

	if err != nil && ctx.Err() == nil {
		s.logger.Error("Task failed", "task", st.task.Name, "error", err)
		return
	}
	s.logger.Debug("Task finished", "task", st.task.Name, "duration", time.Since(start))
}

// RunNow invokes a task immediately on the caller's goroutine, honoring the
// pause flag and the task's single-flight guard
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	st, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown task %q", name)
	}

	s.invoke(ctx, st)
	return nil
}

// Reconfigure changes a task's interval. The new interval takes effect
// immediately via the task's own ticker.
func (s *Scheduler) Reconfigure(name string, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", interval)
	}

	s.mu.Lock()
	st, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown task %q", name)
	}

	// Coalesce with any pending change rather than blocking. If a racing
	// caller fills the slot between the drain and the send, its interval
	// wins; either value is the latest request.
	select {
	case st.reconfigure <- interval:
	default:
		select {
		case <-st.reconfigure:
		default:
		}
		select {
		case st.reconfigure <- interval:
		default:
		}
	}
	return nil
}

// Pause suppresses task invocations until Resume. Running tasks finish.
func (s *Scheduler) Pause() {
	s.paused.Store(true)
	s.logger.Info("Scheduler paused")
}

// Resume lifts a pause
func (s *Scheduler) Resume() {
	s.paused.Store(false)
	s.logger.Info("Scheduler resumed")
}

// Stop cancels all task goroutines and waits for running invocations to
// return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}
