// Package scheduler runs independently timed, non-reentrant tasks.
// Each task gets its own goroutine; a tick is skipped rather than
// overlapped when the previous run is still going.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fediarchive/archivebot/internal/metrics"
)

// Task is one scheduled pass. Delay is waited once before the first
// run, then Run fires every Interval.
type Task struct {
	Name     string
	Delay    time.Duration
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler owns the task goroutines. Shutdown happens through the
// context passed to Start; a running pass finishes before its goroutine
// exits.
type Scheduler struct {
	log   *zap.Logger
	tasks []Task

	mu   sync.Mutex
	runs map[string]time.Time
	wg   sync.WaitGroup
}

// New builds an empty Scheduler.
func New(log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		log:  log.Named("scheduler"),
		runs: make(map[string]time.Time),
	}
}

// Add registers a task. Must be called before Start.
func (s *Scheduler) Add(task Task) {
	s.tasks = append(s.tasks, task)
}

// Start launches every registered task.
func (s *Scheduler) Start(ctx context.Context) {
	for _, task := range s.tasks {
		s.wg.Add(1)
		go s.loop(ctx, task)
	}
	s.log.Info("scheduler started", zap.Int("tasks", len(s.tasks)))
}

// Wait blocks until every task goroutine has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Runs returns the last completed run time per task.
func (s *Scheduler) Runs() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.runs))
	for name, at := range s.runs {
		out[name] = at
	}
	return out
}

func (s *Scheduler) loop(ctx context.Context, task Task) {
	defer s.wg.Done()

	delay := time.NewTimer(task.Delay)
	defer delay.Stop()
	select {
	case <-ctx.Done():
		return
	case <-delay.C:
	}

	s.runOnce(ctx, task)
	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, task)
		}
	}
}

// runOnce executes one pass with panic recovery at the boundary, so a
// misbehaving pass never takes the process down.
func (s *Scheduler) runOnce(ctx context.Context, task Task) {
	start := time.Now()
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("task panicked",
					zap.String("task", task.Name), zap.Any("panic", r))
			}
		}()
		err = task.Run(ctx)
	}()

	duration := time.Since(start)
	metrics.ObservePass(task.Name, duration, err)
	if err != nil {
		s.log.Error("task failed",
			zap.String("task", task.Name),
			zap.Duration("duration", duration),
			zap.Error(err))
	} else {
		s.log.Debug("task finished",
			zap.String("task", task.Name),
			zap.Duration("duration", duration))
	}

	s.mu.Lock()
	s.runs[task.Name] = time.Now()
	s.mu.Unlock()
}
