// Package loop provides the cooperative, single-threaded task loop that the
// room runs on.
//
// All engine state is owned by whichever goroutine drives the loop. Work from
// other goroutines (network readers, timers) is handed over with Post, and
// work that must happen "after the current quantum" is scheduled with Defer.
// A quantum is one RunPending call: it executes the tasks that were queued
// before it started, and anything queued while it runs waits for the next one.
package loop

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Task is a unit of deferred work.
type Task func()

// Loop is a FIFO task queue drained one quantum at a time.
type Loop struct {
	mu     sync.Mutex
	queue  []Task
	wake   chan struct{}
	logger zerolog.Logger
}

// New creates an empty loop.
func New(logger zerolog.Logger) *Loop {
	return &Loop{
		wake:   make(chan struct{}, 1),
		logger: logger,
	}
}

// Post enqueues a task from any goroutine.
func (l *Loop) Post(task Task) {
	if task == nil {
		return
	}
	l.mu.Lock()
	l.queue = append(l.queue, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Defer schedules task for the next quantum. It is Post under the name the
// engine uses when it means "not in the caller's stack".
func (l *Loop) Defer(task Task) {
	l.Post(task)
}

// Pending returns the number of queued tasks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// RunPending runs one quantum and returns how many tasks it executed.
func (l *Loop) RunPending() int {
	l.mu.Lock()
	batch := l.queue
	l.queue = nil
	l.mu.Unlock()

	for _, task := range batch {
		l.run(task)
	}
	return len(batch)
}

// Drain runs quanta until the queue is empty or max quanta have run.
// It returns the number of quanta executed. A max of zero means no limit.
func (l *Loop) Drain(max int) int {
	quanta := 0
	for l.Pending() > 0 {
		if max > 0 && quanta >= max {
			break
		}
		l.RunPending()
		quanta++
	}
	return quanta
}

// Run drives the loop until ctx is cancelled. Tasks still queued when the
// context ends are dropped.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.RunPending()

		if l.Pending() > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

func (l *Loop) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().
				Err(fmt.Errorf("panic: %v", r)).
				Msg("loop task panicked")
		}
	}()
	task()
}
