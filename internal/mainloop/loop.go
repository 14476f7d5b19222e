// Package mainloop provides the single execution context on which host
// navigation runs. Worker goroutines post closures here instead of calling
// the host directly.
package mainloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrStopped is returned when work is posted to a stopped loop.
var ErrStopped = errors.New("main loop stopped")

const initialCapacity = 16

// Loop runs posted functions one at a time, in posting order, on one goroutine.
type Loop struct {
	logger *slog.Logger
	queue  *Queue[func()]

	startOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a Loop. Functions posted before Start run once it starts.
func New(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		logger: logger,
		queue:  NewQueue[func()](initialCapacity),
	}
}

// Start launches the loop goroutine.
func (l *Loop) Start(ctx context.Context) error {
	l.startOnce.Do(func() {
		l.wg.Add(1)
		go l.run()
		l.logger.Debug("main loop started")
	})
	return nil
}

// Stop closes the loop, lets queued functions finish, and waits for ctx.
func (l *Loop) Stop(ctx context.Context) error {
	l.queue.Close()
	l.startOnce.Do(func() {})

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		l.logger.Debug("main loop stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post schedules fn on the loop.
func (l *Loop) Post(fn func()) error {
	if !l.queue.Push(fn) {
		return ErrStopped
	}
	return nil
}

// Call states, moved from pending to exactly one of running or abandoned.
const (
	callPending int32 = iota
	callRunning
	callAbandoned
)

// Call runs fn on the loop and waits for its result. If ctx ends while fn is
// still queued, fn is dropped and ctx.Err() is returned; once fn has started,
// Call waits for it to finish and returns its result.
func (l *Loop) Call(ctx context.Context, fn func() error) error {
	var state atomic.Int32
	result := make(chan error, 1)
	post := func() {
		if !state.CompareAndSwap(callPending, callRunning) {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("main loop call panicked: %v", r)
			}
		}()
		result <- fn()
	}
	if err := l.Post(post); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		if state.CompareAndSwap(callPending, callAbandoned) {
			return ctx.Err()
		}
		return <-result
	}
}

// Stats returns queue counters.
func (l *Loop) Stats() QueueStats {
	return l.queue.Stats()
}

func (l *Loop) run() {
	defer l.wg.Done()
	for {
		fn, ok := l.queue.Pop()
		if !ok {
			return
		}
		l.exec(fn)
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("main loop task panicked", "panic", r)
		}
	}()
	fn()
}
