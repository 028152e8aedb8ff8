// Package eventloop provides the single-threaded execution context each side
// of a channel runs in. Tasks posted to a Loop run one at a time, in post
// order, each to completion before the next starts. Nothing posted to a Loop
// needs locking against other tasks of the same Loop.
package eventloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrClosed is returned by Do once the loop has been closed.
var ErrClosed = errors.New("eventloop: closed")

// Loop is a FIFO task queue drained by Run.
type Loop struct {
	name   string
	logger *slog.Logger

	mu     sync.Mutex
	queue  []func()
	closed bool

	wake chan struct{}
	done chan struct{}
}

// New creates a Loop. Call Run to start draining it.
func New(name string, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		name:   name,
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Name returns the loop's name.
func (l *Loop) Name() string { return l.name }

// Post queues fn. It reports false, and drops fn, once the loop is closed.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// After posts fn to the loop once d has elapsed. Stopping the returned
// timer after it fired does not recall a task already queued, so fn must
// check its own preconditions.
func (l *Loop) After(d time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(d, func() { l.Post(fn) })
}

// Do posts fn and waits for it to run. Because the queue is FIFO, Do with a
// no-op fn is a barrier: every task posted before it has completed when it
// returns.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	if !l.Post(func() {
		defer close(ran)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-ran:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the queue until ctx is cancelled or Close is called.
func (l *Loop) Run(ctx context.Context) {
	for {
		if fn, ok := l.next(); ok {
			l.exec(fn)
			continue
		}
		select {
		case <-ctx.Done():
			l.Close()
			return
		case <-l.done:
			return
		case <-l.wake:
		}
	}
}

// Close stops the loop. Queued tasks are dropped and later posts fail.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.queue = nil
	close(l.done)
}

// Done is closed once the loop is closed.
func (l *Loop) Done() <-chan struct{} { return l.done }

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("eventloop: task panicked",
				"loop", l.name, "panic", fmt.Sprint(r))
		}
	}()
	fn()
}
