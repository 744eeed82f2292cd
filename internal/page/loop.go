// Package page models one browsing context on the server: a single-threaded
// task loop, the root document it owns and the live color-scheme query.
package page

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var ErrLoopClosed = errors.New("page: loop closed")

// Loop runs posted tasks one at a time on a dedicated goroutine. After every
// task it runs the registered after-task hooks, which is where frame
// callbacks and outgoing patches are flushed.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	hooks  []func()
	timers map[*time.Timer]struct{}
	closed bool

	wake   chan struct{}
	done   chan struct{}
	exited chan struct{}
}

func NewLoop() *Loop {
	l := &Loop{
		timers: make(map[*time.Timer]struct{}),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go l.run()
	return l
}

// Post enqueues fn. It reports false once the loop is closed.
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

// Do posts fn and waits for it to finish. Must not be called from a task.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrLoopClosed
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrLoopClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AfterFunc posts fn after d. The returned stop func cancels a pending timer;
// Close cancels all of them.
func (l *Loop) AfterFunc(d time.Duration, fn func()) (stop func() bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return func() bool { return false }
	}

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		l.mu.Lock()
		delete(l.timers, t)
		l.mu.Unlock()
		l.Post(fn)
	})
	l.timers[t] = struct{}{}
	return func() bool {
		l.mu.Lock()
		delete(l.timers, t)
		l.mu.Unlock()
		return t.Stop()
	}
}

// AfterTask registers fn to run on the loop after every task.
func (l *Loop) AfterTask(fn func()) {
	l.mu.Lock()
	l.hooks = append(l.hooks, fn)
	l.mu.Unlock()
}

// PendingTimers returns the number of timers not yet fired or stopped.
func (l *Loop) PendingTimers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.timers)
}

// Close stops the loop, drops queued tasks and cancels pending timers. It
// waits for the running task to finish, so it must not be called from a task.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.exited
		return
	}
	l.closed = true
	l.queue = nil
	for t := range l.timers {
		t.Stop()
	}
	l.timers = nil
	close(l.done)
	l.mu.Unlock()

	<-l.exited
}

func (l *Loop) run() {
	defer close(l.exited)
	for {
		select {
		case <-l.done:
			return
		case <-l.wake:
		}

		for {
			l.mu.Lock()
			if l.closed || len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			fn := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			hooks := l.hooks
			l.mu.Unlock()

			runTask(fn)
			for _, h := range hooks {
				runTask(h)
			}
		}
	}
}

// runTask keeps a failing task from taking the whole context down.
func runTask(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("page task panicked", "panic", r)
		}
	}()
	fn()
}
