// Package loop runs closures one at a time on a single goroutine.
//
// State owned by a Loop is only touched from inside posted closures, so it
// needs no locking. Closures may post further closures; the queue is
// unbounded and strictly FIFO.
package loop

import (
	"context"
	"sync"
)

// Loop is a single-goroutine task queue.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool

	wake chan struct{}
	done chan struct{}
}

// New creates a Loop. Call Run to start processing.
func New() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post queues fn. It returns false if the loop is closed, in which case fn
// will never run.
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

// Close stops the loop after the closure currently running, if any.
// Queued closures are discarded. Safe to call from inside a closure.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.queue = nil
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Closed reports whether Close has been called.
func (l *Loop) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Run processes closures until ctx is cancelled or Close is called.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		fn, ok := l.next()
		if !ok {
			return
		}
		if fn != nil {
			fn()
			continue
		}
		select {
		case <-ctx.Done():
			l.Close()
			return
		case <-l.wake:
		}
	}
}

// next pops the head of the queue. It returns ok=false once closed and a
// nil closure when the queue is empty.
func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, false
	}
	if len(l.queue) == 0 {
		return nil, true
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}
