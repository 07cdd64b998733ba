package async

import (
	"context"
	"sync"
)

// Executor runs posted functions serially on its owner context.
// Post never blocks, so it is safe to call from a real-time audio callback.
type Executor interface {
	Post(f func())
}

// Loop is a manually pumped Executor: the goroutine calling RunPending or Run
// is the owner. Tests pump it from the test goroutine.
type Loop struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
}

func NewLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

func (l *Loop) Post(f func()) {
	l.mu.Lock()
	l.queue = append(l.queue, f)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Wake fires after a Post. It may fire spuriously.
func (l *Loop) Wake() <-chan struct{} {
	return l.wake
}

// Pending is the number of queued functions.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// RunPending runs queued functions until the queue is empty, including the
// ones posted while running. It returns how many ran.
func (l *Loop) RunPending() int {
	n := 0
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return n
		}
		f := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		f()
		n++
	}
}

// Run pumps the loop until ctx is done.
func (l *Loop) Run(ctx context.Context) {
	for {
		l.RunPending()
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}
	}
}

// Serial is a Loop pumped by its own goroutine. That goroutine is the owner;
// use Do to run code on it from elsewhere.
type Serial struct {
	*Loop
	cancel context.CancelFunc
	done   <-chan struct{}
}

func NewSerial() *Serial {
	ctx, cancel := context.WithCancel(context.Background())
	loop := NewLoop()
	return &Serial{
		Loop:   loop,
		cancel: cancel,
		done:   Job(func() { loop.Run(ctx) }),
	}
}

// Do runs f on the owner goroutine and waits for it to return.
// Calling Do from the owner goroutine itself deadlocks.
func (s *Serial) Do(f func()) {
	finished := make(chan struct{})
	s.Post(func() {
		defer close(finished)
		f()
	})
	select {
	case <-finished:
	case <-s.done:
	}
}

// Close stops the owner goroutine; queued functions that did not run yet are
// discarded.
func (s *Serial) Close() {
	s.cancel()
	<-s.done
}
