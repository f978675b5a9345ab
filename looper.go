package camdetect

import (
	"context"
	"sync"
	"sync/atomic"
)

// Looper runs posted tasks one at a time, in order, on the goroutine calling
// Run.  It is the context owning the overlay and view, every overlay change
// is made through it.
type Looper struct {
	tasks chan func()
	quit  chan struct{}
	done  chan struct{}
	stop  sync.Once
}

// NewLooper returns a looper buffering up to queue posted tasks
func NewLooper(queue int) *Looper {

	if queue < 1 {
		queue = 1
	}

	return &Looper{
		tasks: make(chan func(), queue),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Run executes tasks until Stop is called
func (l *Looper) Run() {

	defer close(l.done)

	for {
		select {
		case <-l.quit:
			return
		case fn := <-l.tasks:
			fn()
		}
	}
}

// Post queues fn to run on the looper, blocking while the queue is full.  It
// returns false if the looper has been stopped.
func (l *Looper) Post(fn func()) bool {
	select {
	case <-l.quit:
		return false
	default:
	}

	select {
	case <-l.quit:
		return false
	case l.tasks <- fn:
		return true
	}
}

// Call runs fn on the looper and waits for it to finish.  Every task posted
// before Call has run by the time fn runs.  When ctx is done before fn starts,
// fn is skipped and ctx.Err() returned.  Once fn has started Call waits for it
// regardless of ctx, so fn never runs after Call returns.  Call must not be
// made from a task running on the looper.
func (l *Looper) Call(ctx context.Context, fn func()) error {

	finished := make(chan struct{})

	// state moves from callPending to either callRunning or callCancelled
	var state atomic.Int32

	task := func() {
		if !state.CompareAndSwap(callPending, callRunning) {
			return
		}

		defer close(finished)
		fn()
	}

	posted := make(chan bool, 1)

	go func() {
		posted <- l.Post(task)
	}()

	select {
	case ok := <-posted:
		if !ok {
			state.CompareAndSwap(callPending, callCancelled)
			return ErrClosed
		}
	case <-ctx.Done():
		if state.CompareAndSwap(callPending, callCancelled) {
			return ctx.Err()
		}
		<-finished
		return nil
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		if state.CompareAndSwap(callPending, callCancelled) {
			return ErrClosed
		}
		<-finished
		return nil
	case <-ctx.Done():
		if state.CompareAndSwap(callPending, callCancelled) {
			return ctx.Err()
		}
		<-finished
		return nil
	}
}

// Call task states
const (
	callPending int32 = iota
	callRunning
	callCancelled
)

// TryPost queues fn to run on the looper without blocking.  It returns false
// if the queue is full or the looper has been stopped.
func (l *Looper) TryPost(fn func()) bool {
	select {
	case <-l.quit:
		return false
	default:
	}

	select {
	case l.tasks <- fn:
		return true
	default:
		return false
	}
}

// Stop ends Run after the task in progress, tasks still queued are dropped
func (l *Looper) Stop() {
	l.stop.Do(func() {
		close(l.quit)
	})
}

// Done is closed when Run has returned
func (l *Looper) Done() <-chan struct{} {
	return l.done
}
