package camdetect

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestLooperRunsInOrder(t *testing.T) {

	l := NewLooper(4)
	go l.Run()
	defer l.Stop()

	var got []int

	for i := 0; i < 10; i++ {
		i := i
		if !l.Post(func() { got = append(got, i) }) {
			t.Fatalf("post %d refused", i)
		}
	}

	if err := l.Call(context.Background(), func() {}); err != nil {
		t.Fatal(err)
	}

	if len(got) != 10 {
		t.Fatalf("expected 10 tasks run, got %d", len(got))
	}

	for i, v := range got {
		if v != i {
			t.Errorf("task %d ran out of order, got %d", i, v)
		}
	}
}

func TestLooperStop(t *testing.T) {

	l := NewLooper(1)
	go l.Run()

	l.Stop()

	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("run did not return after stop")
	}

	if l.Post(func() {}) {
		t.Error("post accepted after stop")
	}

	if err := l.Call(context.Background(), func() {}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	// stopping twice is allowed
	l.Stop()
}

func TestLooperCallContext(t *testing.T) {

	l := NewLooper(1)
	go l.Run()
	defer l.Stop()

	release := make(chan struct{})
	l.Post(func() { <-release })
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Call(ctx, func() {})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestLooperCallCancelledSkipsTask(t *testing.T) {

	l := NewLooper(1)
	go l.Run()
	defer l.Stop()

	release := make(chan struct{})
	l.Post(func() { <-release })

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	var returned, ranAfter atomic.Bool

	err := l.Call(ctx, func() {
		if returned.Load() {
			ranAfter.Store(true)
		}
	})

	returned.Store(true)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}

	close(release)

	// wait for the looper to reach the skipped task and pass it
	if err := l.Call(context.Background(), func() {}); err != nil {
		t.Fatal(err)
	}

	if ranAfter.Load() {
		t.Error("task ran after Call returned")
	}
}

func TestLooperCallWaitsForStartedTask(t *testing.T) {

	l := NewLooper(1)
	go l.Run()
	defer l.Stop()

	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	release := make(chan struct{})

	go func() {
		<-started
		cancel()
		time.Sleep(10 * time.Millisecond)
		close(release)
	}()

	var finished atomic.Bool

	err := l.Call(ctx, func() {
		close(started)
		<-release
		finished.Store(true)
	})

	if err != nil {
		t.Errorf("expected started task to complete, got %v", err)
	}

	if !finished.Load() {
		t.Error("Call returned before the task finished")
	}
}

func TestLooperTryPost(t *testing.T) {

	l := NewLooper(1)

	if !l.TryPost(func() {}) {
		t.Fatal("try post refused with an empty queue")
	}

	if l.TryPost(func() {}) {
		t.Error("try post accepted with a full queue")
	}

	l.Stop()

	if l.TryPost(func() {}) {
		t.Error("try post accepted after stop")
	}
}
