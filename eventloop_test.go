package netloop

import (
	"sync"
	"testing"
	"time"
)

func runLoop(t *testing.T, loop *EventLoop) func() {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := loop.Run(); err != nil {
			t.Errorf("Run: %v", err)
		}
	}()
	return func() {
		loop.Stop()
		<-done
	}
}

func TestEventLoopPostFromOwnerThreadRunsInline(t *testing.T) {
	loop, err := NewEventLoop("test")
	if err != nil {
		t.Fatalf("NewEventLoop: %v", err)
	}
	stop := runLoop(t, loop)
	defer stop()

	done := make(chan struct{})
	loop.Post(func() {
		// A Post issued from here is already running on the loop's own
		// goroutine, so the nested callback must run before this outer
		// one returns, not on some later iteration.
		var ranInline bool
		loop.Post(func() { ranInline = true })
		if !ranInline {
			t.Error("nested Post from the owner thread did not run inline")
		}
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("posted callback never ran")
	}
}

func TestEventLoopPostFromOtherGoroutinePreservesOrder(t *testing.T) {
	loop, err := NewEventLoop("test")
	if err != nil {
		t.Fatalf("NewEventLoop: %v", err)
	}
	stop := runLoop(t, loop)
	defer stop()

	var mu sync.Mutex
	var order []int
	done := make(chan struct{})

	for i := 0; i < 10; i++ {
		i := i
		loop.Post(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			if i == 9 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("posted callbacks never all ran")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("callbacks ran out of order: %v", order)
		}
	}
}

func TestEventLoopIsInLoopThread(t *testing.T) {
	loop, err := NewEventLoop("test")
	if err != nil {
		t.Fatalf("NewEventLoop: %v", err)
	}
	stop := runLoop(t, loop)
	defer stop()

	if loop.IsInLoopThread() {
		t.Fatal("test goroutine should not report as the loop thread")
	}

	done := make(chan bool, 1)
	loop.Post(func() { done <- loop.IsInLoopThread() })

	select {
	case inLoop := <-done:
		if !inLoop {
			t.Fatal("callback running inside Run should report IsInLoopThread() == true")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("posted callback never ran")
	}
}
