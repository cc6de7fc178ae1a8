package loop

import (
	"context"
	"testing"
	"time"
)

func TestLoop_RunsInOrder(t *testing.T) {
	l := New()
	go l.Run(context.Background())
	defer l.Close()

	got := make(chan int, 100)
	for i := 0; i < 100; i++ {
		i := i
		l.Post(func() { got <- i })
	}

	for want := 0; want < 100; want++ {
		select {
		case v := <-got:
			if v != want {
				t.Fatalf("expected %d, got %d", want, v)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for task %d", want)
		}
	}
}

func TestLoop_NestedPostRunsAfterCurrent(t *testing.T) {
	l := New()
	go l.Run(context.Background())
	defer l.Close()

	order := make(chan string, 3)
	l.Post(func() {
		l.Post(func() { order <- "inner" })
		order <- "outer"
	})
	l.Post(func() { order <- "second" })

	want := []string{"outer", "second", "inner"}
	for _, w := range want {
		select {
		case v := <-order:
			if v != w {
				t.Fatalf("expected %q, got %q", w, v)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %q", w)
		}
	}
}

func TestLoop_CloseFromInsideTask(t *testing.T) {
	l := New()
	go l.Run(context.Background())

	ran := make(chan struct{}, 1)
	l.Post(func() {
		l.Close()
	})
	l.Post(func() { ran <- struct{}{} })

	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}

	select {
	case <-ran:
		t.Error("task queued behind Close should not run")
	default:
	}

	if l.Post(func() {}) {
		t.Error("expected Post to fail after Close")
	}
}

func TestLoop_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := New()
	go l.Run(ctx)

	cancel()

	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not stop on cancel")
	}
	if !l.Closed() {
		t.Error("expected loop to report closed")
	}
}
