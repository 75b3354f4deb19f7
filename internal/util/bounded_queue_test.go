package util

import (
	"context"
	"testing"
	"time"
)

func TestBoundedQueue_FIFO(t *testing.T) {
	q := NewBoundedQueue[int](0)
	for i := 1; i <= 3; i++ {
		if _, err := q.Push(i); err != nil {
			t.Fatalf("push failed: %v", err)
		}
	}

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		v, err := q.Pop(ctx, -1)
		if err != nil {
			t.Fatalf("pop failed: %v", err)
		}
		if v != i {
			t.Errorf("expected %d, got %d", i, v)
		}
	}

	if _, err := q.Pop(ctx, -1); err != ErrQueueEmpty {
		t.Errorf("expected ErrQueueEmpty, got %v", err)
	}
}

func TestBoundedQueue_DropOldest(t *testing.T) {
	q := NewBoundedQueue[int](2)
	q.Push(1)
	q.Push(2)

	dropped, err := q.Push(3)
	if err != nil {
		t.Fatalf("push failed: %v", err)
	}
	if !dropped {
		t.Fatal("expected oldest item to be dropped")
	}

	ctx := context.Background()
	v, _ := q.Pop(ctx, -1)
	if v != 2 {
		t.Errorf("expected 2 after drop, got %d", v)
	}
	v, _ = q.Pop(ctx, -1)
	if v != 3 {
		t.Errorf("expected 3, got %d", v)
	}
}

func TestBoundedQueue_BlockingPop(t *testing.T) {
	q := NewBoundedQueue[string](0)

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Push("hello")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := q.Pop(ctx, 0)
	if err != nil {
		t.Fatalf("blocking pop failed: %v", err)
	}
	if v != "hello" {
		t.Errorf("expected hello, got %s", v)
	}
}

func TestBoundedQueue_PopAfterClose(t *testing.T) {
	q := NewBoundedQueue[int](0)
	q.Push(7)
	q.Close()

	ctx := context.Background()
	v, err := q.Pop(ctx, -1)
	if err != nil {
		t.Fatalf("expected drain after close, got %v", err)
	}
	if v != 7 {
		t.Errorf("expected 7, got %d", v)
	}
	if _, err := q.Pop(ctx, -1); err != ErrQueueClosed {
		t.Errorf("expected ErrQueueClosed, got %v", err)
	}
	if _, err := q.Push(8); err != ErrQueueClosed {
		t.Errorf("expected push to fail after close, got %v", err)
	}
}
