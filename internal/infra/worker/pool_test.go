// File: internal/infra/worker/pool_test.go
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestChunkRunnerRunsAllTasks(t *testing.T) {
	r := NewChunkRunner(3)
	var ran int32
	tasks := make([]Task, 10)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) error {
			atomic.AddInt32(&ran, 1)
			return nil
		}
	}
	r.Run(context.Background(), tasks, nil)
	if ran != 10 {
		t.Fatalf("ran = %d, want 10", ran)
	}
}

func TestChunkRunnerBoundsConcurrency(t *testing.T) {
	const width = 2
	r := NewChunkRunner(width)
	var cur, peak int32
	var mu sync.Mutex
	tasks := make([]Task, 8)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) error {
			n := atomic.AddInt32(&cur, 1)
			mu.Lock()
			if n > peak {
				peak = n
			}
			mu.Unlock()
			atomic.AddInt32(&cur, -1)
			return nil
		}
	}
	r.Run(context.Background(), tasks, nil)
	if peak > width {
		t.Fatalf("peak concurrency = %d, want <= %d", peak, width)
	}
}

func TestChunkRunnerDeliversErrors(t *testing.T) {
	r := NewChunkRunner(4)
	boom := errors.New("boom")
	tasks := []Task{
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error { return boom },
		nil, // skipped
		func(ctx context.Context) error { return nil },
	}
	var mu sync.Mutex
	failed := map[int]error{}
	r.Run(context.Background(), tasks, func(i int, err error) {
		mu.Lock()
		failed[i] = err
		mu.Unlock()
	})
	if len(failed) != 1 || !errors.Is(failed[1], boom) {
		t.Fatalf("failed = %v, want only index 1", failed)
	}
}

func TestChunkRunnerZeroWidth(t *testing.T) {
	r := NewChunkRunner(0)
	if r.Width() != 1 {
		t.Fatalf("width = %d, want clamped to 1", r.Width())
	}
}
