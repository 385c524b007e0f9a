// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"sync"
)

// Task is one unit of chunk work. Errors are handled by the submitter's
// callback; a task never aborts its siblings.
type Task func(ctx context.Context) error

// ChunkRunner executes a slice of tasks with bounded concurrency and waits
// for the whole chunk to resolve before returning. This is the execution
// primitive under the batch orchestrator: one call per chunk, every task in
// the chunk finished (successfully or not) before the next chunk starts.
type ChunkRunner struct {
	width int
}

func NewChunkRunner(width int) *ChunkRunner {
	if width <= 0 {
		width = 1
	}
	return &ChunkRunner{width: width}
}

func (r *ChunkRunner) Width() int { return r.width }

// Run executes tasks concurrently, at most width at a time, and blocks until
// all have returned. Per-task errors are delivered to onErr (may be nil);
// they never propagate out of Run.
func (r *ChunkRunner) Run(ctx context.Context, tasks []Task, onErr func(i int, err error)) {
	sem := make(chan struct{}, r.width)
	var wg sync.WaitGroup
	for i, task := range tasks {
		if task == nil {
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, task Task) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := task(ctx); err != nil && onErr != nil {
				onErr(i, err)
			}
		}(i, task)
	}
	wg.Wait()
}
