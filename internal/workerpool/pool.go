// Package workerpool fans out independent DAP requests with bounded
// concurrency, used by the engine to fetch Variables across a frame's
// scopes (spec §4.5 step 4: "issue these either sequentially or with
// bounded parallelism"). Adapted from the teacher's
// internal/core/workers/pool.go: the resize/global-singleton/hardcoded
// 30s-per-task-timeout machinery is dropped. This pool has exactly one
// call site, so it trades the teacher's long-lived worker goroutines and
// submit queue for a simpler per-Batch goroutine fan-out, bounded by a
// semaphore and governed entirely by the caller's own context deadline.
package workerpool

import (
	"context"
	"runtime"
	"sync"
)

// Task is a unit of work submitted to a Batch call.
type Task struct {
	ID      string
	Execute func(ctx context.Context) (interface{}, error)
}

// Result is the outcome of one Task.
type Result struct {
	ID    string
	Data  interface{}
	Error error
}

// Pool bounds how many tasks run concurrently across Batch calls.
type Pool struct {
	sem chan struct{}
}

// New creates a Pool that runs at most `workers` tasks concurrently. If
// workers <= 0 it defaults to the number of CPU cores.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{sem: make(chan struct{}, workers)}
}

// Batch runs every task, each respecting ctx's deadline or cancellation,
// gated only by the pool's concurrency cap, and returns results aligned by
// index with the input tasks.
func (p *Pool) Batch(ctx context.Context, tasks []Task) []Result {
	results := make([]Result, len(tasks))
	var wg sync.WaitGroup

	for i, task := range tasks {
		wg.Add(1)
		go func(index int, t Task) {
			defer wg.Done()

			select {
			case p.sem <- struct{}{}:
			case <-ctx.Done():
				results[index] = Result{ID: t.ID, Error: ctx.Err()}
				return
			}
			defer func() { <-p.sem }()

			data, err := t.Execute(ctx)
			results[index] = Result{ID: t.ID, Data: data, Error: err}
		}(i, task)
	}

	wg.Wait()
	return results
}
