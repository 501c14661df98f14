// Package worker runs independent tasks on a fixed number of goroutines.
package worker

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Task identifies one unit of work. Index orders the results.
type Task struct {
	Index int
	Name  string
}

// Handler performs a task.
type Handler[T any] interface {
	Handle(ctx context.Context, task Task) (T, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[T any] func(ctx context.Context, task Task) (T, error)

// Handle calls f.
func (f HandlerFunc[T]) Handle(ctx context.Context, task Task) (T, error) {
	return f(ctx, task)
}

// Result is the outcome of a task.
type Result[T any] struct {
	Task    Task
	Value   T
	Err     error
	Elapsed time.Duration
}

// ProgressFunc is called after each task completes.
type ProgressFunc func(completed, total, failed int)

// Config configures the worker pool.
type Config[T any] struct {
	Workers    int
	Handler    Handler[T]
	OnProgress ProgressFunc
}

// Pool runs tasks in parallel.
type Pool[T any] struct {
	workers    int
	handler    Handler[T]
	onProgress ProgressFunc
}

// New creates a new worker pool. Workers below 1 means 1.
func New[T any](cfg Config[T]) *Pool[T] {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	return &Pool[T]{
		workers:    workers,
		handler:    cfg.Handler,
		onProgress: cfg.OnProgress,
	}
}

// Run executes all tasks and blocks until each has a result. Tasks not
// started before ctx is cancelled get ctx.Err() as their error. Results are
// sorted by Task.Index.
func (p *Pool[T]) Run(ctx context.Context, tasks []Task) []Result[T] {
	if len(tasks) == 0 {
		return nil
	}

	taskCh := make(chan Task, len(tasks))
	for _, task := range tasks {
		taskCh <- task
	}
	close(taskCh)

	resultCh := make(chan Result[T], len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < min(p.workers, len(tasks)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx, taskCh, resultCh)
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make([]Result[T], 0, len(tasks))
	failed := 0
	for result := range resultCh {
		results = append(results, result)
		if result.Err != nil {
			failed++
		}
		if p.onProgress != nil {
			p.onProgress(len(results), len(tasks), failed)
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Task.Index < results[j].Task.Index })
	return results
}

func (p *Pool[T]) worker(ctx context.Context, tasks <-chan Task, results chan<- Result[T]) {
	for task := range tasks {
		if err := ctx.Err(); err != nil {
			results <- Result[T]{Task: task, Err: err}
			continue
		}

		start := time.Now()
		value, err := p.handler.Handle(ctx, task)
		results <- Result[T]{
			Task:    task,
			Value:   value,
			Err:     err,
			Elapsed: time.Since(start),
		}
	}
}

// Failed returns the results that carry an error.
func Failed[T any](results []Result[T]) []Result[T] {
	var out []Result[T]
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
