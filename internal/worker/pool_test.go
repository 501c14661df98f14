package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowHandler simulates a loader for testing.
type slowHandler struct {
	delay     time.Duration
	fail      map[string]bool
	callCount atomic.Int32
	running   atomic.Int32
	peak      atomic.Int32
}

func (h *slowHandler) Handle(ctx context.Context, task Task) (string, error) {
	h.callCount.Add(1)
	n := h.running.Add(1)
	defer h.running.Add(-1)
	for {
		p := h.peak.Load()
		if n <= p || h.peak.CompareAndSwap(p, n) {
			break
		}
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(h.delay):
	}

	if h.fail[task.Name] {
		return "", errors.New("simulated failure")
	}
	return "loaded:" + task.Name, nil
}

func makeTasks(n int) []Task {
	tasks := make([]Task, n)
	for i := range tasks {
		tasks[i] = Task{Index: i, Name: fmt.Sprintf("layer-%d", i)}
	}
	return tasks
}

func TestPoolBasicExecution(t *testing.T) {
	h := &slowHandler{delay: 5 * time.Millisecond}
	pool := New(Config[string]{Workers: 2, Handler: h})

	results := pool.Run(context.Background(), makeTasks(5))
	require.Len(t, results, 5)

	for i, r := range results {
		assert.Equal(t, i, r.Task.Index, "results are in task order")
		assert.NoError(t, r.Err)
		assert.Equal(t, "loaded:"+r.Task.Name, r.Value)
	}
	assert.Equal(t, int32(5), h.callCount.Load())
}

func TestPoolParallelism(t *testing.T) {
	h := &slowHandler{delay: 30 * time.Millisecond}
	pool := New(Config[string]{Workers: 4, Handler: h})

	pool.Run(context.Background(), makeTasks(8))
	assert.LessOrEqual(t, h.peak.Load(), int32(4))
	assert.Greater(t, h.peak.Load(), int32(1), "expected tasks to overlap")
}

func TestPoolErrors(t *testing.T) {
	h := &slowHandler{fail: map[string]bool{"layer-1": true}}

	var lastCompleted, lastFailed int
	pool := New(Config[string]{
		Workers: 3,
		Handler: h,
		OnProgress: func(completed, total, failed int) {
			lastCompleted, lastFailed = completed, failed
			assert.Equal(t, 3, total)
		},
	})

	results := pool.Run(context.Background(), makeTasks(3))
	failed := Failed(results)
	require.Len(t, failed, 1)
	assert.Equal(t, "layer-1", failed[0].Task.Name)
	assert.Equal(t, 3, lastCompleted)
	assert.Equal(t, 1, lastFailed)
}

func TestPoolCancellation(t *testing.T) {
	h := &slowHandler{delay: time.Second}
	pool := New(Config[string]{Workers: 1, Handler: h})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	results := pool.Run(ctx, makeTasks(4))
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	require.Len(t, results, 4, "every task gets a result")
	for _, r := range results {
		assert.True(t, errors.Is(r.Err, context.DeadlineExceeded), "task %d: %v", r.Task.Index, r.Err)
	}
}

func TestPoolHandlerFunc(t *testing.T) {
	pool := New(Config[int]{
		Handler: HandlerFunc[int](func(_ context.Context, task Task) (int, error) {
			return task.Index * 10, nil
		}),
	})

	results := pool.Run(context.Background(), makeTasks(3))
	require.Len(t, results, 3)
	assert.Equal(t, 20, results[2].Value)

	assert.Nil(t, pool.Run(context.Background(), nil))
}
