package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoremedy/pkg/models"
)

type countingExecutor struct {
	active  int32
	peak    int32
	mu      sync.Mutex
	seen    []string
	release chan struct{}
}

func (e *countingExecutor) ExecuteRemediation(_ context.Context, id string) (*models.ExecutionSummary, error) {
	n := atomic.AddInt32(&e.active, 1)
	for {
		p := atomic.LoadInt32(&e.peak)
		if n <= p || atomic.CompareAndSwapInt32(&e.peak, p, n) {
			break
		}
	}
	<-e.release
	atomic.AddInt32(&e.active, -1)
	e.mu.Lock()
	e.seen = append(e.seen, id)
	e.mu.Unlock()
	return &models.ExecutionSummary{RemediationID: id, Status: models.RemediationSuccess}, nil
}

func TestRemediationPoolBoundsConcurrency(t *testing.T) {
	exec := &countingExecutor{release: make(chan struct{})}
	pool := NewRemediationPool(exec, 2, 10)

	var done sync.WaitGroup
	done.Add(5)
	pool.OnDone = func(string, *models.ExecutionSummary, error) { done.Done() }

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- pool.Run(ctx) }()

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, pool.Submit(id))
	}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&exec.active))

	close(exec.release)
	done.Wait()
	assert.Equal(t, int32(2), atomic.LoadInt32(&exec.peak))
	assert.Len(t, exec.seen, 5)

	cancel()
	assert.ErrorIs(t, <-runErr, context.Canceled)
	assert.ErrorIs(t, pool.Submit("f"), ErrPoolClosed)
}

func TestRemediationPoolRejectsWhenFull(t *testing.T) {
	pool := NewRemediationPool(&countingExecutor{release: make(chan struct{})}, 1, 1)
	require.NoError(t, pool.Submit("a"))
	assert.ErrorIs(t, pool.Submit("b"), ErrPoolFull)
}
