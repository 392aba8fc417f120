package pipeline

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"autoremedy/internal/errs"
	"autoremedy/internal/logger"
	"autoremedy/pkg/models"
)

// ErrPoolFull is returned by Submit when the queue has no free slot.
var ErrPoolFull = errors.New("remediation queue is full")

// ErrPoolClosed is returned by Submit after the pool stopped.
var ErrPoolClosed = errors.New("remediation pool is closed")

// Executor runs one remediation to a terminal state.
type Executor interface {
	ExecuteRemediation(ctx context.Context, id string) (*models.ExecutionSummary, error)
}

// RemediationPool executes submitted remediation ids on a fixed number of workers.
type RemediationPool struct {
	exec    Executor
	workers int
	queue   chan string

	mu     sync.RWMutex
	closed bool

	// OnDone is called after each execution attempt, when set.
	OnDone func(id string, summary *models.ExecutionSummary, err error)
}

// NewRemediationPool creates a pool with the given worker count and queue depth.
func NewRemediationPool(exec Executor, workers, queueSize int) *RemediationPool {
	if workers <= 0 {
		workers = 10
	}
	if queueSize <= 0 {
		queueSize = workers * 4
	}
	return &RemediationPool{exec: exec, workers: workers, queue: make(chan string, queueSize)}
}

// Submit enqueues a remediation without blocking.
func (p *RemediationPool) Submit(id string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.queue <- id:
		return nil
	default:
		return ErrPoolFull
	}
}

// Run starts the workers and blocks until ctx is done and in-flight work has finished.
// Queued ids not yet started when ctx ends stay pending in the store.
func (p *RemediationPool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		g.Go(func() error {
			p.workerLoop(gctx)
			return nil
		})
	}
	err := g.Wait()

	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	if err != nil {
		return err
	}
	return ctx.Err()
}

func (p *RemediationPool) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-p.queue:
			summary, err := p.exec.ExecuteRemediation(ctx, id)
			switch {
			case err == nil:
				logger.Infof("Remediation %s finished: %s", id, summary.Status)
			case errs.IsState(err):
				logger.Warnf("Remediation %s skipped: %v", id, err)
			default:
				logger.Errorf("Remediation %s failed: %v", id, err)
			}
			if p.OnDone != nil {
				p.OnDone(id, summary, err)
			}
		}
	}
}
