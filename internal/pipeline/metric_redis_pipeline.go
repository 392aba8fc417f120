package pipeline

import (
	"context"
	"sync"
	"time"

	"autoremedy/internal/logger"
	"autoremedy/internal/transform/metricjson"
	"autoremedy/pkg/models"
)

// Consumer yields raw queue payloads. Pop returns nil, nil when nothing arrived.
type Consumer interface {
	Pop(ctx context.Context) ([]byte, error)
	Close() error
}

// MetricPipeline consumes metric payloads from a queue and writes samples in batches.
type MetricPipeline struct {
	consumer      Consumer
	writer        MetricWriter
	rawWriter     RawWriter
	workers       int
	batchSize     int
	flushInterval time.Duration
}

// NewMetricPipeline creates a metric ingest pipeline. rawWriter may be nil.
func NewMetricPipeline(consumer Consumer, writer MetricWriter, rawWriter RawWriter, workers, batchSize int, flushInterval time.Duration) *MetricPipeline {
	return &MetricPipeline{
		consumer:      consumer,
		writer:        writer,
		rawWriter:     rawWriter,
		workers:       workers,
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}
}

// Run starts the pipeline loop and blocks until ctx is done.
func (p *MetricPipeline) Run(ctx context.Context) error {
	logger.Infof("Metric ingest pipeline started")

	if p.workers <= 0 {
		p.workers = 4
	}
	if p.batchSize <= 0 {
		p.batchSize = 500
	}
	if p.flushInterval <= 0 {
		p.flushInterval = 2 * time.Second
	}

	msgCh := make(chan []byte, p.workers*4)
	workCh := make(chan []*models.MetricSample, p.workers*4)

	var readers sync.WaitGroup
	readers.Add(1)
	go func() {
		defer readers.Done()
		p.readLoop(ctx, msgCh)
		close(msgCh)
	}()

	var workers sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			p.workerLoop(msgCh, workCh)
		}()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.writeLoop(ctx, workCh)
	}()

	readers.Wait()
	workers.Wait()
	close(workCh)
	<-done
	return ctx.Err()
}

// Close releases pipeline resources.
func (p *MetricPipeline) Close() error {
	if p.rawWriter != nil {
		if err := p.rawWriter.Close(); err != nil {
			logger.Errorf("Failed to close raw writer: %v", err)
		}
	}
	if p.writer != nil {
		if err := p.writer.Close(); err != nil {
			logger.Errorf("Failed to close metric writer: %v", err)
		}
	}
	if p.consumer != nil {
		return p.consumer.Close()
	}
	return nil
}

func (p *MetricPipeline) readLoop(ctx context.Context, out chan<- []byte) {
	for {
		if ctx.Err() != nil {
			return
		}
		payload, err := p.consumer.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Errorf("Failed to pop metric payload: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}
		if payload == nil {
			continue
		}
		if p.rawWriter != nil {
			if err := p.rawWriter.WriteRawMessages([][]byte{payload}); err != nil {
				logger.Warnf("Failed to capture raw payload: %v", err)
			}
		}
		select {
		case out <- payload:
		case <-ctx.Done():
			return
		}
	}
}

func (p *MetricPipeline) workerLoop(in <-chan []byte, out chan<- []*models.MetricSample) {
	for payload := range in {
		samples, err := metricjson.Parse(payload)
		if err != nil {
			logger.Warnf("Failed to parse metric payload: %v", err)
			continue
		}
		if len(samples) > 0 {
			out <- samples
		}
	}
}

func (p *MetricPipeline) writeLoop(ctx context.Context, in <-chan []*models.MetricSample) {
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	var batch []*models.MetricSample
	flush := func(final bool) {
		for len(batch) > 0 {
			err := p.writer.WriteMetrics(batch)
			if err == nil {
				batch = nil
				return
			}
			logger.Errorf("Failed to write %d metric samples: %v", len(batch), err)
			if final || ctx.Err() != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}

	for {
		select {
		case <-ticker.C:
			flush(false)
		case samples, ok := <-in:
			if !ok {
				flush(true)
				return
			}
			batch = append(batch, samples...)
			if len(batch) >= p.batchSize {
				flush(false)
			}
		}
	}
}
