package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoremedy/pkg/models"
)

type sliceConsumer struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (c *sliceConsumer) Pop(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	if len(c.payloads) > 0 {
		p := c.payloads[0]
		c.payloads = c.payloads[1:]
		c.mu.Unlock()
		return p, nil
	}
	c.mu.Unlock()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Millisecond):
		return nil, nil
	}
}

func (c *sliceConsumer) Close() error { return nil }

type recordingWriter struct {
	mu       sync.Mutex
	samples  []*models.MetricSample
	failures int
}

func (w *recordingWriter) WriteMetrics(samples []*models.MetricSample) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failures > 0 {
		w.failures--
		return errors.New("store unavailable")
	}
	w.samples = append(w.samples, samples...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.samples)
}

type rawRecorder struct {
	mu   sync.Mutex
	msgs int
}

func (r *rawRecorder) WriteRawMessages(m [][]byte) error {
	r.mu.Lock()
	r.msgs += len(m)
	r.mu.Unlock()
	return nil
}

func (r *rawRecorder) Close() error { return nil }

func TestMetricPipelineIngests(t *testing.T) {
	consumer := &sliceConsumer{payloads: [][]byte{
		[]byte(`{"node_id":"web-1","metric_name":"cpu_usage","value":97}`),
		[]byte(`garbage`),
		[]byte(`{"node_id":"web-1","metrics":{"disk_usage":91,"mem_usage":40}}`),
	}}
	writer := &recordingWriter{failures: 1}
	raw := &rawRecorder{}
	p := NewMetricPipeline(consumer, writer, raw, 2, 100, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return writer.count() == 3 }, 3*time.Second, 10*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 3, raw.msgs)
	require.NoError(t, p.Close())
}

func TestMultiMetricWriterJoinsErrors(t *testing.T) {
	ok := &recordingWriter{}
	bad := &recordingWriter{failures: 1}
	err := MultiMetricWriter{bad, ok}.WriteMetrics([]*models.MetricSample{{NodeID: "n", MetricName: "x"}})
	assert.Error(t, err)
	assert.Equal(t, 1, ok.count())
}
