package pipeline

import (
	"errors"

	"autoremedy/pkg/models"
)

// MetricWriter persists metric samples.
type MetricWriter interface {
	WriteMetrics(samples []*models.MetricSample) error
	Close() error
}

// MultiMetricWriter fans a batch out to every writer. All writers are attempted; their
// errors are joined.
type MultiMetricWriter []MetricWriter

// WriteMetrics implements MetricWriter.
func (m MultiMetricWriter) WriteMetrics(samples []*models.MetricSample) error {
	var errs []error
	for _, w := range m {
		if err := w.WriteMetrics(samples); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements MetricWriter.
func (m MultiMetricWriter) Close() error {
	var errs []error
	for _, w := range m {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CountingMetricWriter reports the size of every batch written without error.
type CountingMetricWriter struct {
	MetricWriter
	OnWrite func(n int)
}

// WriteMetrics implements MetricWriter.
func (c CountingMetricWriter) WriteMetrics(samples []*models.MetricSample) error {
	if err := c.MetricWriter.WriteMetrics(samples); err != nil {
		return err
	}
	if c.OnWrite != nil {
		c.OnWrite(len(samples))
	}
	return nil
}
