// Package alerts turns threshold rules over node metrics into incidents.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"autoremedy/internal/logger"
	"autoremedy/internal/metrics"
	"autoremedy/internal/store"
	"autoremedy/pkg/models"
)

// SourceAlertRule is the incident source set on rule-generated incidents.
const SourceAlertRule = "alert_rule"

// MetricSource returns recent samples of one node metric, newest first.
type MetricSource interface {
	RecentMetrics(ctx context.Context, nodeID, metricName string, since time.Time, limit int) ([]models.MetricSample, error)
}

// IncidentCreator persists an incident.
type IncidentCreator interface {
	CreateIncident(ctx context.Context, in models.NewIncident) (*models.Incident, error)
}

// Config controls rule evaluation.
type Config struct {
	Interval      time.Duration
	Window        time.Duration
	SampleLimit   int
	WatermarkSize int
}

// Evaluator checks every enabled rule against recent samples. A sample is considered
// by a rule at most once; the per-rule watermark records the newest sample seen.
type Evaluator struct {
	mu         sync.Mutex
	cfg        Config
	store      store.Store
	source     MetricSource
	incidents  IncidentCreator
	metrics    *metrics.Metrics
	watermarks *lru.Cache[string, time.Time]
	now        func() time.Time
}

// NewEvaluator creates an evaluator. Rules are read from st; samples from source.
func NewEvaluator(cfg Config, st store.Store, source MetricSource, incidents IncidentCreator, m *metrics.Metrics) (*Evaluator, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Window <= 0 {
		cfg.Window = 5 * time.Minute
	}
	if cfg.SampleLimit <= 0 {
		cfg.SampleLimit = 5
	}
	if cfg.WatermarkSize <= 0 {
		cfg.WatermarkSize = 4096
	}
	if st == nil || source == nil || incidents == nil {
		return nil, fmt.Errorf("alerts: store, metric source and incident creator are required")
	}
	cache, err := lru.New[string, time.Time](cfg.WatermarkSize)
	if err != nil {
		return nil, fmt.Errorf("alerts: watermark cache: %w", err)
	}
	return &Evaluator{
		cfg:        cfg,
		store:      st,
		source:     source,
		incidents:  incidents,
		metrics:    m,
		watermarks: cache,
		now:        time.Now,
	}, nil
}

// EvaluateAllRules runs one evaluation cycle and returns the incidents it created.
// Errors on individual rules do not stop the cycle; they are joined in the result.
func (e *Evaluator) EvaluateAllRules(ctx context.Context) ([]*models.Incident, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var rules []models.AlertRule
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		rules, err = tx.ListAlertRules(true)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list alert rules: %w", err)
	}

	since := e.now().Add(-e.cfg.Window)
	var (
		fired []*models.Incident
		errs  []error
	)
	for _, rule := range rules {
		inc, err := e.evaluate(ctx, rule, since)
		if err != nil {
			logger.Warnf("Alert rule %s (%s): %v", rule.ID, rule.Name, err)
			errs = append(errs, fmt.Errorf("rule %s: %w", rule.ID, err))
			continue
		}
		if inc != nil {
			fired = append(fired, inc)
		}
	}
	if len(fired) > 0 {
		logger.Infof("Alert evaluation fired %d of %d rules", len(fired), len(rules))
	}
	return fired, errors.Join(errs...)
}

func (e *Evaluator) evaluate(ctx context.Context, rule models.AlertRule, since time.Time) (*models.Incident, error) {
	samples, err := e.source.RecentMetrics(ctx, rule.NodeID, rule.MetricName, since, e.cfg.SampleLimit)
	if err != nil {
		return nil, err
	}

	mark, seen := e.watermarks.Get(rule.ID)
	var (
		newest time.Time
		hit    *models.MetricSample
	)
	for i := range samples {
		s := samples[i]
		if seen && !s.Timestamp.After(mark) {
			continue
		}
		if s.Timestamp.After(newest) {
			newest = s.Timestamp
		}
		matched, ok := rule.Matches(s.Value)
		if !ok {
			e.watermarks.Add(rule.ID, latest(newest, mark))
			return nil, fmt.Errorf("unknown condition %q", rule.Condition)
		}
		if matched && hit == nil {
			hit = &s
		}
	}
	if newest.IsZero() {
		return nil, nil
	}
	if hit == nil {
		e.watermarks.Add(rule.ID, newest)
		return nil, nil
	}

	inc, err := e.incidents.CreateIncident(ctx, incidentFor(rule, *hit))
	if err != nil {
		return nil, err
	}
	e.watermarks.Add(rule.ID, newest)
	e.metrics.AlertFired(rule.ID)
	logger.Infof("Alert %s fired on %s: %s=%g %s %g", rule.Name, rule.NodeID, rule.MetricName, hit.Value, rule.Condition, rule.Threshold)
	return inc, nil
}

func incidentFor(rule models.AlertRule, hit models.MetricSample) models.NewIncident {
	desc := rule.Description
	if desc == "" {
		desc = fmt.Sprintf("%s %s %g (observed %g) on node %s", rule.MetricName, rule.Condition, rule.Threshold, hit.Value, rule.NodeID)
	}
	return models.NewIncident{
		Title:       "Alert: " + rule.Name,
		Description: desc,
		Severity:    string(rule.Severity),
		Source:      SourceAlertRule,
		NodeID:      rule.NodeID,
		Metadata: map[string]string{
			"rule_id":        rule.ID,
			"condition":      rule.Condition,
			"threshold":      strconv.FormatFloat(rule.Threshold, 'g', -1, 64),
			"metric_name":    rule.MetricName,
			"observed_value": strconv.FormatFloat(hit.Value, 'g', -1, 64),
		},
	}
}

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

// Run evaluates all rules every Interval until ctx is done.
func (e *Evaluator) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := e.EvaluateAllRules(ctx); err != nil {
				logger.Warnf("Alert evaluation: %v", err)
			}
		}
	}
}
