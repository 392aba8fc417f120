package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"autoremedy/internal/errs"
	"autoremedy/pkg/models"
)

type metricKey struct {
	node   string
	metric string
}

type memState struct {
	incidents     map[string]models.Incident
	remediations  map[string]models.Remediation
	logs          map[string][]models.RemediationLog
	analyses      map[string][]models.Analysis
	notifications map[string][]models.Notification
	nodes         map[string]models.InfrastructureNode
	rules         map[string]models.AlertRule
	metrics       map[metricKey][]models.MetricSample
}

func newMemState() memState {
	return memState{
		incidents:     map[string]models.Incident{},
		remediations:  map[string]models.Remediation{},
		logs:          map[string][]models.RemediationLog{},
		analyses:      map[string][]models.Analysis{},
		notifications: map[string][]models.Notification{},
		nodes:         map[string]models.InfrastructureNode{},
		rules:         map[string]models.AlertRule{},
		metrics:       map[metricKey][]models.MetricSample{},
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// snapshot copies the top-level maps. Records are stored by value and slices are only
// appended to, so restoring the copies undoes every write made since.
func (s memState) snapshot() memState {
	return memState{
		incidents:     copyMap(s.incidents),
		remediations:  copyMap(s.remediations),
		logs:          copyMap(s.logs),
		analyses:      copyMap(s.analyses),
		notifications: copyMap(s.notifications),
		nodes:         copyMap(s.nodes),
		rules:         copyMap(s.rules),
		metrics:       copyMap(s.metrics),
	}
}

// MemoryStore is an in-process Store. Transactions are serialized.
type MemoryStore struct {
	mu         sync.Mutex
	state      memState
	maxMetrics int
}

// NewMemoryStore creates an empty store keeping at most maxMetrics samples per series.
func NewMemoryStore(maxMetrics int) *MemoryStore {
	if maxMetrics <= 0 {
		maxMetrics = 1000
	}
	return &MemoryStore{state: newMemState(), maxMetrics: maxMetrics}
}

// WithTx implements Store.
func (m *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	saved := m.state.snapshot()
	if err := fn(&memTx{s: &m.state, maxMetrics: m.maxMetrics}); err != nil {
		m.state = saved
		return err
	}
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }

type memTx struct {
	s          *memState
	maxMetrics int
}

func (t *memTx) InsertIncident(inc *models.Incident) error {
	if _, ok := t.s.incidents[inc.ID]; ok {
		return errs.State("incident %s already exists", inc.ID)
	}
	t.s.incidents[inc.ID] = CloneIncident(*inc)
	return nil
}

func (t *memTx) GetIncident(id string) (*models.Incident, error) {
	inc, ok := t.s.incidents[id]
	if !ok {
		return nil, errs.NotFound("incident", id)
	}
	out := CloneIncident(inc)
	return &out, nil
}

func (t *memTx) ResolveIncident(id string, at time.Time) error {
	inc, ok := t.s.incidents[id]
	if !ok {
		return errs.NotFound("incident", id)
	}
	if inc.Status == models.IncidentResolved {
		return nil
	}
	inc = CloneIncident(inc)
	inc.Resolve(at)
	t.s.incidents[id] = inc
	return nil
}

func (t *memTx) InsertRemediation(rem *models.Remediation) error {
	if _, ok := t.s.remediations[rem.ID]; ok {
		return errs.State("remediation %s already exists", rem.ID)
	}
	t.s.remediations[rem.ID] = CloneRemediation(*rem)
	return nil
}

func (t *memTx) GetRemediation(id string) (*models.Remediation, error) {
	rem, ok := t.s.remediations[id]
	if !ok {
		return nil, errs.NotFound("remediation", id)
	}
	out := CloneRemediation(rem)
	return &out, nil
}

func (t *memTx) ListRemediations(incidentID string) ([]models.Remediation, error) {
	var out []models.Remediation
	for _, rem := range t.s.remediations {
		if rem.IncidentID == incidentID {
			out = append(out, CloneRemediation(rem))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *memTx) ClaimRemediation(id string, at time.Time) (*models.Remediation, error) {
	rem, ok := t.s.remediations[id]
	if !ok {
		return nil, errs.NotFound("remediation", id)
	}
	if rem.Status != models.RemediationPending {
		return nil, errs.State("remediation %s is %s, not pending", id, rem.Status)
	}
	rem = CloneRemediation(rem)
	rem.Status = models.RemediationInProgress
	ts := at
	rem.StartedAt = &ts
	t.s.remediations[id] = rem
	out := CloneRemediation(rem)
	return &out, nil
}

func (t *memTx) CompleteRemediation(id string, status models.RemediationStatus, result models.ExecutionResult, at time.Time) (*models.Remediation, error) {
	if !status.Terminal() {
		return nil, errs.Validation("status %s is not terminal", status)
	}
	rem, ok := t.s.remediations[id]
	if !ok {
		return nil, errs.NotFound("remediation", id)
	}
	if rem.Status != models.RemediationInProgress {
		return nil, errs.State("remediation %s is %s, not in_progress", id, rem.Status)
	}
	rem = CloneRemediation(rem)
	rem.Status = status
	ts := at
	rem.CompletedAt = &ts
	r := result
	rem.Result = &r
	t.s.remediations[id] = CloneRemediation(rem)
	return &rem, nil
}

func (t *memTx) AppendRemediationLog(entry *models.RemediationLog) error {
	t.s.logs[entry.RemediationID] = append(t.s.logs[entry.RemediationID], *entry)
	return nil
}

func (t *memTx) ListRemediationLogs(remediationID string) ([]models.RemediationLog, error) {
	logs := t.s.logs[remediationID]
	out := make([]models.RemediationLog, len(logs))
	copy(out, logs)
	return out, nil
}

func (t *memTx) InsertAnalysis(a *models.Analysis) error {
	t.s.analyses[a.IncidentID] = append(t.s.analyses[a.IncidentID], cloneAnalysis(*a))
	return nil
}

func (t *memTx) LatestAnalysis(incidentID string) (*models.Analysis, error) {
	list := t.s.analyses[incidentID]
	if len(list) == 0 {
		return nil, errs.NotFound("analysis", incidentID)
	}
	latest := list[0]
	for _, a := range list[1:] {
		if !a.CreatedAt.Before(latest.CreatedAt) {
			latest = a
		}
	}
	out := cloneAnalysis(latest)
	return &out, nil
}

func (t *memTx) InsertNotification(n *models.Notification) error {
	t.s.notifications[n.IncidentID] = append(t.s.notifications[n.IncidentID], *n)
	return nil
}

func (t *memTx) ListNotifications(incidentID string) ([]models.Notification, error) {
	list := t.s.notifications[incidentID]
	out := make([]models.Notification, len(list))
	copy(out, list)
	return out, nil
}

func (t *memTx) UpsertNode(node models.InfrastructureNode) error {
	t.s.nodes[node.ID] = cloneNode(models.NewNode(node))
	return nil
}

func (t *memTx) GetNode(id string) (*models.InfrastructureNode, error) {
	n, ok := t.s.nodes[id]
	if !ok {
		return nil, errs.NotFound("node", id)
	}
	out := cloneNode(n)
	return &out, nil
}

func (t *memTx) ListNodes() ([]models.InfrastructureNode, error) {
	out := make([]models.InfrastructureNode, 0, len(t.s.nodes))
	for _, n := range t.s.nodes {
		out = append(out, cloneNode(n))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) UpsertAlertRule(rule models.AlertRule) error {
	t.s.rules[rule.ID] = rule
	return nil
}

func (t *memTx) ListAlertRules(enabledOnly bool) ([]models.AlertRule, error) {
	out := make([]models.AlertRule, 0, len(t.s.rules))
	for _, r := range t.s.rules {
		if enabledOnly && !r.Enabled {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) InsertMetric(sample models.MetricSample) error {
	key := metricKey{node: sample.NodeID, metric: sample.MetricName}
	series := append(t.s.metrics[key], sample)
	if len(series) > t.maxMetrics {
		trimmed := make([]models.MetricSample, t.maxMetrics)
		copy(trimmed, series[len(series)-t.maxMetrics:])
		series = trimmed
	}
	t.s.metrics[key] = series
	return nil
}

func (t *memTx) RecentMetrics(nodeID, metricName string, since time.Time, limit int) ([]models.MetricSample, error) {
	series := t.s.metrics[metricKey{node: nodeID, metric: metricName}]
	out := make([]models.MetricSample, 0, len(series))
	for _, s := range series {
		if !s.Timestamp.Before(since) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
