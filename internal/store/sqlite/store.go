// Package sqlite is a store.Store backed by a pure-Go SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"autoremedy/internal/errs"
	"autoremedy/internal/store"
	"autoremedy/pkg/models"
)

// Store persists engine state in a SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

// WithTx implements store.Store.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Internal("begin transaction", err)
	}
	if err := fn(&tx{ctx: ctx, tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return errs.Internal("commit transaction", err)
	}
	return nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

type tx struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t *tx) exec(query string, args ...interface{}) (sql.Result, error) {
	return t.tx.ExecContext(t.ctx, query, args...)
}

func unixNano(ts time.Time) int64 { return ts.UTC().UnixNano() }

func fromUnix(v int64) time.Time { return time.Unix(0, v).UTC() }

func nullTime(ts *time.Time) interface{} {
	if ts == nil {
		return nil
	}
	return unixNano(*ts)
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	ts := fromUnix(v.Int64)
	return &ts
}

func encodeJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeJSON(raw sql.NullString, v interface{}) error {
	if !raw.Valid || raw.String == "" || raw.String == "null" {
		return nil
	}
	return json.Unmarshal([]byte(raw.String), v)
}

func (t *tx) InsertIncident(inc *models.Incident) error {
	meta, err := encodeJSON(inc.Metadata)
	if err != nil {
		return err
	}
	_, err = t.exec(`INSERT INTO incidents (id, title, description, severity, source, node_id, status, metadata, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inc.ID, inc.Title, inc.Description, string(inc.Severity), inc.Source, inc.NodeID, string(inc.Status), meta,
		unixNano(inc.CreatedAt), nullTime(inc.ResolvedAt))
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

func (t *tx) GetIncident(id string) (*models.Incident, error) {
	var (
		inc        models.Incident
		severity   string
		status     string
		meta       sql.NullString
		created    int64
		resolvedAt sql.NullInt64
	)
	err := t.tx.QueryRowContext(t.ctx, `SELECT id, title, description, severity, source, node_id, status, metadata, created_at, resolved_at
		FROM incidents WHERE id = ?`, id).
		Scan(&inc.ID, &inc.Title, &inc.Description, &severity, &inc.Source, &inc.NodeID, &status, &meta, &created, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("incident", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get incident: %w", err)
	}
	inc.Severity = models.Severity(severity)
	inc.Status = models.IncidentStatus(status)
	inc.CreatedAt = fromUnix(created)
	inc.ResolvedAt = timePtr(resolvedAt)
	if err := decodeJSON(meta, &inc.Metadata); err != nil {
		return nil, fmt.Errorf("decode incident metadata: %w", err)
	}
	return &inc, nil
}

func (t *tx) ResolveIncident(id string, at time.Time) error {
	res, err := t.exec(`UPDATE incidents SET status = ?, resolved_at = ? WHERE id = ? AND status != ?`,
		string(models.IncidentResolved), unixNano(at), id, string(models.IncidentResolved))
	if err != nil {
		return fmt.Errorf("resolve incident: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var one int
	err = t.tx.QueryRowContext(t.ctx, `SELECT 1 FROM incidents WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return errs.NotFound("incident", id)
	}
	if err != nil {
		return fmt.Errorf("resolve incident: %w", err)
	}
	return nil
}

func (t *tx) InsertRemediation(rem *models.Remediation) error {
	params, err := encodeJSON(rem.Parameters)
	if err != nil {
		return err
	}
	var result interface{}
	if rem.Result != nil {
		if result, err = encodeJSON(rem.Result); err != nil {
			return err
		}
	}
	_, err = t.exec(`INSERT INTO remediations (id, incident_id, action_type, target_node_id, parameters, status, result, created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rem.ID, rem.IncidentID, rem.ActionType, rem.TargetNodeID, params, string(rem.Status), result,
		unixNano(rem.CreatedAt), nullTime(rem.StartedAt), nullTime(rem.CompletedAt))
	if err != nil {
		return fmt.Errorf("insert remediation: %w", err)
	}
	return nil
}

const remediationColumns = `id, incident_id, action_type, target_node_id, parameters, status, result, created_at, started_at, completed_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRemediation(row rowScanner) (*models.Remediation, error) {
	var (
		rem       models.Remediation
		params    sql.NullString
		status    string
		result    sql.NullString
		created   int64
		started   sql.NullInt64
		completed sql.NullInt64
	)
	if err := row.Scan(&rem.ID, &rem.IncidentID, &rem.ActionType, &rem.TargetNodeID, &params, &status, &result, &created, &started, &completed); err != nil {
		return nil, err
	}
	rem.Status = models.RemediationStatus(status)
	rem.CreatedAt = fromUnix(created)
	rem.StartedAt = timePtr(started)
	rem.CompletedAt = timePtr(completed)
	if err := decodeJSON(params, &rem.Parameters); err != nil {
		return nil, fmt.Errorf("decode parameters: %w", err)
	}
	if result.Valid && result.String != "" {
		var r models.ExecutionResult
		if err := json.Unmarshal([]byte(result.String), &r); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		rem.Result = &r
	}
	return &rem, nil
}

func (t *tx) GetRemediation(id string) (*models.Remediation, error) {
	row := t.tx.QueryRowContext(t.ctx, `SELECT `+remediationColumns+` FROM remediations WHERE id = ?`, id)
	rem, err := scanRemediation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("remediation", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get remediation: %w", err)
	}
	return rem, nil
}

func (t *tx) ListRemediations(incidentID string) ([]models.Remediation, error) {
	rows, err := t.tx.QueryContext(t.ctx, `SELECT `+remediationColumns+` FROM remediations WHERE incident_id = ? ORDER BY created_at`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list remediations: %w", err)
	}
	defer rows.Close()
	var out []models.Remediation
	for rows.Next() {
		rem, err := scanRemediation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan remediation: %w", err)
		}
		out = append(out, *rem)
	}
	return out, rows.Err()
}

// transition runs a compare-and-set update and distinguishes a missing row from a
// row in the wrong state.
func (t *tx) transition(id string, from models.RemediationStatus, query string, args ...interface{}) (*models.Remediation, error) {
	res, err := t.exec(query, args...)
	if err != nil {
		return nil, fmt.Errorf("update remediation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update remediation: %w", err)
	}
	if n == 0 {
		current, err := t.GetRemediation(id)
		if err != nil {
			return nil, err
		}
		return nil, errs.State("remediation %s is %s, not %s", id, current.Status, from)
	}
	return t.GetRemediation(id)
}

func (t *tx) ClaimRemediation(id string, at time.Time) (*models.Remediation, error) {
	return t.transition(id, models.RemediationPending,
		`UPDATE remediations SET status = ?, started_at = ? WHERE id = ? AND status = ?`,
		string(models.RemediationInProgress), unixNano(at), id, string(models.RemediationPending))
}

func (t *tx) CompleteRemediation(id string, status models.RemediationStatus, result models.ExecutionResult, at time.Time) (*models.Remediation, error) {
	if !status.Terminal() {
		return nil, errs.Validation("status %s is not terminal", status)
	}
	encoded, err := encodeJSON(result)
	if err != nil {
		return nil, err
	}
	return t.transition(id, models.RemediationInProgress,
		`UPDATE remediations SET status = ?, result = ?, completed_at = ? WHERE id = ? AND status = ?`,
		string(status), encoded, unixNano(at), id, string(models.RemediationInProgress))
}

func (t *tx) AppendRemediationLog(entry *models.RemediationLog) error {
	_, err := t.exec(`INSERT INTO remediation_logs (id, remediation_id, action, status, output, error, ts) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.RemediationID, entry.Action, string(entry.Status), entry.Output, entry.Error, unixNano(entry.Timestamp))
	if err != nil {
		return fmt.Errorf("append remediation log: %w", err)
	}
	return nil
}

func (t *tx) ListRemediationLogs(remediationID string) ([]models.RemediationLog, error) {
	rows, err := t.tx.QueryContext(t.ctx, `SELECT id, remediation_id, action, status, output, error, ts
		FROM remediation_logs WHERE remediation_id = ? ORDER BY seq`, remediationID)
	if err != nil {
		return nil, fmt.Errorf("list remediation logs: %w", err)
	}
	defer rows.Close()
	out := []models.RemediationLog{}
	for rows.Next() {
		var (
			l      models.RemediationLog
			status string
			output sql.NullString
			errStr sql.NullString
			ts     int64
		)
		if err := rows.Scan(&l.ID, &l.RemediationID, &l.Action, &status, &output, &errStr, &ts); err != nil {
			return nil, fmt.Errorf("scan remediation log: %w", err)
		}
		l.Status = models.RemediationStatus(status)
		l.Output = output.String
		l.Error = errStr.String
		l.Timestamp = fromUnix(ts)
		out = append(out, l)
	}
	return out, rows.Err()
}

func (t *tx) InsertAnalysis(a *models.Analysis) error {
	actions, err := encodeJSON(a.RecommendedActions)
	if err != nil {
		return err
	}
	input, err := encodeJSON(a.Input)
	if err != nil {
		return err
	}
	_, err = t.exec(`INSERT INTO analyses (id, incident_id, analysis_type, diagnosis, recommended_actions, confidence, reasoning, engine, input, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.IncidentID, a.AnalysisType, a.Diagnosis, actions, a.Confidence, a.Reasoning, a.Engine, input, unixNano(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}

func (t *tx) LatestAnalysis(incidentID string) (*models.Analysis, error) {
	var (
		a       models.Analysis
		actions sql.NullString
		input   sql.NullString
		created int64
	)
	err := t.tx.QueryRowContext(t.ctx, `SELECT id, incident_id, analysis_type, diagnosis, recommended_actions, confidence, reasoning, engine, input, created_at
		FROM analyses WHERE incident_id = ? ORDER BY created_at DESC, seq DESC LIMIT 1`, incidentID).
		Scan(&a.ID, &a.IncidentID, &a.AnalysisType, &a.Diagnosis, &actions, &a.Confidence, &a.Reasoning, &a.Engine, &input, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("analysis", incidentID)
	}
	if err != nil {
		return nil, fmt.Errorf("latest analysis: %w", err)
	}
	a.CreatedAt = fromUnix(created)
	if err := decodeJSON(actions, &a.RecommendedActions); err != nil {
		return nil, fmt.Errorf("decode actions: %w", err)
	}
	if err := decodeJSON(input, &a.Input); err != nil {
		return nil, fmt.Errorf("decode analysis input: %w", err)
	}
	return &a, nil
}

func (t *tx) InsertNotification(n *models.Notification) error {
	_, err := t.exec(`INSERT INTO notifications (id, incident_id, channel, status, severity, title, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.IncidentID, n.Channel, n.Status, string(n.Severity), n.Title, unixNano(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (t *tx) ListNotifications(incidentID string) ([]models.Notification, error) {
	rows, err := t.tx.QueryContext(t.ctx, `SELECT id, incident_id, channel, status, severity, title, created_at
		FROM notifications WHERE incident_id = ? ORDER BY seq`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()
	out := []models.Notification{}
	for rows.Next() {
		var (
			n        models.Notification
			severity sql.NullString
			title    sql.NullString
			created  int64
		)
		if err := rows.Scan(&n.ID, &n.IncidentID, &n.Channel, &n.Status, &severity, &title, &created); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Severity = models.Severity(severity.String)
		n.Title = title.String
		n.CreatedAt = fromUnix(created)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (t *tx) UpsertNode(node models.InfrastructureNode) error {
	node = models.NewNode(node)
	meta, err := encodeJSON(node.Metadata)
	if err != nil {
		return err
	}
	_, err = t.exec(`INSERT INTO nodes (id, hostname, ip_address, port, node_type, os_type, metadata, class_kind, class_family)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET hostname = excluded.hostname, ip_address = excluded.ip_address, port = excluded.port,
		node_type = excluded.node_type, os_type = excluded.os_type, metadata = excluded.metadata,
		class_kind = excluded.class_kind, class_family = excluded.class_family`,
		node.ID, node.Hostname, node.IPAddress, node.Port, string(node.NodeType), node.OSType, meta,
		string(node.Class.Kind), string(node.Class.Family))
	if err != nil {
		return fmt.Errorf("upsert node: %w", err)
	}
	return nil
}

const nodeColumns = `id, hostname, ip_address, port, node_type, os_type, metadata, class_kind, class_family`

// scanNode reads the class stored at upsert; rows written without one are classified.
func scanNode(row rowScanner) (*models.InfrastructureNode, error) {
	var (
		n        models.InfrastructureNode
		nodeType string
		meta     sql.NullString
		kind     string
		family   string
	)
	if err := row.Scan(&n.ID, &n.Hostname, &n.IPAddress, &n.Port, &nodeType, &n.OSType, &meta, &kind, &family); err != nil {
		return nil, err
	}
	n.NodeType = models.NodeType(nodeType)
	if err := decodeJSON(meta, &n.Metadata); err != nil {
		return nil, fmt.Errorf("decode node metadata: %w", err)
	}
	if kind == "" {
		n = models.NewNode(n)
	} else {
		n.Class = models.NodeClass{Kind: models.ClassKind(kind), Family: models.DeviceFamily(family)}
	}
	return &n, nil
}

func (t *tx) GetNode(id string) (*models.InfrastructureNode, error) {
	n, err := scanNode(t.tx.QueryRowContext(t.ctx, `SELECT `+nodeColumns+` FROM nodes WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("node", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get node: %w", err)
	}
	return n, nil
}

func (t *tx) ListNodes() ([]models.InfrastructureNode, error) {
	rows, err := t.tx.QueryContext(t.ctx, `SELECT `+nodeColumns+` FROM nodes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()
	var out []models.InfrastructureNode
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (t *tx) UpsertAlertRule(rule models.AlertRule) error {
	_, err := t.exec(`INSERT INTO alert_rules (id, name, description, node_id, metric_name, condition, threshold, severity, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, description = excluded.description, node_id = excluded.node_id,
		metric_name = excluded.metric_name, condition = excluded.condition, threshold = excluded.threshold,
		severity = excluded.severity, enabled = excluded.enabled`,
		rule.ID, rule.Name, rule.Description, rule.NodeID, rule.MetricName, rule.Condition, rule.Threshold, string(rule.Severity), rule.Enabled)
	if err != nil {
		return fmt.Errorf("upsert alert rule: %w", err)
	}
	return nil
}

func (t *tx) ListAlertRules(enabledOnly bool) ([]models.AlertRule, error) {
	query := `SELECT id, name, description, node_id, metric_name, condition, threshold, severity, enabled FROM alert_rules`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY id`
	rows, err := t.tx.QueryContext(t.ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list alert rules: %w", err)
	}
	defer rows.Close()
	var out []models.AlertRule
	for rows.Next() {
		var (
			r        models.AlertRule
			desc     sql.NullString
			severity string
		)
		if err := rows.Scan(&r.ID, &r.Name, &desc, &r.NodeID, &r.MetricName, &r.Condition, &r.Threshold, &severity, &r.Enabled); err != nil {
			return nil, fmt.Errorf("scan alert rule: %w", err)
		}
		r.Description = desc.String
		r.Severity = models.Severity(severity)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *tx) InsertMetric(sample models.MetricSample) error {
	_, err := t.exec(`INSERT INTO metrics (node_id, metric_name, value, unit, ts) VALUES (?, ?, ?, ?, ?)`,
		sample.NodeID, sample.MetricName, sample.Value, sample.Unit, unixNano(sample.Timestamp))
	if err != nil {
		return fmt.Errorf("insert metric: %w", err)
	}
	return nil
}

func (t *tx) RecentMetrics(nodeID, metricName string, since time.Time, limit int) ([]models.MetricSample, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := t.tx.QueryContext(t.ctx, `SELECT node_id, metric_name, value, unit, ts FROM metrics
		WHERE node_id = ? AND metric_name = ? AND ts >= ? ORDER BY ts DESC LIMIT ?`,
		nodeID, metricName, unixNano(since), limit)
	if err != nil {
		return nil, fmt.Errorf("recent metrics: %w", err)
	}
	defer rows.Close()
	out := []models.MetricSample{}
	for rows.Next() {
		var (
			s    models.MetricSample
			unit sql.NullString
			ts   int64
		)
		if err := rows.Scan(&s.NodeID, &s.MetricName, &s.Value, &unit, &ts); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		s.Unit = unit.String
		s.Timestamp = fromUnix(ts)
		out = append(out, s)
	}
	return out, rows.Err()
}
