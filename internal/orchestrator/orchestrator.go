// Package orchestrator owns the incident and remediation lifecycles: it persists
// incidents, runs diagnosis, drives the remediation state machine and closes the
// incident loop on success.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"autoremedy/internal/backend"
	"autoremedy/internal/diagnosis"
	"autoremedy/internal/errs"
	"autoremedy/internal/logger"
	"autoremedy/internal/metrics"
	"autoremedy/internal/pipeline"
	"autoremedy/internal/store"
	"autoremedy/internal/templates"
	"autoremedy/pkg/models"
)

// MetricSource returns recent samples of one node metric, newest first.
type MetricSource interface {
	RecentMetrics(ctx context.Context, nodeID, metricName string, since time.Time, limit int) ([]models.MetricSample, error)
}

// Tier is the per-severity policy.
type Tier struct {
	AutoRemediate bool
	Channels      []string
}

// Config controls orchestrator behavior.
type Config struct {
	AutoRemediation  bool
	Tiers            map[models.Severity]Tier
	ExecutionTimeout time.Duration
	// MaxAutoPerHour bounds automatic remediations per node. Zero disables the limit.
	MaxAutoPerHour int
	AnalysisWindow time.Duration
	AnalysisLimit  int
}

// DefaultTiers returns the built-in severity policy.
func DefaultTiers() map[models.Severity]Tier {
	return map[models.Severity]Tier{
		models.SeverityCritical: {AutoRemediate: true, Channels: []string{"email", "sms", "slack", "pagerduty"}},
		models.SeverityHigh:     {AutoRemediate: true, Channels: []string{"email", "slack"}},
		models.SeverityMedium:   {AutoRemediate: false, Channels: []string{"email"}},
		models.SeverityLow:      {AutoRemediate: false},
	}
}

// DefaultConfig returns the defaults used when a field is left zero.
func DefaultConfig() Config {
	return Config{
		AutoRemediation:  true,
		Tiers:            DefaultTiers(),
		ExecutionTimeout: 300 * time.Second,
		AnalysisWindow:   time.Hour,
		AnalysisLimit:    10,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Tiers == nil {
		c.Tiers = def.Tiers
	}
	if c.ExecutionTimeout <= 0 {
		c.ExecutionTimeout = def.ExecutionTimeout
	}
	if c.AnalysisWindow <= 0 {
		c.AnalysisWindow = def.AnalysisWindow
	}
	if c.AnalysisLimit <= 0 {
		c.AnalysisLimit = def.AnalysisLimit
	}
	return c
}

// Deps are the collaborators the orchestrator is built from. Store, Templates,
// Dispatcher and Engine are required.
type Deps struct {
	Store      store.Store
	Templates  *templates.Registry
	Dispatcher *backend.Dispatcher
	Engine     diagnosis.Engine
	Notifier   pipeline.NotificationWriter
	Audit      pipeline.LogWriter
	Metrics    *metrics.Metrics
	// MetricSource defaults to the store.
	MetricSource MetricSource
}

// Orchestrator implements the remediation state machine.
type Orchestrator struct {
	store      store.Store
	templates  *templates.Registry
	dispatcher *backend.Dispatcher
	engine     diagnosis.Engine
	notifier   pipeline.NotificationWriter
	audit      pipeline.LogWriter
	metrics    *metrics.Metrics
	source     MetricSource
	cfg        Config
	limiter    *nodeLimiter

	now   func() time.Time
	newID func() string

	deliveries sync.WaitGroup
}

// New creates an orchestrator.
func New(deps Deps, cfg Config) (*Orchestrator, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("orchestrator: store is nil")
	}
	if deps.Templates == nil {
		return nil, fmt.Errorf("orchestrator: template registry is nil")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("orchestrator: dispatcher is nil")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("orchestrator: diagnosis engine is nil")
	}
	source := deps.MetricSource
	if source == nil {
		source = store.Metrics{Store: deps.Store}
	}
	cfg = cfg.withDefaults()
	return &Orchestrator{
		store:      deps.Store,
		templates:  deps.Templates,
		dispatcher: deps.Dispatcher,
		engine:     deps.Engine,
		notifier:   deps.Notifier,
		audit:      deps.Audit,
		metrics:    deps.Metrics,
		source:     source,
		cfg:        cfg,
		limiter:    newNodeLimiter(cfg.MaxAutoPerHour),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}, nil
}

// Close waits for in-flight notification deliveries.
func (o *Orchestrator) Close() error {
	o.deliveries.Wait()
	return nil
}

// CreateIncident persists an incident with its notification records and, when the
// severity tier allows it, runs automatic remediation before returning.
func (o *Orchestrator) CreateIncident(ctx context.Context, in models.NewIncident) (*models.Incident, error) {
	severity, err := models.ParseSeverity(in.Severity)
	if err != nil {
		return nil, errs.Validation("%v", err)
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, errs.Validation("incident title is required")
	}

	now := o.now()
	inc := &models.Incident{
		ID:          o.newID(),
		Title:       title,
		Description: in.Description,
		Severity:    severity,
		Source:      in.Source,
		NodeID:      in.NodeID,
		Status:      models.IncidentOpen,
		Metadata:    copyStrings(in.Metadata),
		CreatedAt:   now,
	}
	tier := o.cfg.Tiers[severity]
	notes := make([]*models.Notification, 0, len(tier.Channels))
	for _, ch := range tier.Channels {
		notes = append(notes, &models.Notification{
			ID:         o.newID(),
			IncidentID: inc.ID,
			Channel:    ch,
			Status:     models.NotificationPending,
			Severity:   severity,
			Title:      title,
			CreatedAt:  now,
		})
	}

	err = o.store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertIncident(inc); err != nil {
			return err
		}
		for _, n := range notes {
			if err := tx.InsertNotification(n); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}

	logger.Infof("Created incident %s: %s (severity: %s)", inc.ID, title, severity)
	o.metrics.IncidentCreated(string(severity), inc.Source)
	o.deliver(notes)

	if o.cfg.AutoRemediation && tier.AutoRemediate {
		o.autoRemediate(ctx, inc)
	}

	out, err := o.GetIncident(ctx, inc.ID)
	if err != nil {
		return inc, nil
	}
	return out, nil
}

func (o *Orchestrator) deliver(notes []*models.Notification) {
	if o.notifier == nil || len(notes) == 0 {
		return
	}
	o.deliveries.Add(1)
	go func() {
		defer o.deliveries.Done()
		err := o.notifier.WriteNotifications(notes)
		if err != nil {
			logger.Warnf("Notification delivery for incident %s failed: %v", notes[0].IncidentID, err)
		}
		for _, n := range notes {
			o.metrics.NotificationDelivered(n.Channel, err == nil)
		}
	}()
}

// AnalyzeIncident runs the diagnosis engine on the incident's context and stores an
// immutable analysis record.
func (o *Orchestrator) AnalyzeIncident(ctx context.Context, incidentID string) (*models.Analysis, error) {
	ic, metricNames, err := o.incidentContext(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if ic.Node != nil {
		ic.Metrics = o.recentMetrics(ctx, ic.Node.ID, metricNames)
	}

	d, err := o.engine.Diagnose(ctx, ic)
	if err != nil {
		return nil, errs.Internal("diagnose incident "+incidentID, err)
	}

	a := &models.Analysis{
		ID:                 o.newID(),
		IncidentID:         incidentID,
		AnalysisType:       "incident_diagnosis",
		Diagnosis:          d.Diagnosis,
		RecommendedActions: append([]string{}, d.RecommendedActions...),
		Confidence:         d.Confidence,
		Reasoning:          d.Reasoning,
		Engine:             o.engine.Name(),
		Input:              ic.Snapshot(),
		CreatedAt:          o.now(),
	}
	if err := o.store.WithTx(ctx, func(tx store.Tx) error { return tx.InsertAnalysis(a) }); err != nil {
		return nil, fmt.Errorf("store analysis: %w", err)
	}
	o.metrics.AnalysisRecorded(a.Engine)
	logger.Infof("Analyzed incident %s: %s (confidence %.2f, actions %v)", incidentID, a.Diagnosis, a.Confidence, a.RecommendedActions)
	return a, nil
}

// incidentContext loads the incident and its node, and collects the metric names
// relevant to the node: the incident's own metric plus those watched by alert rules.
func (o *Orchestrator) incidentContext(ctx context.Context, incidentID string) (diagnosis.IncidentContext, []string, error) {
	var (
		ic    diagnosis.IncidentContext
		names []string
	)
	err := o.store.WithTx(ctx, func(tx store.Tx) error {
		inc, err := tx.GetIncident(incidentID)
		if err != nil {
			return err
		}
		ic.Incident = *inc
		if inc.NodeID == "" {
			return nil
		}
		node, err := tx.GetNode(inc.NodeID)
		if errs.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		ic.Node = node

		seen := map[string]struct{}{}
		if m := inc.Metadata["metric_name"]; m != "" {
			seen[m] = struct{}{}
			names = append(names, m)
		}
		rules, err := tx.ListAlertRules(false)
		if err != nil {
			return err
		}
		for _, r := range rules {
			if r.NodeID != node.ID {
				continue
			}
			if _, ok := seen[r.MetricName]; ok {
				continue
			}
			seen[r.MetricName] = struct{}{}
			names = append(names, r.MetricName)
		}
		return nil
	})
	return ic, names, err
}

func (o *Orchestrator) recentMetrics(ctx context.Context, nodeID string, names []string) []models.MetricSample {
	since := o.now().Add(-o.cfg.AnalysisWindow)
	var out []models.MetricSample
	for _, name := range names {
		samples, err := o.source.RecentMetrics(ctx, nodeID, name, since, o.cfg.AnalysisLimit)
		if err != nil {
			logger.Warnf("Read metric %s for node %s: %v", name, nodeID, err)
			continue
		}
		out = append(out, samples...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > o.cfg.AnalysisLimit {
		out = out[:o.cfg.AnalysisLimit]
	}
	return out
}

// CreateRemediation validates and persists a pending remediation. With AutoExecute
// set it is executed immediately; an execution error is returned together with the
// stored record.
func (o *Orchestrator) CreateRemediation(ctx context.Context, in models.NewRemediation) (*models.Remediation, error) {
	action := strings.TrimSpace(in.ActionType)
	if !o.templates.Has(action) {
		return nil, errs.Validation("unknown action type %q", in.ActionType)
	}
	if in.TargetNodeID == "" {
		return nil, errs.Validation("target node is required")
	}
	tmpl, err := o.templates.Get(action)
	if err != nil {
		return nil, err
	}

	rem := &models.Remediation{
		ID:           o.newID(),
		IncidentID:   in.IncidentID,
		ActionType:   action,
		TargetNodeID: in.TargetNodeID,
		Parameters:   copyStrings(in.Parameters),
		Status:       models.RemediationPending,
		CreatedAt:    o.now(),
	}
	err = o.store.WithTx(ctx, func(tx store.Tx) error {
		node, err := tx.GetNode(in.TargetNodeID)
		if err != nil {
			return err
		}
		if err := o.dispatcher.Supports(*node, tmpl); err != nil {
			return err
		}
		if in.IncidentID != "" {
			if _, err := tx.GetIncident(in.IncidentID); err != nil {
				return err
			}
		}
		missing, err := templates.Missing(tmpl, node.Class.CommandFamily(), rem.Parameters)
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			return errs.Validation("action %s on %s needs parameters: %s", action, node.ID, strings.Join(missing, ", "))
		}
		return tx.InsertRemediation(rem)
	})
	if err != nil {
		return nil, err
	}
	logger.Infof("Created remediation %s (%s on %s) for incident %s", rem.ID, action, rem.TargetNodeID, rem.IncidentID)

	if !in.AutoExecute {
		return rem, nil
	}
	_, execErr := o.ExecuteRemediation(ctx, rem.ID)
	if stored, err := o.GetRemediation(context.WithoutCancel(ctx), rem.ID); err == nil {
		rem = stored
	}
	return rem, execErr
}

// ExecuteRemediation claims a pending remediation, runs it on the target node and
// records the outcome. Resolution and transport errors leave the remediation failed
// and are returned after being persisted.
func (o *Orchestrator) ExecuteRemediation(ctx context.Context, id string) (*models.ExecutionSummary, error) {
	var rem *models.Remediation
	err := o.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		rem, err = tx.ClaimRemediation(id, o.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.Infof("Executing remediation %s: %s on %s", id, rem.ActionType, rem.TargetNodeID)

	start := time.Now()
	result, backendName, execErr := o.run(ctx, rem)
	took := time.Since(start)
	if execErr != nil {
		result.Success = false
		if result.Error == "" {
			result.Error = execErr.Error()
		}
	}
	result.Backend = backendName
	result.DurationMS = took.Milliseconds()

	status := models.RemediationFailed
	if result.Success {
		status = models.RemediationSuccess
	}

	entry := &models.RemediationLog{
		ID:            o.newID(),
		RemediationID: id,
		Action:        rem.ActionType,
		Status:        status,
		Output:        result.Output,
		Error:         result.Error,
		Timestamp:     o.now(),
	}

	// The outcome is recorded even when the caller's context is gone.
	finalCtx := context.WithoutCancel(ctx)
	if err := o.finish(finalCtx, rem, status, result, entry); err != nil {
		logger.Errorf("Recording outcome of remediation %s failed: %v", id, err)
		o.markFailed(finalCtx, id, err)
		return nil, errs.Internal("record remediation "+id, err)
	}

	o.metrics.RemediationFinished(rem.ActionType, backendName, string(status), took)
	o.mirror(entry)
	logger.Infof("Remediation %s completed with status: %s", id, status)

	summary := &models.ExecutionSummary{RemediationID: id, Status: status, Result: result}
	if execErr != nil {
		return summary, wrapExecError(id, execErr)
	}
	return summary, nil
}

// run resolves node, template and backend, then executes under the configured timeout.
func (o *Orchestrator) run(ctx context.Context, rem *models.Remediation) (res models.ExecutionResult, backendName string, err error) {
	var node *models.InfrastructureNode
	err = o.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		node, err = tx.GetNode(rem.TargetNodeID)
		return err
	})
	if err != nil {
		return res, "", err
	}
	tmpl, err := o.templates.Get(rem.ActionType)
	if err != nil {
		return res, "", err
	}
	b, err := o.dispatcher.For(*node)
	if err != nil {
		return res, "", err
	}
	res, err = o.execute(ctx, b, *node, tmpl, rem.Parameters)
	return res, b.Name(), err
}

// execute runs tmpl on node through b under the configured timeout. A backend panic
// is returned as an execution error.
func (o *Orchestrator) execute(ctx context.Context, b backend.Backend, node models.InfrastructureNode, tmpl models.ActionTemplate, params map[string]string) (res models.ExecutionResult, err error) {
	execCtx, cancel := context.WithTimeout(ctx, o.cfg.ExecutionTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			res = models.ExecutionResult{}
			err = errs.Execution(b.Name(), fmt.Errorf("backend panic: %v", r))
		}
	}()

	res, err = b.Execute(execCtx, node, tmpl, params)
	if err == nil && !res.Success && res.Error == "" && execCtx.Err() == context.DeadlineExceeded {
		res.Error = "timeout"
	}
	return res, err
}

// RunDiagnostics runs each server check that has a command for the node's family and
// returns the results keyed by check name. A failing check does not stop the others.
func (o *Orchestrator) RunDiagnostics(ctx context.Context, nodeID string) (map[string]models.ExecutionResult, error) {
	var node *models.InfrastructureNode
	err := o.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		node, err = tx.GetNode(nodeID)
		return err
	})
	if err != nil {
		return nil, err
	}
	b, err := o.dispatcher.For(*node)
	if err != nil {
		return nil, err
	}
	family := node.Class.CommandFamily()

	results := make(map[string]models.ExecutionResult, len(templates.ServerChecks))
	for _, check := range templates.ServerChecks {
		tmpl, err := o.templates.Get(check)
		if err != nil {
			continue
		}
		if _, ok := tmpl.Command(family); !ok {
			continue
		}
		start := time.Now()
		res, err := o.execute(ctx, b, *node, tmpl, nil)
		if err != nil {
			logger.Warnf("Diagnostic %s on node %s failed: %v", check, nodeID, err)
			res.Success = false
			if res.Error == "" {
				res.Error = err.Error()
			}
		}
		res.Backend = b.Name()
		res.DurationMS = time.Since(start).Milliseconds()
		results[check] = res
	}
	logger.Infof("Ran %d diagnostics on node %s", len(results), nodeID)
	return results, nil
}

// finish appends the log, completes the remediation and, on success, resolves the
// parent incident in one transaction.
func (o *Orchestrator) finish(ctx context.Context, rem *models.Remediation, status models.RemediationStatus, result models.ExecutionResult, entry *models.RemediationLog) error {
	return o.store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.AppendRemediationLog(entry); err != nil {
			return err
		}
		at := o.now()
		if _, err := tx.CompleteRemediation(rem.ID, status, result, at); err != nil {
			return err
		}
		if status != models.RemediationSuccess || rem.IncidentID == "" {
			return nil
		}
		err := tx.ResolveIncident(rem.IncidentID, at)
		if errs.IsNotFound(err) {
			return nil
		}
		return err
	})
}

func (o *Orchestrator) markFailed(ctx context.Context, id string, cause error) {
	err := o.store.WithTx(ctx, func(tx store.Tx) error {
		_, err := tx.CompleteRemediation(id, models.RemediationFailed, models.Failure(cause.Error()), o.now())
		return err
	})
	if err != nil {
		logger.Errorf("Marking remediation %s failed: %v", id, err)
	}
}

func (o *Orchestrator) mirror(entry *models.RemediationLog) {
	if o.audit == nil {
		return
	}
	e := *entry
	if err := o.audit.WriteLogs([]*models.RemediationLog{&e}); err != nil {
		logger.Warnf("Audit mirror for remediation %s failed: %v", entry.RemediationID, err)
	}
}

func wrapExecError(id string, err error) error {
	switch errs.KindOf(err) {
	case errs.KindNotFound, errs.KindValidation, errs.KindExecution:
		return fmt.Errorf("execute remediation %s: %w", id, err)
	default:
		return errs.Execution("execute remediation "+id, err)
	}
}

func copyStrings(m map[string]string) map[string]string {
	if len(m) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
