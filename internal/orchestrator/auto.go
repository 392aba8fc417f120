package orchestrator

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"autoremedy/internal/logger"
	"autoremedy/internal/templates"
	"autoremedy/pkg/models"
)

// Auto-remediation outcomes reported to metrics.
const (
	autoTriggered   = "triggered"
	autoSkipped     = "skipped"
	autoRateLimited = "rate_limited"
	autoError       = "error"
)

// autoRemediate diagnoses inc and executes the first recommended action on its node.
// Action parameters are taken from the incident metadata. Errors and panics are
// logged; the incident is left as stored.
func (o *Orchestrator) autoRemediate(ctx context.Context, inc *models.Incident) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Auto-remediation for incident %s panicked: %v", inc.ID, r)
			o.metrics.AutoRemediation(autoError)
		}
	}()

	analysis, err := o.AnalyzeIncident(ctx, inc.ID)
	if err != nil {
		logger.Errorf("Auto-remediation analysis for incident %s failed: %v", inc.ID, err)
		o.metrics.AutoRemediation(autoError)
		return
	}
	if len(analysis.RecommendedActions) == 0 || inc.NodeID == "" {
		logger.Infof("Auto-remediation for incident %s skipped: no action or no target node", inc.ID)
		o.metrics.AutoRemediation(autoSkipped)
		return
	}
	if !o.limiter.Allow(inc.NodeID) {
		logger.Warnf("Auto-remediation for incident %s skipped: node %s over hourly limit", inc.ID, inc.NodeID)
		o.metrics.AutoRemediation(autoRateLimited)
		return
	}

	action := analysis.RecommendedActions[0]
	var params map[string]string
	if tmpl, err := o.templates.Get(action); err == nil {
		params = templates.Fill(tmpl, inc.Metadata)
	}
	rem, err := o.CreateRemediation(ctx, models.NewRemediation{
		IncidentID:   inc.ID,
		ActionType:   action,
		TargetNodeID: inc.NodeID,
		Parameters:   params,
		AutoExecute:  true,
	})
	if err != nil {
		logger.Errorf("Auto-remediation for incident %s failed: %v", inc.ID, err)
		o.metrics.AutoRemediation(autoError)
		return
	}
	logger.Infof("Auto-remediation %s for incident %s finished: %s", rem.ID, inc.ID, rem.Status)
	o.metrics.AutoRemediation(autoTriggered)
}

// nodeLimiter hands out one token bucket per node.
type nodeLimiter struct {
	perHour int

	mu    sync.Mutex
	nodes map[string]*rate.Limiter
}

func newNodeLimiter(perHour int) *nodeLimiter {
	return &nodeLimiter{perHour: perHour, nodes: make(map[string]*rate.Limiter)}
}

// Allow reports whether another automatic remediation may run on nodeID now.
func (l *nodeLimiter) Allow(nodeID string) bool {
	if l == nil || l.perHour <= 0 {
		return true
	}
	l.mu.Lock()
	lim, ok := l.nodes[nodeID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(time.Hour/time.Duration(l.perHour)), l.perHour)
		l.nodes[nodeID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
