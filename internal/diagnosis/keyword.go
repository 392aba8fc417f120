package diagnosis

import (
	"context"
	"fmt"
	"strings"
)

type keywordGroup struct {
	keywords   []string
	diagnosis  string
	actions    []string
	confidence float64
}

// Groups are checked in order; the first match wins. Confidence values are fixed
// reference numbers, not calibrated.
var keywordGroups = []keywordGroup{
	{[]string{"disk", "storage"}, "Disk space issue detected", []string{"clear_disk_space", "expand_volume"}, 0.85},
	{[]string{"memory", "ram"}, "Memory pressure detected", []string{"restart_service", "kill_process"}, 0.80},
	{[]string{"cpu"}, "High CPU utilization", []string{"kill_process", "scale_service"}, 0.75},
	{[]string{"service", "down"}, "Service availability issue", []string{"restart_service", "restart_container"}, 0.90},
	{[]string{"network", "connection"}, "Network connectivity issue", []string{"restart_service", "update_firewall"}, 0.70},
}

// KeywordEngine classifies by substring match on the lower-cased incident description.
type KeywordEngine struct{}

// NewKeywordEngine returns the reference engine.
func NewKeywordEngine() *KeywordEngine { return &KeywordEngine{} }

// Name implements Engine.
func (e *KeywordEngine) Name() string { return "keyword" }

// Diagnose implements Engine.
func (e *KeywordEngine) Diagnose(_ context.Context, ic IncidentContext) (Diagnosis, error) {
	desc := strings.ToLower(ic.Incident.Description)
	for _, g := range keywordGroups {
		for _, kw := range g.keywords {
			if strings.Contains(desc, kw) {
				actions := make([]string, len(g.actions))
				copy(actions, g.actions)
				return Diagnosis{
					Diagnosis:          g.diagnosis,
					RecommendedActions: actions,
					Confidence:         g.confidence,
					Reasoning:          fmt.Sprintf("description mentions %q", kw),
				}, nil
			}
		}
	}
	return Diagnosis{
		Diagnosis:          "Unknown issue",
		RecommendedActions: []string{},
		Confidence:         0.5,
		Reasoning:          "no known keyword in description",
	}, nil
}
