package store

import (
	"time"

	"autoremedy/pkg/models"
)

func cloneStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// CloneIncident returns a deep copy of inc.
func CloneIncident(inc models.Incident) models.Incident {
	inc.Metadata = cloneStrings(inc.Metadata)
	inc.ResolvedAt = cloneTime(inc.ResolvedAt)
	return inc
}

// CloneRemediation returns a deep copy of rem.
func CloneRemediation(rem models.Remediation) models.Remediation {
	rem.Parameters = cloneStrings(rem.Parameters)
	rem.StartedAt = cloneTime(rem.StartedAt)
	rem.CompletedAt = cloneTime(rem.CompletedAt)
	if rem.Result != nil {
		r := *rem.Result
		if r.ExitCode != nil {
			r.ExitCode = models.ExitCodeOf(*r.ExitCode)
		}
		rem.Result = &r
	}
	return rem
}

func cloneNode(n models.InfrastructureNode) models.InfrastructureNode {
	n.Metadata = cloneStrings(n.Metadata)
	return n
}

func cloneAnalysis(a models.Analysis) models.Analysis {
	a.RecommendedActions = append([]string(nil), a.RecommendedActions...)
	if a.Input != nil {
		in := make(map[string]interface{}, len(a.Input))
		for k, v := range a.Input {
			in[k] = v
		}
		a.Input = in
	}
	return a
}
