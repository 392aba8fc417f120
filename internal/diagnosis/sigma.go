package diagnosis

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	sigma "github.com/bradleyjkemp/sigma-go"
	sigmaevaluator "github.com/bradleyjkemp/sigma-go/evaluator"

	"autoremedy/internal/logger"
)

const remediationTagPrefix = "remediation."

var levelConfidence = map[string]float64{
	"critical":      0.95,
	"high":          0.85,
	"medium":        0.70,
	"low":           0.55,
	"informational": 0.50,
}

// SigmaLoadStats tracks the number of loaded and skipped rules.
type SigmaLoadStats struct {
	TotalFiles     int
	Loaded         int
	SkippedComplex int
	SkippedInvalid int
}

type compiledRule struct {
	rule    sigma.Rule
	eval    *sigmaevaluator.RuleEvaluator
	actions []string
}

// SigmaEngine matches Sigma rules against incidents. The first matching rule supplies
// the diagnosis; when none match the fallback engine decides.
type SigmaEngine struct {
	rules    []compiledRule
	fallback Engine
}

// NewSigmaEngine loads rules from a file or directory. Files are evaluated in path order.
func NewSigmaEngine(path string, fallback Engine) (*SigmaEngine, SigmaLoadStats, error) {
	var stats SigmaLoadStats
	if fallback == nil {
		fallback = NewKeywordEngine()
	}

	resolved, err := filepath.Abs(path)
	if err != nil {
		return nil, stats, fmt.Errorf("resolve rule path: %w", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, stats, fmt.Errorf("stat rule path: %w", err)
	}

	var files []string
	if info.IsDir() {
		err = filepath.WalkDir(resolved, func(p string, entry fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if !entry.IsDir() && isYAMLFile(p) {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, stats, fmt.Errorf("walk rule directory: %w", err)
		}
		sort.Strings(files)
	} else {
		if !isYAMLFile(resolved) {
			return nil, stats, fmt.Errorf("rule file must end with .yml or .yaml: %s", resolved)
		}
		files = append(files, resolved)
	}

	stats.TotalFiles = len(files)
	compiled := make([]compiledRule, 0, len(files))
	for _, f := range files {
		raw, err := os.ReadFile(f)
		if err != nil {
			stats.SkippedInvalid++
			continue
		}
		rule, err := sigma.ParseRule(raw)
		if err != nil {
			logger.Warnf("skip diagnosis rule %s: %v", f, err)
			stats.SkippedInvalid++
			continue
		}
		if rule.Detection.Timeframe > 0 || hasAggregation(rule) {
			stats.SkippedComplex++
			continue
		}
		compiled = append(compiled, compiledRule{
			rule:    rule,
			eval:    sigmaevaluator.ForRule(rule),
			actions: remediationActions(rule.Tags),
		})
		stats.Loaded++
	}
	return &SigmaEngine{rules: compiled, fallback: fallback}, stats, nil
}

// Name implements Engine.
func (e *SigmaEngine) Name() string { return "sigma" }

// Diagnose implements Engine.
func (e *SigmaEngine) Diagnose(ctx context.Context, ic IncidentContext) (Diagnosis, error) {
	event := incidentEvent(ic)
	for _, r := range e.rules {
		res, err := r.eval.Matches(ctx, event)
		if err != nil || !res.Match {
			continue
		}
		actions := make([]string, len(r.actions))
		copy(actions, r.actions)
		return Diagnosis{
			Diagnosis:          strings.TrimSpace(r.rule.Title),
			RecommendedActions: actions,
			Confidence:         confidenceForLevel(r.rule.Level),
			Reasoning:          reasoning(r.rule),
		}, nil
	}
	return e.fallback.Diagnose(ctx, ic)
}

func reasoning(rule sigma.Rule) string {
	id := strings.TrimSpace(rule.ID)
	if id == "" {
		id = strings.TrimSpace(rule.Title)
	}
	if d := strings.TrimSpace(rule.Description); d != "" {
		return fmt.Sprintf("matched rule %s: %s", id, d)
	}
	return "matched rule " + id
}

func confidenceForLevel(level string) float64 {
	if c, ok := levelConfidence[strings.ToLower(strings.TrimSpace(level))]; ok {
		return c
	}
	return levelConfidence["medium"]
}

func remediationActions(tags []string) []string {
	out := make([]string, 0, 2)
	for _, raw := range tags {
		tag := strings.TrimSpace(raw)
		if strings.HasPrefix(strings.ToLower(tag), remediationTagPrefix) {
			if action := tag[len(remediationTagPrefix):]; action != "" {
				out = append(out, action)
			}
		}
	}
	return out
}

func hasAggregation(rule sigma.Rule) bool {
	for _, cond := range rule.Detection.Conditions {
		if cond.Aggregation != nil {
			return true
		}
	}
	return false
}

func isYAMLFile(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".yml") || strings.HasSuffix(lower, ".yaml")
}

func incidentEvent(ic IncidentContext) map[string]interface{} {
	inc := ic.Incident
	buf := make(map[string]interface{}, len(inc.Metadata)+8)
	for k, v := range inc.Metadata {
		buf[k] = v
	}
	buf["title"] = inc.Title
	buf["description"] = inc.Description
	buf["severity"] = string(inc.Severity)
	buf["source"] = inc.Source
	if ic.Node != nil {
		buf["hostname"] = ic.Node.Hostname
		buf["os_type"] = ic.Node.OSType
		buf["node_type"] = string(ic.Node.NodeType)
	}
	for _, m := range ic.Metrics {
		if _, seen := buf["metric."+m.MetricName]; !seen {
			buf["metric."+m.MetricName] = m.Value
		}
	}
	return buf
}
