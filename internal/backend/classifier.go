package backend

import "strings"

// DefaultFailureMarkers are substrings that mark network CLI output as failed.
var DefaultFailureMarkers = []string{
	"% Invalid",
	"% Incomplete",
	"% Ambiguous",
	"Error:",
	"Failed",
	"syntax error",
}

// Classifier infers success from raw interactive CLI output.
type Classifier interface {
	Classify(output string) bool
}

// MarkerClassifier reports failure when any marker appears in the output, ignoring case.
// It is a heuristic: a device that echoes an unlisted error is reported successful.
type MarkerClassifier struct {
	markers []string
}

// NewMarkerClassifier builds a classifier over markers, or the defaults when none are given.
func NewMarkerClassifier(markers ...string) *MarkerClassifier {
	if len(markers) == 0 {
		markers = DefaultFailureMarkers
	}
	lowered := make([]string, 0, len(markers))
	for _, m := range markers {
		if m = strings.TrimSpace(m); m != "" {
			lowered = append(lowered, strings.ToLower(m))
		}
	}
	return &MarkerClassifier{markers: lowered}
}

// Classify implements Classifier.
func (c *MarkerClassifier) Classify(output string) bool {
	lower := strings.ToLower(output)
	for _, m := range c.markers {
		if strings.Contains(lower, m) {
			return false
		}
	}
	return true
}

// ClassifierSet picks a classifier per command family key.
type ClassifierSet struct {
	Default  Classifier
	ByFamily map[string]Classifier
}

// For returns the classifier for family.
func (s ClassifierSet) For(family string) Classifier {
	if c, ok := s.ByFamily[family]; ok && c != nil {
		return c
	}
	if s.Default != nil {
		return s.Default
	}
	return NewMarkerClassifier()
}
