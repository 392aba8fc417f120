package metricjson

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"autoremedy/internal/logger"
	"autoremedy/pkg/models"
)

// Parse converts one queue payload into metric samples. Two shapes are accepted:
// a flat sample ({"node_id","metric_name","value","unit","ts"}) and an agent report
// ({"node_id" or "host.name", "@timestamp", "metrics": {name: value | {"value","unit"}}}).
func Parse(data []byte) ([]*models.MetricSample, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	nodeID := getString(raw, "node_id", "host.name", "host.hostname", "hostname")
	if nodeID == "" {
		return nil, fmt.Errorf("metric payload has no node id")
	}
	ts := time.Now().UTC()
	if v := getString(raw, "ts", "timestamp", "@timestamp"); v != "" {
		if t, ok := parseTime(v); ok {
			ts = t
		} else {
			logger.Warnf("Unparseable metric timestamp %q for node %s, using receive time", v, nodeID)
		}
	}

	if name := getString(raw, "metric_name", "metric"); name != "" {
		value, ok := getFloat(raw, "value")
		if !ok {
			return nil, fmt.Errorf("metric %s for node %s has no numeric value", name, nodeID)
		}
		return []*models.MetricSample{{
			NodeID:     nodeID,
			MetricName: name,
			Value:      value,
			Unit:       getString(raw, "unit"),
			Timestamp:  ts,
		}}, nil
	}

	metrics, ok := raw["metrics"].(map[string]interface{})
	if !ok || len(metrics) == 0 {
		return nil, fmt.Errorf("metric payload for node %s has no metrics", nodeID)
	}
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*models.MetricSample, 0, len(names))
	for _, name := range names {
		sample := &models.MetricSample{NodeID: nodeID, MetricName: name, Timestamp: ts}
		switch v := metrics[name].(type) {
		case map[string]interface{}:
			value, ok := getFloat(v, "value")
			if !ok {
				logger.Warnf("Skip metric %s for node %s: no numeric value", name, nodeID)
				continue
			}
			sample.Value = value
			sample.Unit = getString(v, "unit")
		default:
			value, ok := toFloat(v)
			if !ok {
				logger.Warnf("Skip metric %s for node %s: no numeric value", name, nodeID)
				continue
			}
			sample.Value = value
		}
		out = append(out, sample)
	}
	return out, nil
}

func parseTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil && secs > 0 {
		return time.Unix(0, int64(secs*float64(time.Second))).UTC(), true
	}
	return time.Time{}, false
}

func getString(root map[string]interface{}, paths ...string) string {
	for _, path := range paths {
		if v, ok := getPath(root, path); ok {
			switch val := v.(type) {
			case string:
				return val
			case float64:
				return strconv.FormatFloat(val, 'f', -1, 64)
			}
		}
	}
	return ""
}

func getFloat(root map[string]interface{}, paths ...string) (float64, bool) {
	for _, path := range paths {
		if v, ok := getPath(root, path); ok {
			if f, ok := toFloat(v); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func getPath(root map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var current interface{} = root
	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		v, ok := m[part]
		if !ok {
			return nil, false
		}
		current = v
	}
	return current, true
}
