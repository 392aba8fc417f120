// Package metricstore keeps recent metric samples in Redis sorted sets.
package metricstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"autoremedy/pkg/models"
)

// RedisConfig configures Redis access for metric samples.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	Retention time.Duration
}

// RedisStore writes samples to one ZSET per (node, metric), scored by timestamp in
// milliseconds, and trims entries older than the retention window on every write.
type RedisStore struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

type member struct {
	Value float64 `json:"v"`
	Unit  string  `json:"u,omitempty"`
	TS    int64   `json:"t"`
}

// NewRedisStore constructs a Redis-backed metric store.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis metric store: %w", err)
	}
	return NewRedisStoreWithClient(client, cfg.KeyPrefix, cfg.Retention), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string, retention time.Duration) *RedisStore {
	if strings.TrimSpace(prefix) == "" {
		prefix = "autoremedy:metrics"
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &RedisStore{client: client, prefix: strings.TrimSpace(prefix), retention: retention}
}

// WriteMetrics stores a batch of samples.
func (s *RedisStore) WriteMetrics(samples []*models.MetricSample) error {
	if len(samples) == 0 {
		return nil
	}
	ctx := context.Background()
	pipe := s.client.Pipeline()
	cutoff := time.Now().Add(-s.retention).UnixMilli()

	touched := make(map[string]struct{}, len(samples))
	for _, sample := range samples {
		if sample == nil || sample.NodeID == "" || sample.MetricName == "" {
			continue
		}
		key := s.seriesKey(sample.NodeID, sample.MetricName)
		ts := sample.Timestamp.UnixMilli()
		raw, err := json.Marshal(member{Value: sample.Value, Unit: sample.Unit, TS: sample.Timestamp.UnixNano()})
		if err != nil {
			return fmt.Errorf("encode metric sample: %w", err)
		}
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(ts), Member: string(raw)})
		touched[key] = struct{}{}
	}
	for key := range touched {
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10))
		pipe.Expire(ctx, key, s.retention)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write metric samples: %w", err)
	}
	return nil
}

// RecentMetrics returns samples at or after since, newest first, at most limit.
func (s *RedisStore) RecentMetrics(ctx context.Context, nodeID, metricName string, since time.Time, limit int) ([]models.MetricSample, error) {
	by := &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}
	if limit > 0 {
		by.Count = int64(limit)
	}
	members, err := s.client.ZRevRangeByScore(ctx, s.seriesKey(nodeID, metricName), by).Result()
	if err != nil {
		return nil, fmt.Errorf("read metric samples: %w", err)
	}

	out := make([]models.MetricSample, 0, len(members))
	for _, raw := range members {
		var m member
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			continue
		}
		out = append(out, models.MetricSample{
			NodeID:     nodeID,
			MetricName: metricName,
			Value:      m.Value,
			Unit:       m.Unit,
			Timestamp:  time.Unix(0, m.TS).UTC(),
		})
	}
	return out, nil
}

// Close closes Redis resources.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) seriesKey(nodeID, metricName string) string {
	return s.prefix + ":series:" + nodeID + ":" + metricName
}
