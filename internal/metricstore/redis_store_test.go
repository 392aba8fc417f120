package metricstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoremedy/pkg/models"
)

func newStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test:metrics", time.Hour)
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestRedisStoreRecentMetrics(t *testing.T) {
	s, _ := newStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	batch := []*models.MetricSample{}
	for i := 0; i < 7; i++ {
		batch = append(batch, &models.MetricSample{NodeID: "web-1", MetricName: "cpu_usage", Value: float64(90 + i), Unit: "%", Timestamp: now.Add(time.Duration(i-7) * time.Minute)})
	}
	batch = append(batch, &models.MetricSample{NodeID: "web-1", MetricName: "mem_usage", Value: 10, Timestamp: now})
	require.NoError(t, s.WriteMetrics(batch))

	got, err := s.RecentMetrics(context.Background(), "web-1", "cpu_usage", now.Add(-5*time.Minute), 5)
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, 96.0, got[0].Value)
	assert.Equal(t, "%", got[0].Unit)
	assert.True(t, got[0].Timestamp.Equal(now.Add(-time.Minute)))
	assert.Equal(t, 92.0, got[4].Value)

	got, err = s.RecentMetrics(context.Background(), "web-1", "cpu_usage", now.Add(-5*time.Minute), 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestRedisStoreTrimsExpired(t *testing.T) {
	s, mr := newStore(t)
	now := time.Now().UTC()
	require.NoError(t, s.WriteMetrics([]*models.MetricSample{
		{NodeID: "n", MetricName: "x", Value: 1, Timestamp: now.Add(-2 * time.Hour)},
		{NodeID: "n", MetricName: "x", Value: 2, Timestamp: now},
	}))

	members, err := mr.ZMembers("test:metrics:series:n:x")
	require.NoError(t, err)
	assert.Len(t, members, 1)
}
