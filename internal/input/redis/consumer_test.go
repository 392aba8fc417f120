package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumerPushPop(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewConsumerWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "autoremedy:metrics", 50*time.Millisecond)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Push(ctx, []byte(`{"a":1}`), []byte(`{"b":2}`)))

	first, err := c.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(first))
	second, err := c.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"b":2}`, string(second))
}

func TestConsumerRequiresKey(t *testing.T) {
	_, err := NewConsumer(Config{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
