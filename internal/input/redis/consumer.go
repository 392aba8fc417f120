package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Config configures the Redis metric queue consumer.
type Config struct {
	Addr         string
	Password     string
	DB           int
	Key          string
	BlockTimeout time.Duration
}

// Consumer pops metric payloads from a Redis list.
type Consumer struct {
	client       *redis.Client
	key          string
	blockTimeout time.Duration
}

// NewConsumer creates a Redis consumer for list-based queues.
func NewConsumer(cfg Config) (*Consumer, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	c, err := NewConsumerWithClient(client, cfg.Key, cfg.BlockTimeout)
	if err != nil {
		client.Close()
		return nil, err
	}
	return c, nil
}

// NewConsumerWithClient wraps an existing client.
func NewConsumerWithClient(client *redis.Client, key string, blockTimeout time.Duration) (*Consumer, error) {
	if key == "" {
		return nil, fmt.Errorf("redis key is required")
	}
	if blockTimeout == 0 {
		blockTimeout = 5 * time.Second
	}
	return &Consumer{client: client, key: key, blockTimeout: blockTimeout}, nil
}

// Pop pops one payload, or returns nil when the block timeout elapses with an empty queue.
func (c *Consumer) Pop(ctx context.Context) ([]byte, error) {
	res, err := c.client.BLPop(ctx, c.blockTimeout, c.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(res) < 2 {
		return nil, nil
	}
	return []byte(res[1]), nil
}

// Push appends payloads to the queue tail.
func (c *Consumer) Push(ctx context.Context, payloads ...[]byte) error {
	if len(payloads) == 0 {
		return nil
	}
	values := make([]interface{}, len(payloads))
	for i, p := range payloads {
		values[i] = p
	}
	return c.client.RPush(ctx, c.key, values...).Err()
}

// Close closes the consumer.
func (c *Consumer) Close() error {
	return c.client.Close()
}
