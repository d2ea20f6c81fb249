package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/libohan-ha/BaiHe-sub001/pkg/config"
)

// Client wraps go-redis with the subset of operations the app uses
type Client struct {
	rdb *redis.Client
}

// NewClient creates a redis client from application configuration
func NewClient() *Client {
	cfg := config.Get()
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return &Client{rdb: rdb}
}

// Ping checks connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Set stores a value with expiration
func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.rdb.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a value. Returns ("", redis.Nil) on a miss.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.rdb.Get(ctx, key).Result()
}

// Del removes one or more keys
func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

// IsMiss reports whether err is a cache miss
func IsMiss(err error) bool {
	return err == redis.Nil
}
