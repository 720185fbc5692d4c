// Package redis connects the shared go-redis client that backs the request
// id sequence.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"transplant/internal/platform/config"
)

// Client embeds *redis.Client so it satisfies redis.Cmdable directly.
type Client struct {
	*redis.Client
}

// New dials and pings Redis. It returns nil, nil when no URL is configured so
// callers can fall back to the Postgres or in-memory sequence.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts.ClientName = "transplant"
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{Client: client}, nil
}

func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}
