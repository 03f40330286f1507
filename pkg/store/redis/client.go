package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/staffportal/staffportal/pkg/config"
)

type Client struct {
	rdb    redis.UniversalClient
	locker *redislock.Client
}

func NewClient(cfg *config.RedisConfig) (*Client, error) {
	if !cfg.Enabled() {
		return nil, errors.New("redis addresses are not configured")
	}

	var rdb redis.UniversalClient

	if cfg.ClusterMode {
		rdb = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:    cfg.Addresses,
			Password: cfg.Password,
			PoolSize: cfg.PoolSize,
		})
	} else {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Addresses[0],
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: cfg.PoolSize,
		})
	}

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb, locker: redislock.New(rdb)}, nil
}

func (c *Client) Client() redis.UniversalClient {
	return c.rdb
}

// Locker returns a distributed lock client sharing the same connection pool.
func (c *Client) Locker() *redislock.Client {
	return c.locker
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
