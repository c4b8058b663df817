// Package broker owns the Redis connection that carries the key event
// stream.
package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options tunes the Redis connection pool.
type Options struct {
	PoolSize     int
	MinIdleConns int
}

// DefaultOptions returns pool settings sized for one publisher and one
// worker per process.
func DefaultOptions() Options {
	return Options{PoolSize: 10, MinIdleConns: 2}
}

// Broker wraps a Redis client.
type Broker struct {
	client *redis.Client
}

// New connects to redisURL and verifies the connection.
func New(ctx context.Context, redisURL string, opts Options) (*Broker, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opt.PoolSize = opts.PoolSize
	opt.MinIdleConns = opts.MinIdleConns
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &Broker{client: client}, nil
}

// Ping checks Redis connectivity.
func (b *Broker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (b *Broker) Close() error {
	return b.client.Close()
}

// Client returns the underlying Redis client for the event stream.
func (b *Broker) Client() *redis.Client {
	return b.client
}
