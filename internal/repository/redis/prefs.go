// Package redis keeps ephemeral per-user preferences in Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Prefs implements repository.Prefs. Values expire after ttl of inactivity.
type Prefs struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewPrefs parses the URL, connects and pings.
func NewPrefs(redisURL string, ttl time.Duration) (*Prefs, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Prefs{client: client, ttl: ttl}, nil
}

// Close closes the client.
func (p *Prefs) Close() error {
	return p.client.Close()
}

// Get returns the stored value or fallback when the key is unset.
func (p *Prefs) Get(ctx context.Context, key, fallback string) (string, error) {
	value, err := p.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return fallback, nil
	}
	if err != nil {
		return fallback, fmt.Errorf("get pref %s: %w", key, err)
	}
	return value, nil
}

// Set stores value under key and refreshes its expiry.
func (p *Prefs) Set(ctx context.Context, key, value string) error {
	if err := p.client.Set(ctx, key, value, p.ttl).Err(); err != nil {
		return fmt.Errorf("set pref %s: %w", key, err)
	}
	return nil
}
