// Package ratelimit implements fixed-window request limits keyed by client.
// A Redis-backed limiter shares counts across instances; the in-memory
// limiter is used when no Redis address is configured.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

type Limiter interface {
	// Allow records a hit for key and reports whether it is within the limit.
	Allow(ctx context.Context, key string) (bool, error)
}

// Memory is a process-local fixed-window limiter.
type Memory struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	count int
	start time.Time
}

func NewMemory(max int, per time.Duration) *Memory {
	return &Memory{max: max, window: per, now: time.Now, windows: make(map[string]*window)}
}

func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows[key]
	if !ok || now.Sub(w.start) > m.window {
		m.windows[key] = &window{count: 1, start: now}
		m.sweep(now)
		return true, nil
	}
	if w.count >= m.max {
		return false, nil
	}
	w.count++
	return true, nil
}

// sweep drops expired windows. Called with mu held.
func (m *Memory) sweep(now time.Time) {
	for k, w := range m.windows {
		if now.Sub(w.start) > m.window {
			delete(m.windows, k)
		}
	}
}

// Redis is a fixed-window limiter using INCR with a TTL set on the first hit.
type Redis struct {
	client *redis.Client
	prefix string
	max    int
	window time.Duration
}

func NewRedis(client *redis.Client, prefix string, max int, per time.Duration) *Redis {
	return &Redis{client: client, prefix: prefix, max: max, window: per}
}

func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	k := r.prefix + key
	n, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit incr: %w", err)
	}
	if n == 1 {
		if err := r.client.Expire(ctx, k, r.window).Err(); err != nil {
			return false, fmt.Errorf("ratelimit expire: %w", err)
		}
	}
	return n <= int64(r.max), nil
}

// New returns a Redis limiter when addr is set, otherwise an in-memory one.
// The Redis connection is verified with PING.
func New(ctx context.Context, addr, prefix string, max int, per time.Duration) (Limiter, func() error, error) {
	if addr == "" {
		return NewMemory(max, per), func() error { return nil }, nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return NewRedis(client, prefix, max, per), client.Close, nil
}
