package cache

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	TierMemory = "memory"
	TierRedis  = "redis"
)

const defaultRemotePrefix = "tenderlens:"

// RemoteCache stores serialized views in Redis. A nil client turns every
// call into a miss or no-op so callers never depend on Redis being up.
type RemoteCache struct {
	client   *redis.Client
	prefix   string
	observer Observer
}

func NewRemoteCache(client *redis.Client, prefix string, observer Observer) *RemoteCache {
	if prefix == "" {
		prefix = defaultRemotePrefix
	}
	return &RemoteCache{client: client, prefix: prefix, observer: observer}
}

func (c *RemoteCache) Enabled() bool {
	return c != nil && c.client != nil
}

func (c *RemoteCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if !c.Enabled() || key == "" {
		return nil, false
	}
	data, err := c.client.Get(ctx, c.prefixed(key)).Bytes()
	if err != nil {
		if c.observer != nil {
			c.observer.CacheMiss(TierRedis)
		}
		return nil, false
	}
	if c.observer != nil {
		c.observer.CacheHit(TierRedis)
	}
	return data, true
}

func (c *RemoteCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !c.Enabled() || key == "" || len(value) == 0 {
		return nil
	}
	if ttl <= 0 {
		ttl = TTLMedium
	}
	return c.client.Set(ctx, c.prefixed(key), value, ttl).Err()
}

// InvalidatePrefix deletes every key under prefix using SCAN so large
// keyspaces are not blocked.
func (c *RemoteCache) InvalidatePrefix(ctx context.Context, prefix string) (int, error) {
	if !c.Enabled() {
		return 0, nil
	}
	pattern := escapeGlob(c.prefixed(prefix)) + "*"
	iter := c.client.Scan(ctx, 0, pattern, 200).Iterator()

	var (
		batch   []string
		removed int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := c.client.Del(ctx, batch...).Result()
		if err != nil {
			return err
		}
		removed += int(n)
		batch = batch[:0]
		return nil
	}
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 200 {
			if err := flush(); err != nil {
				return removed, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, err
	}
	if err := flush(); err != nil {
		return removed, err
	}
	return removed, nil
}

func (c *RemoteCache) prefixed(key string) string {
	return c.prefix + key
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
