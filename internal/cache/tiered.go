package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
)

// Tiered keeps JSON-encoded views in the in-memory LRU and, when configured,
// in Redis. Values are stored encoded so a hit never shares mutable state with
// another request and always decodes to the same bytes that were computed.
type Tiered struct {
	local  *QueryCache
	remote *RemoteCache
	log    logrus.FieldLogger
}

func NewTiered(local *QueryCache, remote *RemoteCache, log logrus.FieldLogger) *Tiered {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Tiered{local: local, remote: remote, log: log}
}

// Load decodes the cached value for key into dst. Redis hits are copied into
// the local tier.
func (t *Tiered) Load(ctx context.Context, key string, dst any) bool {
	if t == nil {
		return false
	}
	if t.local != nil {
		if v, ok := t.local.Get(key); ok {
			if data, ok := v.([]byte); ok && json.Unmarshal(data, dst) == nil {
				return true
			}
			t.local.Delete(key)
		}
	}
	if !t.remote.Enabled() {
		return false
	}
	data, ok := t.remote.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		t.log.WithError(err).WithField("key", key).Warn("discarding undecodable cache entry")
		return false
	}
	if t.local != nil {
		t.local.Set(key, data, TTLShort)
	}
	return true
}

// Store encodes value and writes it to every tier. Failures are logged and
// otherwise ignored.
func (t *Tiered) Store(ctx context.Context, key string, value any, ttl time.Duration) {
	if t == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		t.log.WithError(err).WithField("key", key).Warn("cache encode failed")
		return
	}
	if t.local != nil {
		t.local.Set(key, data, ttl)
	}
	if err := t.remote.Set(ctx, key, data, ttl); err != nil {
		t.log.WithError(err).WithField("key", key).Warn("redis cache write failed")
	}
}

// InvalidatePrefix clears prefix from every tier and returns the number of
// entries removed in total.
func (t *Tiered) InvalidatePrefix(ctx context.Context, prefix string) int {
	if t == nil {
		return 0
	}
	removed := 0
	if t.local != nil {
		removed += t.local.InvalidatePrefix(prefix)
	}
	n, err := t.remote.InvalidatePrefix(ctx, prefix)
	if err != nil {
		t.log.WithError(err).WithField("prefix", prefix).Warn("redis cache invalidation failed")
	}
	return removed + n
}
