// Package cache is a thin JSON cache over redis for the expensive summary
// payloads. A nil client disables caching: every read misses and writes are
// dropped, so the handlers never have to care whether redis is configured.
package cache

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "progress_cache_hits_total",
		Help: "Summary cache hits by scope.",
	}, []string{"scope"})
	cacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "progress_cache_misses_total",
		Help: "Summary cache misses by scope.",
	}, []string{"scope"})
)

// ClassesKey is the cache slot for the class directory payload.
func ClassesKey() string {
	return "teacher_summary:classes_v1"
}

// LeaderboardKey caches one leaderboard per class and timeframe. The global
// board uses classKey "global".
func LeaderboardKey(classKey, timeframe string) string {
	return "teacher_summary:leaderboard:" + classKey + ":" + timeframe
}

// StudentKey caches one student drilldown per user and timeframe.
func StudentKey(userID, timeframe string) string {
	return "teacher_summary:student:" + userID + ":" + timeframe
}

// scopeOf maps a cache key to its metric label.
func scopeOf(key string) string {
	rest := strings.TrimPrefix(key, "teacher_summary:")
	if i := strings.Index(rest, ":"); i >= 0 {
		rest = rest[:i]
	}
	if i := strings.Index(rest, "_"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

type Cache struct {
	client *redis.Client
}

// New wraps a redis client; client may be nil.
func New(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// GetJSON loads a cached payload into out. It reports false on miss,
// disabled cache, or undecodable payload.
func (c *Cache) GetJSON(ctx context.Context, key string, out any) bool {
	if c == nil || c.client == nil {
		return false
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("cache get %s: %v", key, err)
		}
		cacheMisses.WithLabelValues(scopeOf(key)).Inc()
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		log.Printf("cache decode %s: %v", key, err)
		cacheMisses.WithLabelValues(scopeOf(key)).Inc()
		return false
	}
	cacheHits.WithLabelValues(scopeOf(key)).Inc()
	return true
}

// SetJSON stores a payload with the given TTL. Failures are logged and
// swallowed: the cache is never allowed to fail a request.
func (c *Cache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		log.Printf("cache encode %s: %v", key, err)
		return
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		log.Printf("cache set %s: %v", key, err)
	}
}

// Delete drops a key, for invalidation after writes.
func (c *Cache) Delete(ctx context.Context, key string) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		log.Printf("cache del %s: %v", key, err)
	}
}
