package engine

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// SyllabusCache provides 2-tier caching for resolved syllabus listings,
// keyed by (origin, sectionId). L1 is an in-memory map lost on restart;
// L2 is Redis and survives restarts. L2 is optional.
//
// Entries older than the TTL are treated as absent and deleted lazily on the
// next lookup; there is no background sweep.
type SyllabusCache struct {
	l1         sync.Map      // key → *cacheEntry
	rdb        *redis.Client // nil if Redis unavailable
	ttl        time.Duration
	maxEntries int

	hits   atomic.Int64
	misses atomic.Int64
}

type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewSyllabusCache builds a cache instance. redisURL can be empty to disable
// L2; an unreachable Redis degrades to L1-only with a warning.
func NewSyllabusCache(redisURL string, ttl time.Duration, maxEntries int) *SyllabusCache {
	c := &SyllabusCache{ttl: ttl, maxEntries: maxEntries}

	if redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			slog.Warn("cache: invalid redis URL, L2 disabled", slog.Any("error", err))
		} else {
			rdb := redis.NewClient(opts)
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := rdb.Ping(ctx).Err(); err != nil {
				slog.Warn("cache: redis unreachable, L2 disabled", slog.Any("error", err))
			} else {
				c.rdb = rdb
				slog.Info("cache: L2 redis connected", slog.String("addr", opts.Addr))
			}
		}
	}
	return c
}

// Key builds a deterministic cache key from parts.
func (c *SyllabusCache) Key(parts ...string) string {
	joined := strings.Join(parts, "|")
	hash := sha256.Sum256([]byte(joined))
	return fmt.Sprintf("syl:%x", hash[:12])
}

// GetRaw tries L1 then L2. On an L2 hit, L1 is repopulated.
func (c *SyllabusCache) GetRaw(ctx context.Context, key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}

	if val, ok := c.l1.Load(key); ok {
		entry := val.(*cacheEntry)
		if time.Now().Before(entry.expiresAt) {
			slog.Debug("cache: L1 hit", slog.String("key", key))
			c.hits.Add(1)
			return entry.data, true
		}
		c.l1.Delete(key) // expired
	}

	if c.rdb != nil {
		data, err := c.rdb.Get(ctx, key).Bytes()
		if err == nil {
			slog.Debug("cache: L2 hit", slog.String("key", key))
			c.hits.Add(1)
			c.l1.Store(key, &cacheEntry{data: data, expiresAt: time.Now().Add(c.ttl)})
			return data, true
		}
	}

	c.misses.Add(1)
	return nil, false
}

// SetRaw stores already-encoded data in both tiers.
func (c *SyllabusCache) SetRaw(ctx context.Context, key string, data []byte) {
	if c == nil {
		return
	}
	c.evictIfNeeded()
	c.l1.Store(key, &cacheEntry{data: data, expiresAt: time.Now().Add(c.ttl)})

	if c.rdb != nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			slog.Debug("cache: L2 set failed", slog.Any("error", err))
		}
	}
}

// Get returns the cached video listing for key, if fresh.
func (c *SyllabusCache) Get(ctx context.Context, key string) ([]DetectedVideo, bool) {
	data, ok := c.GetRaw(ctx, key)
	if !ok {
		return nil, false
	}
	var videos []DetectedVideo
	if err := json.Unmarshal(data, &videos); err != nil {
		c.Evict(ctx, key) // corrupt entry
		return nil, false
	}
	return videos, true
}

// Set stores a validated listing in both tiers.
func (c *SyllabusCache) Set(ctx context.Context, key string, videos []DetectedVideo) {
	if c == nil {
		return
	}
	data, err := json.Marshal(videos)
	if err != nil {
		return
	}
	c.SetRaw(ctx, key, data)
}

// Evict drops any entry for key from both tiers. Called on fetch failure so a
// transient error cannot poison lookups for the rest of the TTL window.
func (c *SyllabusCache) Evict(ctx context.Context, key string) {
	if c == nil {
		return
	}
	c.l1.Delete(key)
	if c.rdb != nil {
		if err := c.rdb.Del(ctx, key).Err(); err != nil {
			slog.Debug("cache: L2 evict failed", slog.Any("error", err))
		}
	}
}

// Reset clears L1 and the counters (test isolation). L2 is left alone.
func (c *SyllabusCache) Reset() {
	if c == nil {
		return
	}
	c.l1.Range(func(key, _ any) bool {
		c.l1.Delete(key)
		return true
	})
	c.hits.Store(0)
	c.misses.Store(0)
}

// Stats returns hit/miss counters for the metrics endpoint.
func (c *SyllabusCache) Stats() map[string]int64 {
	if c == nil {
		return map[string]int64{"cache_hits": 0, "cache_misses": 0}
	}
	return map[string]int64{
		"cache_hits":   c.hits.Load(),
		"cache_misses": c.misses.Load(),
	}
}

// evictIfNeeded removes entries when L1 exceeds maxEntries.
// Removes expired entries first, then oldest entries if still over limit.
func (c *SyllabusCache) evictIfNeeded() {
	if c.maxEntries <= 0 {
		return
	}

	count := 0
	c.l1.Range(func(_, _ any) bool {
		count++
		return true
	})
	if count < c.maxEntries {
		return
	}

	now := time.Now()
	c.l1.Range(func(key, val any) bool {
		if entry, ok := val.(*cacheEntry); ok && now.After(entry.expiresAt) {
			c.l1.Delete(key)
			count--
		}
		return count >= c.maxEntries
	})
	if count < c.maxEntries {
		return
	}

	// Oldest entry = earliest expiry, since expiry = createdAt + ttl.
	for count >= c.maxEntries {
		var oldestKey any
		oldestAt := now.Add(c.ttl + time.Hour)
		c.l1.Range(func(key, val any) bool {
			if entry, ok := val.(*cacheEntry); ok && entry.expiresAt.Before(oldestAt) {
				oldestKey = key
				oldestAt = entry.expiresAt
			}
			return true
		})
		if oldestKey == nil {
			break
		}
		c.l1.Delete(oldestKey)
		count--
	}
}
