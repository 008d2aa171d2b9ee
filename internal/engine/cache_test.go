package engine

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestSyllabusCacheKey(t *testing.T) {
	c := NewSyllabusCache("", time.Minute, 100)

	t.Run("deterministic", func(t *testing.T) {
		k1 := c.Key("https://echo360.org", "sec-1")
		k2 := c.Key("https://echo360.org", "sec-1")
		if k1 != k2 {
			t.Errorf("key not deterministic: %q != %q", k1, k2)
		}
	})

	t.Run("different inputs differ", func(t *testing.T) {
		k1 := c.Key("https://echo360.org", "sec-1")
		k2 := c.Key("https://echo360.org", "sec-2")
		if k1 == k2 {
			t.Errorf("different inputs produced same key: %q", k1)
		}
	})

	t.Run("has prefix", func(t *testing.T) {
		if k := c.Key("x"); !strings.HasPrefix(k, "syl:") {
			t.Errorf("expected syl: prefix, got %q", k)
		}
	})
}

func TestSyllabusCacheRoundTrip(t *testing.T) {
	c := NewSyllabusCache("", time.Minute, 100)
	ctx := context.Background()
	key := c.Key("origin", "section")

	if _, ok := c.Get(ctx, key); ok {
		t.Error("expected miss on empty cache")
	}

	videos := []DetectedVideo{{ID: "m-1", Provider: ProviderEcho360, Title: "Week 1"}}
	c.Set(ctx, key, videos)

	got, ok := c.Get(ctx, key)
	if !ok {
		t.Fatal("expected hit after set")
	}
	if len(got) != 1 || got[0].ID != "m-1" || got[0].Title != "Week 1" {
		t.Errorf("got %+v", got)
	}
}

func TestSyllabusCacheExpiration(t *testing.T) {
	c := NewSyllabusCache("", time.Millisecond, 100)
	ctx := context.Background()
	key := c.Key("origin", "expiry")

	c.Set(ctx, key, []DetectedVideo{{ID: "temp"}})
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get(ctx, key); ok {
		t.Error("expected miss after TTL expiry")
	}
}

func TestSyllabusCacheEvict(t *testing.T) {
	c := NewSyllabusCache("", time.Minute, 100)
	ctx := context.Background()
	key := c.Key("origin", "evicted")

	c.Set(ctx, key, []DetectedVideo{{ID: "stale"}})
	c.Evict(ctx, key)

	if _, ok := c.Get(ctx, key); ok {
		t.Error("expected miss after explicit eviction")
	}
}

func TestSyllabusCacheMaxEntries(t *testing.T) {
	c := NewSyllabusCache("", time.Minute, 3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		key := c.Key("origin", fmt.Sprintf("sec-%d", i))
		c.Set(ctx, key, []DetectedVideo{{ID: fmt.Sprintf("v%d", i)}})
	}

	count := 0
	c.l1.Range(func(_, _ any) bool {
		count++
		return true
	})
	if count > 3 {
		t.Errorf("expected at most 3 entries after eviction, got %d", count)
	}
}

func TestSyllabusCacheStats(t *testing.T) {
	c := NewSyllabusCache("", time.Minute, 100)
	ctx := context.Background()
	key := c.Key("origin", "stats")

	c.Get(ctx, key)
	c.Set(ctx, key, []DetectedVideo{{ID: "v"}})
	c.Get(ctx, key)

	stats := c.Stats()
	if stats["cache_misses"] != 1 {
		t.Errorf("misses = %d, want 1", stats["cache_misses"])
	}
	if stats["cache_hits"] != 1 {
		t.Errorf("hits = %d, want 1", stats["cache_hits"])
	}

	c.Reset()
	stats = c.Stats()
	if stats["cache_hits"] != 0 || stats["cache_misses"] != 0 {
		t.Errorf("after reset: %v", stats)
	}
}

func TestSyllabusCacheCorruptEntryEvicted(t *testing.T) {
	c := NewSyllabusCache("", time.Minute, 100)
	ctx := context.Background()
	key := c.Key("origin", "corrupt")

	c.SetRaw(ctx, key, []byte("not json"))

	if _, ok := c.Get(ctx, key); ok {
		t.Error("expected miss for undecodable entry")
	}
	if _, ok := c.GetRaw(ctx, key); ok {
		t.Error("expected corrupt entry to be evicted")
	}
}

func TestSyllabusCacheNilSafe(t *testing.T) {
	var c *SyllabusCache
	stats := c.Stats()
	if stats["cache_hits"] != 0 {
		t.Errorf("nil cache stats = %v", stats)
	}
	c.Reset()
}
