// Package toolutil provides shared helper functions for go_lecture MCP tools.
package toolutil

import (
	"context"
	"encoding/json"

	"github.com/anatolykoptev/go_lecture/internal/engine"
)

// CacheLoadJSON tries to load a cached value of type T from the given cache.
// Returns the decoded value and true on hit; zero value and false on miss or
// decode error.
func CacheLoadJSON[T any](ctx context.Context, c *engine.SyllabusCache, key string) (T, bool) {
	var zero T
	data, ok := c.GetRaw(ctx, key)
	if !ok {
		return zero, false
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, false
	}
	return out, true
}

// CacheStoreJSON marshals v and stores it under key.
func CacheStoreJSON[T any](ctx context.Context, c *engine.SyllabusCache, key string, v T) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.SetRaw(ctx, key, data)
}
