package engine

import (
	"net/http"
	"time"
)

// Config holds all engine configuration, injected from main.
type Config struct {
	Fetch          FetchConfig
	HTTPClient     *http.Client
	Browser        *BrowserClient // nil = credentialed fetches disabled
	PreferredLangs []string       // caption language preference, e.g. ["en"]

	SyllabusTTL     time.Duration
	CacheMaxEntries int
	RedisURL        string // empty = L1-only syllabus cache

	MaxFrameDepth int // bound for nested same-origin iframe scanning
}

var cfg Config

// Cfg exposes the engine configuration for sub-packages (providers, vtt).
// Always points to the current cfg value.
var Cfg = &cfg

// Init initializes the engine with the given configuration, filling zero
// values with defaults.
func Init(c Config) {
	if c.Fetch.MaxRetries == 0 && c.Fetch.BaseDelay == 0 {
		c.Fetch = DefaultFetchConfig()
	}
	if c.HTTPClient == nil {
		c.HTTPClient = newFetchHTTPClient()
	}
	if len(c.PreferredLangs) == 0 {
		c.PreferredLangs = []string{"en"}
	}
	if c.SyllabusTTL <= 0 {
		c.SyllabusTTL = 5 * time.Minute
	}
	if c.MaxFrameDepth <= 0 {
		c.MaxFrameDepth = 3
	}
	cfg = c
	Cfg = &cfg
}
