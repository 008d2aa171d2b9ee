// go_lecture — Lecture Transcript Extraction MCP server.
//
// Exposes three MCP tools: lecture_detect_videos, lecture_list_section,
// lecture_extract_transcript. Detects lecture videos on learning-platform
// pages (Panopto, Echo360, YouTube, plain HTML5) and pulls their
// caption-track transcripts.
package main

import (
	"log/slog"
	"strings"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go-mcpserver"
	"github.com/anatolykoptev/go_lecture/internal/engine"
	"github.com/anatolykoptev/go_lecture/internal/engine/providers"
	"github.com/anatolykoptev/go_lecture/internal/lectureserver"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var (
	version = "dev"
	mcpPort = env.Str("MCP_PORT", "8893")
)

func main() {
	cache := initEngine()

	slog.Info("starting go_lecture",
		slog.String("port", mcpPort),
	)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "go_lecture",
		Version: version,
	}, nil)

	lectureserver.RegisterTools(server, lectureserver.Deps{
		Registry: providers.NewDefaultRegistry(cache),
		Fetcher:  engine.NewHTTPFetcher(),
		Cache:    cache,
	})
	slog.Info("tools registered", slog.Int("count", 3))

	if err := mcpserver.Run(server, mcpserver.Config{
		Name:         "go_lecture",
		Version:      version,
		Port:         mcpPort,
		WriteTimeout: 300 * time.Second,
		Metrics: func() string {
			return engine.FormatMetrics(cache.Stats())
		},
	}); err != nil {
		slog.Error("server failed", slog.Any("error", err))
	}
}

func initEngine() *engine.SyllabusCache {
	fc := engine.DefaultFetchConfig()
	fc.MaxRetries = env.Int("FETCH_MAX_RETRIES", fc.MaxRetries)
	fc.BaseDelay = env.Duration("FETCH_BASE_DELAY", fc.BaseDelay)
	fc.MaxDelay = env.Duration("FETCH_MAX_DELAY", fc.MaxDelay)
	fc.Timeout = env.Duration("FETCH_TIMEOUT", fc.Timeout)

	c := engine.Config{
		Fetch:           fc,
		PreferredLangs:  env.List("CAPTION_LANGS", "en"),
		SyllabusTTL:     env.Duration("SYLLABUS_TTL", 5*time.Minute),
		CacheMaxEntries: env.Int("CACHE_MAX_ENTRIES", 1000),
		RedisURL:        env.Str("REDIS_URL", ""),
		MaxFrameDepth:   env.Int("MAX_FRAME_DEPTH", 3),
	}

	bc, err := engine.NewBrowserClient()
	if err != nil {
		slog.Error("browser client init failed", slog.Any("error", err))
	} else {
		seedCookies(bc, env.Str("LECTURE_COOKIES", ""))
		c.Browser = bc
		slog.Info("browser client initialized")
	}

	engine.Init(c)

	return engine.NewSyllabusCache(c.RedisURL, c.SyllabusTTL, c.CacheMaxEntries)
}

// seedCookies loads session cookies from the LECTURE_COOKIES env var.
// Format: "https://echo360.org::PLAY_SESSION=abc; CloudFront-Key=xyz|https://uni.panopto.com::.ASPXAUTH=def"
func seedCookies(bc *engine.BrowserClient, raw string) {
	if raw == "" {
		return
	}
	for _, entry := range strings.Split(raw, "|") {
		origin, cookies, ok := strings.Cut(strings.TrimSpace(entry), "::")
		if !ok || origin == "" || cookies == "" {
			slog.Warn("skipping malformed cookie entry", slog.String("entry", entry))
			continue
		}
		if err := bc.SeedCookies(origin, cookies); err != nil {
			slog.Warn("cookie seeding failed", slog.String("origin", origin), slog.Any("error", err))
			continue
		}
		slog.Info("cookies seeded", slog.String("origin", origin))
	}
}
