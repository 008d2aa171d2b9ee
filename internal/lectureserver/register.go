// Package lectureserver exposes the extraction engine as MCP tools:
// lecture_detect_videos, lecture_list_section, lecture_extract_transcript.
package lectureserver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/anatolykoptev/go_lecture/internal/engine"
	"github.com/anatolykoptev/go_lecture/internal/engine/providers"
	"github.com/anatolykoptev/go_lecture/internal/toolutil"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Deps carries everything the tool handlers need, injected from main so
// tests can wire fakes.
type Deps struct {
	Registry *providers.Registry
	Fetcher  engine.Fetcher
	Cache    *engine.SyllabusCache
}

// RegisterTools registers all lecture tools on the given MCP server.
func RegisterTools(server *mcp.Server, deps Deps) {
	registerDetectVideos(server, deps)
	registerListSection(server, deps)
	registerExtractTranscript(server, deps)
}

func registerDetectVideos(server *mcp.Server, deps Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "lecture_detect_videos",
		Description: "Detect lecture videos on a learning-platform page. Accepts the page URL plus optional captured HTML and iframe list; returns the matched provider and the detected videos. Echo360 section pages are resolved through the syllabus API.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input engine.DetectInput) (*mcp.CallToolResult, engine.DetectOutput, error) {
		if input.PageURL == "" {
			return nil, engine.DetectOutput{}, fmt.Errorf("page_url is required")
		}

		dc := engine.NewDetectionContext(input.PageURL, input.PageHTML, input.Frames)
		outcome := deps.Registry.DetectVideos(dc)

		out := engine.DetectOutput{
			Provider:      outcome.Provider,
			RequiresAsync: outcome.RequiresAsync,
			Videos:        outcome.Videos,
		}

		if outcome.RequiresAsync {
			p, ok := deps.Registry.ProviderForURL(dc.PageURL)
			if ok {
				if async, isAsync := p.(providers.AsyncDetector); isAsync {
					videos, skips, err := async.DetectAsync(ctx, deps.Fetcher, dc)
					if err != nil {
						slog.Warn("detect: async detection failed",
							slog.String("provider", string(p.ID())), slog.Any("error", err))
					}
					out.Videos = videos
					out.Skipped = skips
				}
			}
		}
		if out.Videos == nil {
			out.Videos = []engine.DetectedVideo{}
		}
		return nil, out, nil
	})
}

func registerListSection(server *mcp.Server, deps Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "lecture_list_section",
		Description: "Flatten an Echo360 section's syllabus into playable media entries, including skip diagnostics for media that is processing, failed, preliminary or hidden.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input engine.SectionInput) (*mcp.CallToolResult, engine.SectionOutput, error) {
		if input.SectionURL == "" {
			return nil, engine.SectionOutput{}, fmt.Errorf("section_url is required")
		}
		ec := providers.ParseEchoContext(input.SectionURL)
		if ec == nil || ec.SectionID == "" {
			return nil, engine.SectionOutput{}, fmt.Errorf("not an Echo360 section URL: %s", input.SectionURL)
		}

		echo, ok := echoProvider(deps.Registry)
		if !ok {
			return nil, engine.SectionOutput{}, fmt.Errorf("echo360 provider not registered")
		}

		videos, skips := echo.FetchSyllabus(ctx, deps.Fetcher, ec.EchoOrigin, ec.SectionID)
		if videos == nil {
			videos = []engine.DetectedVideo{}
		}
		return nil, engine.SectionOutput{
			Origin:    ec.EchoOrigin,
			SectionID: ec.SectionID,
			Videos:    videos,
			Skipped:   skips,
		}, nil
	})
}

func registerExtractTranscript(server *mcp.Server, deps Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "lecture_extract_transcript",
		Description: "Extract the spoken-word transcript of a previously detected lecture video. Returns time-coded segments plus plain text; failures carry a machine-readable error code and whether AI transcription is a viable fallback.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input engine.ExtractInput) (*mcp.CallToolResult, engine.TranscriptExtractionResult, error) {
		v := input.Video
		if v.ID == "" || v.Provider == "" {
			return nil, engine.ExtractionFailure(engine.CodeInvalidVideo, "video id and provider are required", false), nil
		}

		cacheKey := deps.Cache.Key("transcript", string(v.Provider), v.ID)
		if out, ok := toolutil.CacheLoadJSON[engine.TranscriptExtractionResult](ctx, deps.Cache, cacheKey); ok && out.Success {
			return nil, out, nil
		}

		out := deps.Registry.ExtractTranscript(ctx, deps.Fetcher, v)
		if out.Success {
			toolutil.CacheStoreJSON(ctx, deps.Cache, cacheKey, out)
		}
		return nil, out, nil
	})
}

func echoProvider(r *providers.Registry) (*providers.Echo360, bool) {
	for _, p := range r.Providers() {
		if echo, ok := p.(*providers.Echo360); ok {
			return echo, true
		}
	}
	return nil, false
}
