package engine

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Metrics tracks operational counters across the engine.
var metrics struct {
	DetectRequests    atomic.Int64
	ExtractRequests   atomic.Int64
	FetchRequests     atomic.Int64
	FetchErrors       atomic.Int64
	SyllabusFetches   atomic.Int64
	PanoptoExtracts   atomic.Int64
	EchoExtracts      atomic.Int64
	HTML5Extracts     atomic.Int64
	YouTubeExtracts   atomic.Int64
	ExtractFailures   atomic.Int64
	CaptionParseFails atomic.Int64
}

// Incrementors for the providers sub-package.
func IncrDetectRequests()    { metrics.DetectRequests.Add(1) }
func IncrExtractRequests()   { metrics.ExtractRequests.Add(1) }
func IncrSyllabusFetches()   { metrics.SyllabusFetches.Add(1) }
func IncrPanoptoExtracts()   { metrics.PanoptoExtracts.Add(1) }
func IncrEchoExtracts()      { metrics.EchoExtracts.Add(1) }
func IncrHTML5Extracts()     { metrics.HTML5Extracts.Add(1) }
func IncrYouTubeExtracts()   { metrics.YouTubeExtracts.Add(1) }
func IncrExtractFailures()   { metrics.ExtractFailures.Add(1) }
func IncrCaptionParseFails() { metrics.CaptionParseFails.Add(1) }

// GetMetrics returns a snapshot of all counters.
func GetMetrics() map[string]int64 {
	return map[string]int64{
		"detect_requests":     metrics.DetectRequests.Load(),
		"extract_requests":    metrics.ExtractRequests.Load(),
		"fetch_requests":      metrics.FetchRequests.Load(),
		"fetch_errors":        metrics.FetchErrors.Load(),
		"syllabus_fetches":    metrics.SyllabusFetches.Load(),
		"panopto_extracts":    metrics.PanoptoExtracts.Load(),
		"echo_extracts":       metrics.EchoExtracts.Load(),
		"html5_extracts":      metrics.HTML5Extracts.Load(),
		"youtube_extracts":    metrics.YouTubeExtracts.Load(),
		"extract_failures":    metrics.ExtractFailures.Load(),
		"caption_parse_fails": metrics.CaptionParseFails.Load(),
	}
}

// FormatMetrics returns metrics as a simple text format for HTTP endpoint.
// extra entries (e.g. cache hit/miss counters) are appended in the given order.
func FormatMetrics(extra ...map[string]int64) string {
	m := GetMetrics()
	var sb strings.Builder
	keys := []string{
		"detect_requests", "extract_requests",
		"fetch_requests", "fetch_errors",
		"syllabus_fetches",
		"panopto_extracts", "echo_extracts", "html5_extracts", "youtube_extracts",
		"extract_failures", "caption_parse_fails",
	}
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	for _, em := range extra {
		for k, v := range em {
			fmt.Fprintf(&sb, "%s %d\n", k, v)
		}
	}
	return sb.String()
}
