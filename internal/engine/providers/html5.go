package providers

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/anatolykoptev/go_lecture/internal/engine"
	"github.com/anatolykoptev/go_lecture/internal/engine/vtt"
)

// HTML5 scans raw <video> elements. It has no URL space of its own: it is
// the fallback the unified detection chain runs last.
type HTML5 struct{}

func NewHTML5() *HTML5 { return &HTML5{} }

func (h *HTML5) ID() engine.ProviderID { return engine.ProviderHTML5 }

func (h *HTML5) CanHandle(string) bool { return false }

func (h *HTML5) RequiresAsyncDetection(string) bool { return false }

// drmManifestTypes are source MIME types implying a packaged (and usually
// DRM-capable) stream rather than a plain file.
var drmManifestTypes = []string{
	"application/dash+xml",
	"application/x-mpegurl",
	"application/vnd.apple.mpegurl",
}

// DetectSync walks every visible <video> element in the page and same-origin
// frame documents.
func (h *HTML5) DetectSync(dc engine.DetectionContext) []engine.DetectedVideo {
	var videos []engine.DetectedVideo
	seen := make(map[string]bool)

	for _, doc := range dc.Documents() {
		doc.Find("video").Each(func(i int, s *goquery.Selection) {
			if isHiddenElement(s) {
				return
			}
			mediaURL := resolveMediaURL(s)
			selector := selectorPath(s)

			id := deriveVideoID(mediaURL, selector)
			if seen[id] {
				return
			}
			seen[id] = true

			domID, _ := s.Attr("id")
			videos = append(videos, engine.DetectedVideo{
				ID:          id,
				Provider:    engine.ProviderHTML5,
				Title:       resolveTitle(s, mediaURL, len(videos)+1),
				EmbedURL:    dc.PageURL,
				MediaURL:    mediaURL,
				DOMID:       domID,
				DOMSelector: selector,
				TrackURLs:   trackURLs(s),
				DurationMs:  durationAttr(s),
				DRMDetected: detectDRM(s, mediaURL),
			})
		})
	}
	return videos
}

// isHiddenElement applies the attribute/style visibility checks to the
// element and its ancestors. Computed styles are unavailable on a serialized
// DOM, so inline style and attribute signals are the contract.
func isHiddenElement(s *goquery.Selection) bool {
	for node := s; node.Length() > 0; node = node.Parent() {
		if _, ok := node.Attr("hidden"); ok {
			return true
		}
		if v, _ := node.Attr("aria-hidden"); v == "true" {
			return true
		}
		style, _ := node.Attr("style")
		style = strings.ToLower(strings.ReplaceAll(style, " ", ""))
		if strings.Contains(style, "display:none") || strings.Contains(style, "opacity:0;") ||
			strings.HasSuffix(style, "opacity:0") {
			return true
		}
		// A collapsed <details> hides everything inside it.
		if goquery.NodeName(node) == "details" {
			if _, open := node.Attr("open"); !open {
				return true
			}
		}
	}
	return false
}

// resolveMediaURL picks the best available source: the host-serialized
// current source, the src attribute, then the first <source> child.
func resolveMediaURL(s *goquery.Selection) string {
	if v, ok := s.Attr("data-current-src"); ok && v != "" {
		return v
	}
	if v, ok := s.Attr("src"); ok && v != "" {
		return v
	}
	if v, ok := s.Find("source[src]").First().Attr("src"); ok && v != "" {
		return v
	}
	return ""
}

// trackURLs collects caption/subtitle track sources.
func trackURLs(s *goquery.Selection) []string {
	var urls []string
	s.Find("track[src]").Each(func(_ int, t *goquery.Selection) {
		kind, _ := t.Attr("kind")
		if kind != "" && kind != "captions" && kind != "subtitles" {
			return
		}
		if src, _ := t.Attr("src"); src != "" {
			urls = append(urls, src)
		}
	})
	return urls
}

// resolveTitle tries, in order: explicit label, nearby heading/caption,
// filename from the URL, positional fallback.
func resolveTitle(s *goquery.Selection, mediaURL string, position int) string {
	for _, attr := range []string{"aria-label", "title"} {
		if v, _ := s.Attr(attr); strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	if fig := s.Closest("figure"); fig.Length() > 0 {
		if caption := fig.Find("figcaption").First(); caption.Length() > 0 {
			if t := engine.CollapseWhitespace(caption.Text()); t != "" {
				return t
			}
		}
	}
	if heading := s.Parent().Find("h1, h2, h3, h4, h5, h6").First(); heading.Length() > 0 {
		if t := engine.CollapseWhitespace(heading.Text()); t != "" {
			return t
		}
	}
	if t := engine.FilenameFromURL(mediaURL); t != "" {
		return t
	}
	return fmt.Sprintf("Video %d", position)
}

func durationAttr(s *goquery.Selection) int64 {
	for _, attr := range []string{"data-duration", "duration"} {
		if v, ok := s.Attr(attr); ok {
			if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
				return int64(secs * 1000)
			}
		}
	}
	return 0
}

// detectDRM looks for explicit markers or manifest MIME types (DASH/HLS).
func detectDRM(s *goquery.Selection, mediaURL string) bool {
	if v, _ := s.Attr("data-drm"); v == "true" {
		return true
	}
	check := func(t string) bool {
		t = strings.ToLower(t)
		for _, m := range drmManifestTypes {
			if strings.HasPrefix(t, m) {
				return true
			}
		}
		return false
	}
	if t, _ := s.Attr("type"); check(t) {
		return true
	}
	drm := false
	s.Find("source[type]").Each(func(_ int, src *goquery.Selection) {
		if t, _ := src.Attr("type"); check(t) {
			drm = true
		}
	})
	if drm {
		return true
	}
	lower := strings.ToLower(mediaURL)
	return strings.Contains(lower, ".mpd") || strings.Contains(lower, ".m3u8")
}

// selectorPath builds a stable-ish CSS path for later re-identification: up
// to 4 ancestor levels with nth-of-type disambiguation, cut short by any id.
func selectorPath(s *goquery.Selection) string {
	var parts []string
	node := s
	for level := 0; level < 4 && node.Length() > 0; level++ {
		name := goquery.NodeName(node)
		if name == "" || name == "html" || strings.HasPrefix(name, "#") {
			break
		}
		if id, ok := node.Attr("id"); ok && id != "" {
			parts = append([]string{"#" + id}, parts...)
			return strings.Join(parts, " > ")
		}
		idx := node.PrevAllFiltered(name).Length() + 1
		parts = append([]string{fmt.Sprintf("%s:nth-of-type(%d)", name, idx)}, parts...)
		if name == "body" {
			break
		}
		node = node.Parent()
	}
	return strings.Join(parts, " > ")
}

// deriveVideoID hashes the media URL and DOM path: anonymous elements need a
// stable identity within the page session.
func deriveVideoID(mediaURL, selector string) string {
	sum := sha256.Sum256([]byte(mediaURL + "|" + selector))
	return fmt.Sprintf("html5-%x", sum[:6])
}

// ExtractTranscript fetches the first caption track when one exists;
// trackless videos are the AI-transcription fallback case.
func (h *HTML5) ExtractTranscript(ctx context.Context, f engine.Fetcher, v engine.DetectedVideo) engine.TranscriptExtractionResult {
	engine.IncrHTML5Extracts()

	if len(v.TrackURLs) == 0 {
		return engine.ExtractionFailure(engine.CodeNoCaptions, "video element has no caption tracks", true)
	}

	body, err := f.FetchWithCredentials(ctx, v.TrackURLs[0])
	if err != nil {
		return fetchFailure(err, "caption track")
	}
	result := vtt.Parse(body)
	if len(result.Segments) == 0 {
		engine.IncrCaptionParseFails()
		return engine.ExtractionFailure(engine.CodeParseError, "caption track contained no usable cues", true)
	}
	return engine.ExtractionSuccess(result)
}
