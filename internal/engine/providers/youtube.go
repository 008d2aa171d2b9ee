package providers

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strings"

	"github.com/anatolykoptev/go_lecture/internal/engine"
	"github.com/anatolykoptev/go_lecture/internal/engine/vtt"
)

// YouTube covers lecture recordings hosted as ordinary YouTube embeds.
// Transcript extraction scrapes the watch page's ytInitialPlayerResponse and
// fetches the chosen caption track's timedtext XML.
type YouTube struct{}

func NewYouTube() *YouTube { return &YouTube{} }

func (y *YouTube) ID() engine.ProviderID { return engine.ProviderYouTube }

var ytVideoIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ytInitialPlayerResponseMarker marks the start of the player response JSON
// in watch page HTML.
const ytInitialPlayerResponseMarker = "ytInitialPlayerResponse = "

func (y *YouTube) CanHandle(pageURL string) bool {
	_, ok := parseYouTubeID(pageURL)
	return ok
}

func (y *YouTube) RequiresAsyncDetection(string) bool { return false }

// parseYouTubeID extracts the 11-char video id from watch, embed and
// youtu.be URL shapes.
func parseYouTubeID(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")

	var id string
	switch {
	case host == "youtu.be":
		id = strings.Trim(u.Path, "/")
	case host == "youtube.com" || host == "m.youtube.com" || host == "youtube-nocookie.com":
		switch {
		case u.Path == "/watch":
			id = u.Query().Get("v")
		case strings.HasPrefix(u.Path, "/embed/"):
			id = strings.TrimPrefix(u.Path, "/embed/")
		case strings.HasPrefix(u.Path, "/live/"):
			id = strings.TrimPrefix(u.Path, "/live/")
		}
	}
	id = strings.Trim(id, "/")
	return id, ytVideoIDRe.MatchString(id)
}

func (y *YouTube) DetectSync(dc engine.DetectionContext) []engine.DetectedVideo {
	var videos []engine.DetectedVideo
	seen := make(map[string]bool)
	for _, rawURL := range dc.FrameURLs() {
		id, ok := parseYouTubeID(rawURL)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		videos = append(videos, engine.DetectedVideo{
			ID:       id,
			Provider: engine.ProviderYouTube,
			Title:    fmt.Sprintf("YouTube video %d", len(videos)+1),
			EmbedURL: "https://www.youtube.com/watch?v=" + id,
		})
	}
	return videos
}

// --- player response shapes (unknown fields ignored) ---

type ytPlayerResp struct {
	Captions *struct {
		PlayerCaptionsTracklistRenderer struct {
			CaptionTracks []ytCaptionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
	PlayabilityStatus *struct {
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
}

type ytCaptionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"` // "asr" = auto-generated
}

type ytTimedText struct {
	Lines []struct {
		Start float64 `xml:"start,attr"`
		Dur   float64 `xml:"dur,attr"`
		Text  string  `xml:",chardata"`
	} `xml:"text"`
}

// ExtractTranscript scrapes the watch page, picks the best caption track and
// converts its timedtext XML into the uniform transcript model.
func (y *YouTube) ExtractTranscript(ctx context.Context, f engine.Fetcher, v engine.DetectedVideo) engine.TranscriptExtractionResult {
	engine.IncrYouTubeExtracts()

	videoID := v.ID
	if !ytVideoIDRe.MatchString(videoID) {
		var ok bool
		if videoID, ok = parseYouTubeID(v.EmbedURL); !ok {
			return engine.ExtractionFailure(engine.CodeInvalidVideo, "video carries no YouTube id", false)
		}
	}

	watchURL := "https://www.youtube.com/watch?v=" + videoID
	html, err := f.FetchWithCredentials(ctx, watchURL)
	if err != nil {
		return fetchFailure(err, "watch page")
	}

	idx := strings.Index(html, ytInitialPlayerResponseMarker)
	if idx < 0 {
		return engine.ExtractionFailure(engine.CodeInvalidResponse, "ytInitialPlayerResponse not found in watch page", false)
	}
	jsonData := extractBalancedJSON(html[idx+len(ytInitialPlayerResponseMarker):])
	if jsonData == "" {
		return engine.ExtractionFailure(engine.CodeParseError, "failed to extract ytInitialPlayerResponse JSON", false)
	}

	var player ytPlayerResp
	if err := json.Unmarshal([]byte(jsonData), &player); err != nil {
		return engine.ExtractionFailure(engine.CodeParseError, fmt.Sprintf("decode player response: %v", err), false)
	}
	if player.Captions == nil {
		msg := "no captions in player response"
		if player.PlayabilityStatus != nil && player.PlayabilityStatus.Reason != "" {
			msg = "captions unavailable: " + player.PlayabilityStatus.Reason
		}
		return engine.ExtractionFailure(engine.CodeNoCaptions, msg, true)
	}
	tracks := player.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks
	if len(tracks) == 0 {
		return engine.ExtractionFailure(engine.CodeNoCaptions, "no caption tracks", true)
	}

	track := pickCaptionTrack(tracks, engine.Cfg.PreferredLangs)
	segments, err := fetchTimedText(ctx, f, track.BaseURL)
	if err != nil {
		return fetchFailure(err, "timedtext")
	}
	if len(segments) == 0 {
		engine.IncrCaptionParseFails()
		return engine.ExtractionFailure(engine.CodeParseError, "timedtext contained no usable lines", true)
	}
	return engine.ExtractionSuccess(vtt.NewResult(segments))
}

// pickCaptionTrack prefers a manual track in a preferred language, then an
// auto-generated one, then any English track, then the first.
func pickCaptionTrack(tracks []ytCaptionTrack, langs []string) ytCaptionTrack {
	for _, lang := range langs {
		for _, t := range tracks {
			if t.LanguageCode == lang && t.Kind != "asr" {
				return t
			}
		}
	}
	for _, lang := range langs {
		for _, t := range tracks {
			if t.LanguageCode == lang {
				return t
			}
		}
	}
	for _, t := range tracks {
		if strings.HasPrefix(t.LanguageCode, "en") {
			return t
		}
	}
	return tracks[0]
}

// fetchTimedText fetches and parses a timedtext XML caption URL into
// time-coded segments.
func fetchTimedText(ctx context.Context, f engine.Fetcher, baseURL string) ([]engine.TranscriptSegment, error) {
	body, err := f.FetchWithCredentials(ctx, baseURL)
	if err != nil {
		return nil, err
	}

	var tt ytTimedText
	if err := xml.Unmarshal([]byte(body), &tt); err != nil {
		return nil, fmt.Errorf("parse timedtext XML: %w", err)
	}

	var segments []engine.TranscriptSegment
	for _, line := range tt.Lines {
		text := engine.CleanHTML(line.Text)
		if text == "" {
			continue
		}
		startMs := int64(math.Round(line.Start * 1000))
		endMs := int64(math.Round((line.Start + line.Dur) * 1000))
		segments = append(segments, engine.TranscriptSegment{
			StartMs: startMs,
			EndMs:   &endMs,
			Text:    text,
		})
	}
	return segments, nil
}

// extractBalancedJSON returns the first balanced {...} object at the start
// of s, respecting string literals and escapes.
func extractBalancedJSON(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
