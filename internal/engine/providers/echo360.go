package providers

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/anatolykoptev/go_lecture/internal/engine"
	"github.com/anatolykoptev/go_lecture/internal/engine/vtt"
	"github.com/google/uuid"
)

// Echo360Context carries the identifiers derivable from an Echo360 URL alone.
// EchoOrigin is always present when the context is non-nil.
type Echo360Context struct {
	EchoOrigin string
	SectionID  string
	LessonID   string
	MediaID    string
}

// Echo360 resolves section pages through the syllabus API and extracts
// per-lesson transcripts. Section listings go through a TTL cache.
type Echo360 struct {
	cache *engine.SyllabusCache
}

func NewEcho360(cache *engine.SyllabusCache) *Echo360 {
	return &Echo360{cache: cache}
}

func (e *Echo360) ID() engine.ProviderID { return engine.ProviderEcho360 }

func (e *Echo360) CanHandle(pageURL string) bool {
	return ParseEchoContext(pageURL) != nil
}

// RequiresAsyncDetection: section pages need the syllabus API; single-lesson
// pages resolve synchronously from the URL alone.
func (e *Echo360) RequiresAsyncDetection(pageURL string) bool {
	ec := ParseEchoContext(pageURL)
	return ec != nil && ec.SectionID != "" && ec.LessonID == ""
}

// ParseEchoContext derives identifiers purely from URL structure. Lesson ids
// are opaque (colons, dots, timestamps allowed); section ids must be UUIDs;
// each identifier falls back to alternate query parameter names.
func ParseEchoContext(rawURL string) *Echo360Context {
	u, err := url.Parse(rawURL)
	if err != nil || !strings.Contains(strings.ToLower(u.Hostname()), "echo360.") {
		return nil
	}
	ec := &Echo360Context{EchoOrigin: u.Scheme + "://" + u.Host}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		next := parts[i+1]
		switch parts[i] {
		case "section":
			if id, err := uuid.Parse(next); err == nil {
				ec.SectionID = id.String()
			}
		case "lesson":
			if next != "" {
				ec.LessonID = next
			}
		}
	}

	q := u.Query()
	if ec.SectionID == "" {
		for _, key := range []string{"sectionId", "section", "sid"} {
			if id, err := uuid.Parse(q.Get(key)); err == nil {
				ec.SectionID = id.String()
				break
			}
		}
	}
	if ec.LessonID == "" {
		for _, key := range []string{"lessonId", "lesson", "lid"} {
			if v := q.Get(key); v != "" {
				ec.LessonID = v
				break
			}
		}
	}
	for _, key := range []string{"mediaId", "media", "mid"} {
		if v := q.Get(key); v != "" {
			ec.MediaID = NormalizeEchoMediaID(v)
			break
		}
	}
	return ec
}

// DetectSync resolves single-lesson pages to exactly one video from the URL
// alone. Section pages yield nothing here; the caller must go async.
func (e *Echo360) DetectSync(dc engine.DetectionContext) []engine.DetectedVideo {
	for _, rawURL := range dc.FrameURLs() {
		ec := ParseEchoContext(rawURL)
		if ec == nil || ec.LessonID == "" {
			continue
		}
		id := ec.MediaID
		if id == "" {
			id = ec.LessonID
		}
		return []engine.DetectedVideo{{
			ID:           id,
			Provider:     engine.ProviderEcho360,
			Title:        "Echo360 lecture",
			EmbedURL:     ec.EchoOrigin + "/lesson/" + ec.LessonID + "/classroom",
			EchoBaseURL:  ec.EchoOrigin,
			EchoLessonID: ec.LessonID,
			EchoMediaID:  ec.MediaID,
		}}
	}
	return nil
}

// DetectAsync flattens the section's syllabus into playable media entries.
func (e *Echo360) DetectAsync(ctx context.Context, f engine.Fetcher, dc engine.DetectionContext) ([]engine.DetectedVideo, []engine.MediaSkip, error) {
	ec := ParseEchoContext(dc.PageURL)
	if ec == nil || ec.SectionID == "" {
		return nil, nil, nil
	}
	videos, skips := e.FetchSyllabus(ctx, f, ec.EchoOrigin, ec.SectionID)
	return videos, skips, nil
}

// FetchSyllabus resolves (origin, sectionId) to a flat video list through
// the TTL cache. Fetch failures evict any stale entry and degrade to an
// empty list; invalid response shapes log a diagnostic and are never cached.
func (e *Echo360) FetchSyllabus(ctx context.Context, f engine.Fetcher, origin, sectionID string) ([]engine.DetectedVideo, []engine.MediaSkip) {
	key := e.cache.Key(origin, sectionID)
	if videos, ok := e.cache.Get(ctx, key); ok {
		return videos, nil
	}

	engine.IncrSyllabusFetches()
	syllabusURL := origin + "/section/" + sectionID + "/syllabus"

	var raw any
	if err := f.FetchJSON(ctx, syllabusURL, &raw); err != nil {
		slog.Warn("echo360: syllabus fetch failed",
			slog.String("section", sectionID), slog.Any("error", err))
		e.cache.Evict(ctx, key)
		return nil, nil
	}

	entries, ok := syllabusEntries(raw)
	if !ok {
		slog.Warn("echo360: unexpected syllabus shape", slog.String("section", sectionID))
		return nil, nil
	}

	videos, skips := flattenSyllabus(origin, entries)
	e.cache.Set(ctx, key, videos)
	return videos, skips
}

// syllabusEntries accepts a non-null object with an array under "data",
// "lessons", or "data.lessons".
func syllabusEntries(raw any) ([]any, bool) {
	root, ok := raw.(map[string]any)
	if !ok {
		return nil, false
	}
	if arr, ok := root["data"].([]any); ok {
		return arr, true
	}
	if arr, ok := root["lessons"].([]any); ok {
		return arr, true
	}
	if data, ok := root["data"].(map[string]any); ok {
		if arr, ok := data["lessons"].([]any); ok {
			return arr, true
		}
	}
	return nil, false
}

// flattenSyllabus walks every entry, applies the readiness filter and
// deduplicates. A lesson with a real (non-folder) id but no qualifying media
// still yields one placeholder entry so extraction can be attempted.
func flattenSyllabus(origin string, entries []any) ([]engine.DetectedVideo, []engine.MediaSkip) {
	var videos []engine.DetectedVideo
	var skips []engine.MediaSkip
	seen := make(map[string]bool)

	for _, raw := range entries {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		chain := lessonChain(entry)
		lesson := chain[len(chain)-1]
		lessonID := stringField(lesson, "id", "lessonId")
		lessonName := stringField(lesson, "name", "displayName", "title")

		qualified := 0
		for _, media := range collectMedias(chain) {
			mediaID := NormalizeEchoMediaID(stringField(media, "id", "mediaId"))

			if reason, skip := mediaSkipReason(media); skip {
				skips = append(skips, engine.MediaSkip{LessonID: lessonID, MediaID: mediaID, Reason: reason})
				slog.Debug("echo360: media skipped",
					slog.String("lesson", lessonID),
					slog.String("media", mediaID),
					slog.String("reason", string(reason)))
				continue
			}

			key := "lesson:" + lessonID
			if mediaID != "" {
				key = "media:" + mediaID
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			qualified++

			videos = append(videos, engine.DetectedVideo{
				ID:           firstNonEmpty(mediaID, lessonID),
				Provider:     engine.ProviderEcho360,
				Title:        echoTitle(lessonName, media),
				EmbedURL:     origin + "/lesson/" + lessonID + "/classroom",
				DurationMs:   durationMsField(media),
				EchoBaseURL:  origin,
				EchoLessonID: lessonID,
				EchoMediaID:  mediaID,
			})
		}

		if qualified == 0 && lessonID != "" && !isFolder(entry, lesson) {
			key := "lesson:" + lessonID
			if seen[key] {
				continue
			}
			seen[key] = true
			title := lessonName
			if title == "" {
				title = "Echo360 lesson"
			}
			videos = append(videos, engine.DetectedVideo{
				ID:           lessonID,
				Provider:     engine.ProviderEcho360,
				Title:        title,
				EmbedURL:     origin + "/lesson/" + lessonID + "/classroom",
				EchoBaseURL:  origin,
				EchoLessonID: lessonID,
			})
		}
	}
	return videos, skips
}

// lessonChain handles the wrapper/nested-lesson indirection: the lesson
// record may sit at the entry itself, under "lesson", or one level deeper.
// Every level is returned, innermost last, because media lists are attached
// at different levels depending on the syllabus variant.
func lessonChain(entry map[string]any) []map[string]any {
	chain := []map[string]any{entry}
	current := entry
	for range 2 {
		inner, ok := current["lesson"].(map[string]any)
		if !ok {
			break
		}
		chain = append(chain, inner)
		current = inner
	}
	return chain
}

// collectMedias gathers media records from every known nesting location,
// innermost level first.
func collectMedias(chain []map[string]any) []map[string]any {
	var medias []map[string]any
	appendFrom := func(container map[string]any, key string) {
		switch v := container[key].(type) {
		case []any:
			for _, item := range v {
				if m, ok := item.(map[string]any); ok {
					medias = append(medias, m)
				}
			}
		case map[string]any:
			medias = append(medias, v)
		}
	}
	for _, key := range []string{"medias", "media", "videos"} {
		for i := len(chain) - 1; i >= 0; i-- {
			appendFrom(chain[i], key)
			if len(medias) > 0 {
				return medias
			}
		}
	}
	return medias
}

// mediaSkipReason applies the readiness filter; the precedence of the checks
// determines which reason code a multiply-flagged record gets.
func mediaSkipReason(media map[string]any) (engine.ErrorCode, bool) {
	if v, ok := media["isAvailable"].(bool); ok && !v {
		return engine.CodeNotAvailable, true
	}
	if v, ok := media["isProcessing"].(bool); ok && v {
		return engine.CodeMediaProcessing, true
	}
	if v, ok := media["isFailed"].(bool); ok && v {
		return engine.CodeMediaFailed, true
	}
	if v, ok := media["isPreliminary"].(bool); ok && v {
		return engine.CodeMediaPreliminary, true
	}
	if v, ok := media["isHiddenDueToCaptions"].(bool); ok && v {
		return engine.CodeMediaHidden, true
	}
	return "", false
}

// isAudioOnly determines media type from explicit markers, MIME-style
// strings, or the isAudioOnly flag. Untyped media counts as video: the
// upstream API omits type fields on some perfectly playable records.
func isAudioOnly(media map[string]any) bool {
	if v, ok := media["isAudioOnly"].(bool); ok {
		return v
	}
	t := strings.ToLower(stringField(media, "mediaType", "type", "contentType"))
	return t == "audio" || strings.HasPrefix(t, "audio/")
}

// echoTitle prefers the lesson's display name over the media's own title;
// audio-only media get an "(Audio)" suffix.
func echoTitle(lessonName string, media map[string]any) string {
	title := lessonName
	if title == "" {
		title = stringField(media, "title", "name")
	}
	if isAudioOnly(media) {
		if title == "" {
			return "Echo360 audio"
		}
		return title + " (Audio)"
	}
	if title == "" {
		title = "Echo360 lecture"
	}
	return title
}

func isFolder(entry, lesson map[string]any) bool {
	if v, ok := lesson["isFolder"].(bool); ok && v {
		return true
	}
	return strings.EqualFold(stringField(entry, "type"), "folder")
}

// NormalizeEchoMediaID lowercases brace-wrapped or UUID-shaped ids;
// everything else passes through trimmed.
func NormalizeEchoMediaID(id string) string {
	id = strings.TrimSpace(id)
	trimmed := strings.TrimSuffix(strings.TrimPrefix(id, "{"), "}")
	if parsed, err := uuid.Parse(trimmed); err == nil {
		return parsed.String()
	}
	return id
}

// ExtractTranscript fetches the lesson's transcript file and parses it.
func (e *Echo360) ExtractTranscript(ctx context.Context, f engine.Fetcher, v engine.DetectedVideo) engine.TranscriptExtractionResult {
	engine.IncrEchoExtracts()

	if v.EchoBaseURL == "" || v.EchoLessonID == "" {
		return engine.ExtractionFailure(engine.CodeInvalidVideo, "video carries no Echo360 identifiers", false)
	}

	transcriptURL := echoTranscriptURL(v)
	body, err := f.FetchWithCredentials(ctx, transcriptURL)
	if err != nil {
		return fetchFailure(err, "transcript file")
	}
	if strings.TrimSpace(body) == "" {
		return engine.ExtractionFailure(engine.CodeNoCaptions, "no transcript published for this lesson", true)
	}

	result := vtt.Parse(body)
	if len(result.Segments) == 0 {
		engine.IncrCaptionParseFails()
		return engine.ExtractionFailure(engine.CodeParseError, "transcript file contained no usable cues", true)
	}
	return engine.ExtractionSuccess(result)
}

// echoTranscriptURL builds the player transcript-file endpoint; the media id
// narrows the request when the lesson carries several tracks.
func echoTranscriptURL(v engine.DetectedVideo) string {
	if v.EchoMediaID != "" {
		return fmt.Sprintf("%s/api/ui/echoplayer/lessons/%s/medias/%s/transcript-file?format=vtt",
			v.EchoBaseURL, url.PathEscape(v.EchoLessonID), url.PathEscape(v.EchoMediaID))
	}
	return fmt.Sprintf("%s/api/ui/echoplayer/lessons/%s/transcript-file?format=vtt",
		v.EchoBaseURL, url.PathEscape(v.EchoLessonID))
}

// --- loose-JSON helpers ---

func stringField(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func durationMsField(m map[string]any) int64 {
	for _, key := range []string{"durationMs", "duration"} {
		if n, ok := m[key].(float64); ok && n > 0 {
			return int64(n)
		}
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
