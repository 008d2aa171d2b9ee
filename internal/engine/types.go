package engine

// --- Provider identity ---

// ProviderID identifies a lecture video platform.
type ProviderID string

const (
	ProviderPanopto ProviderID = "panopto"
	ProviderEcho360 ProviderID = "echo360"
	ProviderHTML5   ProviderID = "html5"
	ProviderYouTube ProviderID = "youtube"
	ProviderUnknown ProviderID = "unknown"
)

// --- Detection types ---

// DetectedVideo is one playable video found on a page.
// Identity key is (Provider, ID); ID is provider-specific: a Panopto delivery
// GUID, an Echo360 lesson/media GUID, a YouTube video id, or a derived hash
// for anonymous HTML5 elements. Never persisted beyond the page session.
type DetectedVideo struct {
	ID       string     `json:"id"`
	Provider ProviderID `json:"provider"`
	Title    string     `json:"title"`
	EmbedURL string     `json:"embed_url"`

	MediaURL    string   `json:"media_url,omitempty"`
	DOMID       string   `json:"dom_id,omitempty"`
	DOMSelector string   `json:"dom_selector,omitempty"`
	TrackURLs   []string `json:"track_urls,omitempty"`
	DurationMs  int64    `json:"duration_ms,omitempty"`
	DRMDetected bool     `json:"drm_detected,omitempty"`

	PanoptoTenant string `json:"panopto_tenant,omitempty"`

	EchoLessonID string `json:"echo_lesson_id,omitempty"`
	EchoMediaID  string `json:"echo_media_id,omitempty"`
	EchoBaseURL  string `json:"echo_base_url,omitempty"`
}

// FrameInfo is one iframe captured by the host. Depth counts nesting levels
// below the top page; cross-origin frames have empty HTML (their content is
// inaccessible to the host and they are skipped).
type FrameInfo struct {
	URL   string `json:"url"`
	HTML  string `json:"html,omitempty"`
	Title string `json:"title,omitempty"`
	Depth int    `json:"depth,omitempty"`
}

// --- Transcript types ---

// TranscriptSegment is one time-coded piece of spoken text.
// StartMs is always >= 0; EndMs, when present, is >= StartMs.
type TranscriptSegment struct {
	StartMs    int64   `json:"start_ms"`
	EndMs      *int64  `json:"end_ms,omitempty"`
	Text       string  `json:"text"`
	Speaker    string  `json:"speaker,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// TranscriptResult is the uniform transcript model every provider produces.
type TranscriptResult struct {
	PlainText  string              `json:"plain_text"`
	Segments   []TranscriptSegment `json:"segments"`
	DurationMs int64               `json:"duration_ms,omitempty"`
}

// TranscriptExtractionResult is the tagged outcome of one extraction attempt.
// Failure is data, not control flow: this struct crosses the public boundary
// instead of an error value.
type TranscriptExtractionResult struct {
	Success                  bool              `json:"success"`
	Transcript               *TranscriptResult `json:"transcript,omitempty"`
	Error                    string            `json:"error,omitempty"`
	ErrorCode                ErrorCode         `json:"error_code,omitempty"`
	AITranscriptionAvailable bool              `json:"ai_transcription_available,omitempty"`
}

// MediaSkip records one Echo360 media record excluded by the readiness filter.
type MediaSkip struct {
	LessonID string    `json:"lesson_id,omitempty"`
	MediaID  string    `json:"media_id,omitempty"`
	Reason   ErrorCode `json:"reason"`
}

// --- MCP tool IO ---

type DetectInput struct {
	PageURL  string      `json:"page_url" jsonschema:"URL of the learning-platform page to inspect"`
	PageHTML string      `json:"page_html,omitempty" jsonschema:"Raw HTML of the page, for DOM-based detection"`
	Frames   []FrameInfo `json:"frames,omitempty" jsonschema:"Captured iframes (same-origin frames include their HTML)"`
}

type DetectOutput struct {
	Provider      ProviderID      `json:"provider"`
	RequiresAsync bool            `json:"requires_async"`
	Videos        []DetectedVideo `json:"videos"`
	Skipped       []MediaSkip     `json:"skipped,omitempty"`
}

type SectionInput struct {
	SectionURL string `json:"section_url" jsonschema:"Echo360 section URL, e.g. https://echo360.org/section/<uuid>/home"`
}

type SectionOutput struct {
	Origin    string          `json:"origin"`
	SectionID string          `json:"section_id"`
	Videos    []DetectedVideo `json:"videos"`
	Skipped   []MediaSkip     `json:"skipped,omitempty"`
}

type ExtractInput struct {
	Video DetectedVideo `json:"video" jsonschema:"A video previously returned by lecture_detect_videos"`
}
