package providers

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/anatolykoptev/go_lecture/internal/engine"
	"github.com/anatolykoptev/go_lecture/internal/engine/vtt"
	"github.com/google/uuid"
)

// PanoptoInfo identifies one recorded session: the tenant is the full
// customer host, the delivery id is Panopto's opaque session GUID.
type PanoptoInfo struct {
	Tenant     string
	DeliveryID string
}

// panoptoPageRe matches the Embed.aspx / Viewer.aspx URL shape; the id query
// parameter is validated separately as a UUID.
var panoptoPageRe = regexp.MustCompile(`(?i)^/Panopto/Pages/(?:Embed|Viewer)\.aspx$`)

// panoptoMarkerRes locate identifiers inside wrapper-page HTML when the URL
// itself is an indirect redirect. Tried in order, first match wins.
var panoptoMarkerRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(https://[a-z0-9.-]+\.panopto\.com)/Panopto/Pages/(?:Embed|Viewer)\.aspx\?[^"'\s]*id=([0-9a-fA-F-]{36})`),
	regexp.MustCompile(`"DeliveryId"\s*:\s*"([0-9a-fA-F-]{36})"`),
}

// captionURLRes is the ordered fallback chain for finding a caption VTT URL
// in embed-page bootstrap data. Upstream markup changes regularly; new
// patterns get appended here without touching calling code.
var captionURLRes = []*regexp.Regexp{
	regexp.MustCompile(`"CaptionUrl"\s*:\s*\[\s*"([^"]+)"`),
	regexp.MustCompile(`"Captions"\s*:\s*\[\s*\{[^}]*?"Url"\s*:\s*"([^"]+)"`),
	regexp.MustCompile(`[a-zA-Z0-9_:/.\\-]*GetCaptionVTT\.ashx\?[^"'\s<>]+`),
	regexp.MustCompile(`"TranscriptUrl"\s*:\s*"([^"]+)"`),
}

// Panopto detects lecture-capture embeds and extracts their caption tracks.
type Panopto struct{}

func NewPanopto() *Panopto { return &Panopto{} }

func (p *Panopto) ID() engine.ProviderID { return engine.ProviderPanopto }

func (p *Panopto) CanHandle(pageURL string) bool {
	u, err := url.Parse(pageURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Hostname()), ".panopto.com")
}

func (p *Panopto) RequiresAsyncDetection(string) bool { return false }

// ParsePanoptoURL extracts (tenant, deliveryId) from an embed/viewer URL.
func ParsePanoptoURL(rawURL string) (PanoptoInfo, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return PanoptoInfo{}, false
	}
	host := strings.ToLower(u.Hostname())
	if !strings.HasSuffix(host, ".panopto.com") || !panoptoPageRe.MatchString(u.Path) {
		return PanoptoInfo{}, false
	}
	id, err := uuid.Parse(u.Query().Get("id"))
	if err != nil {
		return PanoptoInfo{}, false
	}
	return PanoptoInfo{Tenant: host, DeliveryID: id.String()}, true
}

// DetectSync scans the collected iframe list and the page URL itself for the
// embed/viewer URL shape, deduplicating by delivery id.
func (p *Panopto) DetectSync(dc engine.DetectionContext) []engine.DetectedVideo {
	var videos []engine.DetectedVideo
	seen := make(map[string]bool)

	add := func(info PanoptoInfo, title string) {
		if seen[info.DeliveryID] {
			return
		}
		seen[info.DeliveryID] = true
		if title == "" {
			title = fmt.Sprintf("Panopto video %d", len(videos)+1)
		}
		videos = append(videos, engine.DetectedVideo{
			ID:            info.DeliveryID,
			Provider:      engine.ProviderPanopto,
			Title:         title,
			EmbedURL:      embedURLFor(info),
			PanoptoTenant: info.Tenant,
		})
	}

	if info, ok := ParsePanoptoURL(dc.PageURL); ok {
		add(info, "")
	}
	for _, f := range dc.Frames {
		if info, ok := ParsePanoptoURL(f.URL); ok {
			add(info, f.Title)
		}
	}
	return videos
}

func embedURLFor(info PanoptoInfo) string {
	return fmt.Sprintf("https://%s/Panopto/Pages/Embed.aspx?id=%s", info.Tenant, info.DeliveryID)
}

// ExtractTranscript resolves the delivery, fetches the embed page with
// credentials, locates a caption VTT URL and parses it.
func (p *Panopto) ExtractTranscript(ctx context.Context, f engine.Fetcher, v engine.DetectedVideo) engine.TranscriptExtractionResult {
	engine.IncrPanoptoExtracts()

	info, res := p.resolveInfo(ctx, f, v)
	if res != nil {
		return *res
	}

	html, err := f.FetchWithCredentials(ctx, embedURLFor(info))
	if err != nil {
		return fetchFailure(err, "embed page")
	}

	capURL := ExtractPanoptoCaptionURL(html, info.Tenant)
	if capURL == "" {
		slog.Debug("panopto: no caption url in embed page", slog.String("delivery", info.DeliveryID))
		return engine.ExtractionFailure(engine.CodeNoCaptions, "no caption track published for this session", true)
	}

	vttText, err := f.FetchWithCredentials(ctx, capURL)
	if err != nil {
		return fetchFailure(err, "caption file")
	}

	result := vtt.Parse(vttText)
	if len(result.Segments) == 0 {
		engine.IncrCaptionParseFails()
		return engine.ExtractionFailure(engine.CodeParseError, "caption file contained no usable cues", true)
	}
	return engine.ExtractionSuccess(result)
}

// resolveInfo derives (tenant, deliveryId) from video metadata, from the
// embed URL pattern, or by following a wrapper/redirect page.
func (p *Panopto) resolveInfo(ctx context.Context, f engine.Fetcher, v engine.DetectedVideo) (PanoptoInfo, *engine.TranscriptExtractionResult) {
	if v.PanoptoTenant != "" && v.ID != "" {
		if id, err := uuid.Parse(v.ID); err == nil {
			return PanoptoInfo{Tenant: strings.ToLower(v.PanoptoTenant), DeliveryID: id.String()}, nil
		}
	}
	if info, ok := ParsePanoptoURL(v.EmbedURL); ok {
		return info, nil
	}
	if v.EmbedURL == "" {
		fail := engine.ExtractionFailure(engine.CodeInvalidVideo, "video carries no Panopto identifiers", false)
		return PanoptoInfo{}, &fail
	}

	// Indirect wrapper: fetch it and re-derive from the redirected location
	// or embedded markers.
	html, finalURL, err := f.FetchHTMLWithRedirectInfo(ctx, v.EmbedURL)
	if err != nil {
		fail := fetchFailure(err, "wrapper page")
		return PanoptoInfo{}, &fail
	}
	if info, ok := ParsePanoptoURL(finalURL); ok {
		return info, nil
	}
	if info, ok := findPanoptoMarkers(html, finalURL); ok {
		return info, nil
	}
	fail := engine.ExtractionFailure(engine.CodeNotAvailable, "could not resolve Panopto delivery from wrapper page", false)
	return PanoptoInfo{}, &fail
}

// findPanoptoMarkers scans wrapper HTML for embed URLs or a bare DeliveryId,
// borrowing the tenant from the final URL when the marker has none.
func findPanoptoMarkers(html, finalURL string) (PanoptoInfo, bool) {
	if m := panoptoMarkerRes[0].FindStringSubmatch(html); m != nil {
		u, err := url.Parse(m[1])
		if err == nil {
			if id, err := uuid.Parse(m[2]); err == nil {
				return PanoptoInfo{Tenant: strings.ToLower(u.Hostname()), DeliveryID: id.String()}, true
			}
		}
	}
	if m := panoptoMarkerRes[1].FindStringSubmatch(html); m != nil {
		u, err := url.Parse(finalURL)
		if err == nil && strings.HasSuffix(strings.ToLower(u.Hostname()), ".panopto.com") {
			if id, err := uuid.Parse(m[1]); err == nil {
				return PanoptoInfo{Tenant: strings.ToLower(u.Hostname()), DeliveryID: id.String()}, true
			}
		}
	}
	return PanoptoInfo{}, false
}

// ExtractPanoptoCaptionURL finds a caption VTT URL in embed-page HTML using
// the ordered pattern chain. Returns "" when nothing matches.
func ExtractPanoptoCaptionURL(html, tenant string) string {
	for _, re := range captionURLRes {
		m := re.FindStringSubmatch(html)
		if m == nil {
			continue
		}
		raw := m[0]
		if len(m) > 1 {
			raw = m[1]
		}
		if u := normalizeCaptionURL(raw, tenant); u != "" {
			return u
		}
	}
	return ""
}

// normalizeCaptionURL unescapes JSON-escaped separators and resolves
// tenant-relative paths.
func normalizeCaptionURL(raw, tenant string) string {
	raw = strings.ReplaceAll(raw, `\/`, "/")
	raw = strings.ReplaceAll(raw, "&amp;", "&")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	if strings.HasPrefix(raw, "/") {
		return "https://" + tenant + raw
	}
	return "https://" + tenant + "/Panopto/Pages/" + raw
}

// fetchFailure maps a fetch-layer error onto the public taxonomy. Auth
// failures are surfaced as a sign-in problem, never retried upstream.
func fetchFailure(err error, what string) engine.TranscriptExtractionResult {
	code := engine.CodeForFetchError(err)
	if code == engine.CodeAuthRequired {
		return engine.ExtractionFailure(code, "sign-in required to access the "+what, false)
	}
	return engine.ExtractionFailure(code, fmt.Sprintf("fetching %s: %v", what, err), false)
}
