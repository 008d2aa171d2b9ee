// Package providers implements the platform-specific detection and
// transcript-extraction logic behind a shared provider contract.
package providers

import (
	"context"

	"github.com/anatolykoptev/go_lecture/internal/engine"
)

// Provider is the contract every platform implementation satisfies.
type Provider interface {
	ID() engine.ProviderID

	// CanHandle reports whether this provider is responsible for the URL.
	// Provider URL spaces are assumed disjoint in practice.
	CanHandle(pageURL string) bool

	// RequiresAsyncDetection reports that detection for this URL needs a
	// network call and DetectSync will not produce results for it.
	RequiresAsyncDetection(pageURL string) bool

	// DetectSync produces videos from the detection context without any
	// network access.
	DetectSync(dc engine.DetectionContext) []engine.DetectedVideo

	// ExtractTranscript obtains the transcript for a previously detected
	// video. Failures come back as data, never as a panic or error value.
	ExtractTranscript(ctx context.Context, f engine.Fetcher, v engine.DetectedVideo) engine.TranscriptExtractionResult
}

// AsyncDetector is implemented by providers whose detection resolves through
// a platform API (Echo360 syllabus).
type AsyncDetector interface {
	DetectAsync(ctx context.Context, f engine.Fetcher, dc engine.DetectionContext) ([]engine.DetectedVideo, []engine.MediaSkip, error)
}

// DetectionOutcome is the result of registry-level detection.
type DetectionOutcome struct {
	Provider      engine.ProviderID
	RequiresAsync bool
	Videos        []engine.DetectedVideo
}

// Registry holds the ordered set of providers. Registration order is
// provider precedence; first match wins.
type Registry struct {
	providers []Provider
}

// NewRegistry creates an empty registry. Tests create independent instances
// instead of sharing a singleton.
func NewRegistry() *Registry {
	return &Registry{}
}

// NewDefaultRegistry wires the full provider set in precedence order.
// HTML5 goes last: it is the fallback for pages no platform matcher claims.
func NewDefaultRegistry(cache *engine.SyllabusCache) *Registry {
	r := NewRegistry()
	r.Register(NewPanopto())
	r.Register(NewEcho360(cache))
	r.Register(NewYouTube())
	r.Register(NewHTML5())
	return r
}

// Register appends a provider. A provider with an already-registered ID is
// ignored: registration is idempotent, not an error.
func (r *Registry) Register(p Provider) {
	for _, existing := range r.providers {
		if existing.ID() == p.ID() {
			return
		}
	}
	r.providers = append(r.providers, p)
}

// Clear resets registration (test isolation / hot-reload).
func (r *Registry) Clear() {
	r.providers = nil
}

// Providers returns the registered providers in order.
func (r *Registry) Providers() []Provider {
	return r.providers
}

// ProviderForURL returns the first registered provider whose CanHandle
// accepts the URL.
func (r *Registry) ProviderForURL(url string) (Provider, bool) {
	for _, p := range r.providers {
		if p.CanHandle(url) {
			return p, true
		}
	}
	return nil, false
}

// DetectVideosSync delegates to the provider matching the page URL. When that
// provider needs network access for this context, the outcome carries
// RequiresAsync=true and an empty video list instead of blocking.
func (r *Registry) DetectVideosSync(dc engine.DetectionContext) DetectionOutcome {
	engine.IncrDetectRequests()

	p, ok := r.ProviderForURL(dc.PageURL)
	if !ok {
		return DetectionOutcome{Provider: engine.ProviderUnknown}
	}
	if p.RequiresAsyncDetection(dc.PageURL) {
		return DetectionOutcome{Provider: p.ID(), RequiresAsync: true}
	}
	return DetectionOutcome{Provider: p.ID(), Videos: p.DetectSync(dc)}
}

// DetectVideos is the unified sync entry point: providers are tried in
// registration order and the first that yields videos wins. A provider that
// matches the page URL but needs async resolution short-circuits with
// RequiresAsync=true so the caller can invoke DetectAsync.
func (r *Registry) DetectVideos(dc engine.DetectionContext) DetectionOutcome {
	engine.IncrDetectRequests()

	for _, p := range r.providers {
		if p.CanHandle(dc.PageURL) && p.RequiresAsyncDetection(dc.PageURL) {
			return DetectionOutcome{Provider: p.ID(), RequiresAsync: true}
		}
		if videos := p.DetectSync(dc); len(videos) > 0 {
			return DetectionOutcome{Provider: p.ID(), Videos: videos}
		}
	}
	return DetectionOutcome{Provider: engine.ProviderUnknown}
}

// ExtractTranscript routes an extraction request to the provider named in
// the video itself. Unknown providers yield NOT_AVAILABLE, not an error.
func (r *Registry) ExtractTranscript(ctx context.Context, f engine.Fetcher, v engine.DetectedVideo) engine.TranscriptExtractionResult {
	engine.IncrExtractRequests()

	for _, p := range r.providers {
		if p.ID() == v.Provider {
			res := p.ExtractTranscript(ctx, f, v)
			if !res.Success {
				engine.IncrExtractFailures()
			}
			return res
		}
	}
	engine.IncrExtractFailures()
	return engine.ExtractionFailure(engine.CodeNotAvailable, "unsupported provider: "+string(v.Provider), false)
}
