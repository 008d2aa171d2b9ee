package providers

import (
	"context"
	"strings"
	"testing"

	"github.com/anatolykoptev/go_lecture/internal/engine"
)

func html5Context(t *testing.T, body string) engine.DetectionContext {
	t.Helper()
	engine.Init(engine.Config{})
	return engine.NewDetectionContext("https://lms.example.edu/course/1",
		"<html><body>"+body+"</body></html>", nil)
}

func TestHTML5DetectSync(t *testing.T) {
	h := NewHTML5()

	t.Run("basic video with tracks", func(t *testing.T) {
		dc := html5Context(t, `
			<video id="lecture-player" src="https://cdn.example.edu/lecture-03_intro.mp4"
			       aria-label="Intro lecture" data-duration="3600">
				<track kind="captions" src="https://cdn.example.edu/lecture-03.vtt">
				<track kind="chapters" src="https://cdn.example.edu/chapters.vtt">
			</video>`)

		videos := h.DetectSync(dc)
		if len(videos) != 1 {
			t.Fatalf("got %d videos, want 1", len(videos))
		}
		v := videos[0]
		if v.Provider != engine.ProviderHTML5 {
			t.Errorf("provider = %s", v.Provider)
		}
		if v.Title != "Intro lecture" {
			t.Errorf("title = %q, want aria-label", v.Title)
		}
		if v.MediaURL != "https://cdn.example.edu/lecture-03_intro.mp4" {
			t.Errorf("media URL = %q", v.MediaURL)
		}
		if v.DOMID != "lecture-player" {
			t.Errorf("DOM id = %q", v.DOMID)
		}
		if len(v.TrackURLs) != 1 || v.TrackURLs[0] != "https://cdn.example.edu/lecture-03.vtt" {
			t.Errorf("track URLs = %v, chapters track must be excluded", v.TrackURLs)
		}
		if v.DurationMs != 3600000 {
			t.Errorf("duration = %d, want 3600000", v.DurationMs)
		}
		if !strings.HasPrefix(v.ID, "html5-") {
			t.Errorf("id = %q", v.ID)
		}
	})

	t.Run("hidden videos are skipped", func(t *testing.T) {
		dc := html5Context(t, `
			<video src="https://cdn.example.edu/a.mp4" hidden></video>
			<div aria-hidden="true"><video src="https://cdn.example.edu/b.mp4"></video></div>
			<div style="display: none"><video src="https://cdn.example.edu/c.mp4"></video></div>
			<details><video src="https://cdn.example.edu/d.mp4"></video></details>
			<video src="https://cdn.example.edu/visible.mp4"></video>`)

		videos := h.DetectSync(dc)
		if len(videos) != 1 {
			t.Fatalf("got %d videos, want 1 (only the visible one)", len(videos))
		}
		if videos[0].MediaURL != "https://cdn.example.edu/visible.mp4" {
			t.Errorf("media URL = %q", videos[0].MediaURL)
		}
	})

	t.Run("source child fallback", func(t *testing.T) {
		dc := html5Context(t, `
			<video><source src="https://cdn.example.edu/multi.webm" type="video/webm"></video>`)
		videos := h.DetectSync(dc)
		if len(videos) != 1 || videos[0].MediaURL != "https://cdn.example.edu/multi.webm" {
			t.Fatalf("videos = %+v", videos)
		}
	})

	t.Run("title from filename", func(t *testing.T) {
		dc := html5Context(t, `<video src="https://cdn.example.edu/lecture-03_intro.mp4"></video>`)
		videos := h.DetectSync(dc)
		if len(videos) != 1 {
			t.Fatal("expected one video")
		}
		if videos[0].Title != "lecture 03 intro" {
			t.Errorf("title = %q, want filename-derived", videos[0].Title)
		}
	})

	t.Run("drm detection", func(t *testing.T) {
		tests := []struct {
			name string
			html string
			want bool
		}{
			{"plain mp4", `<video src="https://cdn.example.edu/a.mp4"></video>`, false},
			{"hls url", `<video src="https://cdn.example.edu/stream.m3u8"></video>`, true},
			{"dash url", `<video src="https://cdn.example.edu/stream.mpd"></video>`, true},
			{"dash mime", `<video><source src="https://cdn.example.edu/s" type="application/dash+xml"></video>`, true},
			{"explicit marker", `<video src="https://cdn.example.edu/a.mp4" data-drm="true"></video>`, true},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				videos := h.DetectSync(html5Context(t, tt.html))
				if len(videos) != 1 {
					t.Fatal("expected one video")
				}
				if videos[0].DRMDetected != tt.want {
					t.Errorf("DRM = %v, want %v", videos[0].DRMDetected, tt.want)
				}
			})
		}
	})

	t.Run("selector path uses id shortcut", func(t *testing.T) {
		dc := html5Context(t, `<div id="player-box"><video src="https://cdn.example.edu/a.mp4"></video></div>`)
		videos := h.DetectSync(dc)
		if len(videos) != 1 {
			t.Fatal("expected one video")
		}
		want := "#player-box > video:nth-of-type(1)"
		if videos[0].DOMSelector != want {
			t.Errorf("selector = %q, want %q", videos[0].DOMSelector, want)
		}
	})
}

func TestHTML5ExtractTranscript(t *testing.T) {
	h := NewHTML5()
	ctx := context.Background()

	t.Run("first track fetched and parsed", func(t *testing.T) {
		f := &fakeFetcher{pages: map[string]string{
			"lecture-03.vtt": "WEBVTT\n\n00:00.000 --> 00:02.000\ntrack text\n",
		}}
		res := h.ExtractTranscript(ctx, f, engine.DetectedVideo{
			ID:        "html5-abc",
			Provider:  engine.ProviderHTML5,
			TrackURLs: []string{"https://cdn.example.edu/lecture-03.vtt"},
		})
		if !res.Success {
			t.Fatalf("failed: %s %s", res.ErrorCode, res.Error)
		}
		if res.Transcript.PlainText != "track text" {
			t.Errorf("plain text = %q", res.Transcript.PlainText)
		}
	})

	t.Run("trackless video offers AI fallback", func(t *testing.T) {
		res := h.ExtractTranscript(ctx, &fakeFetcher{}, engine.DetectedVideo{
			ID: "html5-abc", Provider: engine.ProviderHTML5,
		})
		if res.Success || res.ErrorCode != engine.CodeNoCaptions {
			t.Errorf("got %+v, want NO_CAPTIONS", res)
		}
		if !res.AITranscriptionAvailable {
			t.Error("expected AI transcription flag")
		}
	})
}
