package providers

import (
	"context"
	"testing"

	"github.com/anatolykoptev/go_lecture/internal/engine"
)

const testDeliveryID = "4a1b2c3d-0000-4000-8000-000000000001"

func TestParsePanoptoURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    PanoptoInfo
		wantOK  bool
	}{
		{
			name:   "embed url",
			url:    "https://uni.panopto.com/Panopto/Pages/Embed.aspx?id=" + testDeliveryID,
			want:   PanoptoInfo{Tenant: "uni.panopto.com", DeliveryID: testDeliveryID},
			wantOK: true,
		},
		{
			name:   "viewer url",
			url:    "https://uni.panopto.com/Panopto/Pages/Viewer.aspx?id=" + testDeliveryID,
			want:   PanoptoInfo{Tenant: "uni.panopto.com", DeliveryID: testDeliveryID},
			wantOK: true,
		},
		{
			name:   "case insensitive path and host",
			url:    "https://UNI.Panopto.com/panopto/pages/embed.aspx?id=" + testDeliveryID,
			want:   PanoptoInfo{Tenant: "uni.panopto.com", DeliveryID: testDeliveryID},
			wantOK: true,
		},
		{
			name:   "non-uuid id rejected",
			url:    "https://uni.panopto.com/Panopto/Pages/Embed.aspx?id=not-a-uuid",
			wantOK: false,
		},
		{
			name:   "wrong host",
			url:    "https://uni.example.com/Panopto/Pages/Embed.aspx?id=" + testDeliveryID,
			wantOK: false,
		},
		{
			name:   "wrong path",
			url:    "https://uni.panopto.com/Panopto/Pages/Sessions/List.aspx?id=" + testDeliveryID,
			wantOK: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParsePanoptoURL(tt.url)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPanoptoDetectSync(t *testing.T) {
	p := NewPanopto()

	dc := engine.DetectionContext{
		PageURL: "https://lms.example.edu/course/1",
		Frames: []engine.FrameInfo{
			{URL: "https://uni.panopto.com/Panopto/Pages/Embed.aspx?id=" + testDeliveryID, Title: "Week 3 lecture"},
			{URL: "https://uni.panopto.com/Panopto/Pages/Viewer.aspx?id=" + testDeliveryID}, // same delivery
			{URL: "https://other.example.com/frame"},
		},
	}

	videos := p.DetectSync(dc)
	if len(videos) != 1 {
		t.Fatalf("got %d videos, want 1 after dedup", len(videos))
	}
	v := videos[0]
	if v.ID != testDeliveryID || v.Provider != engine.ProviderPanopto {
		t.Errorf("video = %+v", v)
	}
	if v.Title != "Week 3 lecture" {
		t.Errorf("title = %q, want frame title", v.Title)
	}
	if v.PanoptoTenant != "uni.panopto.com" {
		t.Errorf("tenant = %q", v.PanoptoTenant)
	}
}

func TestExtractPanoptoCaptionURL(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "caption url array",
			html: `{"CaptionUrl":["https://uni.panopto.com/GetCaptionVTT.ashx?id=1"]}`,
			want: "https://uni.panopto.com/GetCaptionVTT.ashx?id=1",
		},
		{
			name: "captions object list",
			html: `{"Captions":[{"Language":"en","Url":"https://uni.panopto.com/cap.vtt"}]}`,
			want: "https://uni.panopto.com/cap.vtt",
		},
		{
			name: "bare ashx reference",
			html: `var u = "GetCaptionVTT.ashx?id=2&language=0";`,
			want: "https://uni.panopto.com/Panopto/Pages/GetCaptionVTT.ashx?id=2&language=0",
		},
		{
			name: "transcript url fallback",
			html: `{"TranscriptUrl":"\/Panopto\/Pages\/Transcription\/GenerateSRT.ashx?id=3"}`,
			want: "https://uni.panopto.com/Panopto/Pages/Transcription/GenerateSRT.ashx?id=3",
		},
		{
			name: "escaped slashes and ampersands",
			html: `{"CaptionUrl":["https:\/\/uni.panopto.com\/cap.vtt?a=1&amp;b=2"]}`,
			want: "https://uni.panopto.com/cap.vtt?a=1&b=2",
		},
		{
			name: "first pattern wins",
			html: `{"CaptionUrl":["https://uni.panopto.com/first.vtt"],"TranscriptUrl":"https://uni.panopto.com/second.vtt"}`,
			want: "https://uni.panopto.com/first.vtt",
		},
		{
			name: "nothing matches",
			html: `<html><body>no captions here</body></html>`,
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractPanoptoCaptionURL(tt.html, "uni.panopto.com"); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPanoptoExtractTranscript(t *testing.T) {
	p := NewPanopto()
	ctx := context.Background()
	video := engine.DetectedVideo{
		ID:            testDeliveryID,
		Provider:      engine.ProviderPanopto,
		PanoptoTenant: "uni.panopto.com",
	}

	t.Run("success", func(t *testing.T) {
		f := &fakeFetcher{pages: map[string]string{
			"Embed.aspx": `{"CaptionUrl":["https://uni.panopto.com/cap.vtt"]}`,
			"cap.vtt":    "WEBVTT\n\n00:00.000 --> 00:02.000\nhello from panopto\n",
		}}
		res := p.ExtractTranscript(ctx, f, video)
		if !res.Success {
			t.Fatalf("failed: %s %s", res.ErrorCode, res.Error)
		}
		if res.Transcript.PlainText != "hello from panopto" {
			t.Errorf("plain text = %q", res.Transcript.PlainText)
		}
	})

	t.Run("no caption track", func(t *testing.T) {
		f := &fakeFetcher{pages: map[string]string{
			"Embed.aspx": `<html>player without captions</html>`,
		}}
		res := p.ExtractTranscript(ctx, f, video)
		if res.Success || res.ErrorCode != engine.CodeNoCaptions {
			t.Errorf("got %+v, want NO_CAPTIONS", res)
		}
		if !res.AITranscriptionAvailable {
			t.Error("expected AI transcription fallback to be flagged")
		}
	})

	t.Run("auth required", func(t *testing.T) {
		f := &fakeFetcher{errs: map[string]error{
			"Embed.aspx": engine.ErrAuthRequired,
		}}
		res := p.ExtractTranscript(ctx, f, video)
		if res.Success || res.ErrorCode != engine.CodeAuthRequired {
			t.Errorf("got %+v, want AUTH_REQUIRED", res)
		}
	})

	t.Run("unparsable caption file", func(t *testing.T) {
		f := &fakeFetcher{pages: map[string]string{
			"Embed.aspx": `{"CaptionUrl":["https://uni.panopto.com/cap.vtt"]}`,
			"cap.vtt":    "this is not vtt",
		}}
		res := p.ExtractTranscript(ctx, f, video)
		if res.Success || res.ErrorCode != engine.CodeParseError {
			t.Errorf("got %+v, want PARSE_ERROR", res)
		}
	})

	t.Run("no identifiers", func(t *testing.T) {
		res := p.ExtractTranscript(ctx, &fakeFetcher{}, engine.DetectedVideo{
			ID: "zzz", Provider: engine.ProviderPanopto,
		})
		if res.Success || res.ErrorCode != engine.CodeInvalidVideo {
			t.Errorf("got %+v, want INVALID_VIDEO", res)
		}
	})
}
