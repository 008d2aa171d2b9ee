package engine

import "testing"

func TestNewDetectionContextCollectsFrames(t *testing.T) {
	Init(Config{})

	html := `<html><body>
		<iframe src="https://uni.panopto.com/Panopto/Pages/Embed.aspx?id=abc" title="Lecture 1"></iframe>
		<iframe src="/player/embed"></iframe>
	</body></html>`

	dc := NewDetectionContext("https://lms.example.edu/course/1", html, nil)
	if len(dc.Frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(dc.Frames))
	}
	if dc.Frames[0].URL != "https://uni.panopto.com/Panopto/Pages/Embed.aspx?id=abc" {
		t.Errorf("frame 0 URL = %q", dc.Frames[0].URL)
	}
	if dc.Frames[0].Title != "Lecture 1" {
		t.Errorf("frame 0 title = %q", dc.Frames[0].Title)
	}
	if dc.Frames[1].URL != "https://lms.example.edu/player/embed" {
		t.Errorf("relative src not resolved: %q", dc.Frames[1].URL)
	}
}

func TestNewDetectionContextDedupesFrames(t *testing.T) {
	Init(Config{})

	html := `<iframe src="https://uni.panopto.com/Panopto/Pages/Embed.aspx?id=abc"></iframe>`
	supplied := []FrameInfo{
		{URL: "https://uni.panopto.com/Panopto/Pages/Embed.aspx?id=abc"},
		{URL: "https://uni.panopto.com/Panopto/Pages/Embed.aspx?id=abc"},
	}

	dc := NewDetectionContext("https://lms.example.edu/course/1", html, supplied)
	if len(dc.Frames) != 1 {
		t.Errorf("got %d frames, want 1 after dedup", len(dc.Frames))
	}
}

func TestNewDetectionContextSrcdocRecursion(t *testing.T) {
	Init(Config{MaxFrameDepth: 3})

	inner := `<iframe src="https://lms.example.edu/inner"></iframe>`
	html := `<iframe src="https://lms.example.edu/outer" srcdoc='` + inner + `'></iframe>`

	dc := NewDetectionContext("https://lms.example.edu/course/1", html, nil)
	if len(dc.Frames) != 2 {
		t.Fatalf("got %d frames, want 2 (outer + recursed inner)", len(dc.Frames))
	}
	if dc.Frames[1].URL != "https://lms.example.edu/inner" {
		t.Errorf("inner frame URL = %q", dc.Frames[1].URL)
	}
	if dc.Frames[1].Depth != 2 {
		t.Errorf("inner frame depth = %d, want 2", dc.Frames[1].Depth)
	}
}

func TestNewDetectionContextCrossOriginNotRecursed(t *testing.T) {
	Init(Config{})

	inner := `<iframe src="https://evil.example.com/x"></iframe>`
	html := `<iframe src="https://other.example.org/outer" srcdoc='` + inner + `'></iframe>`

	dc := NewDetectionContext("https://lms.example.edu/course/1", html, nil)
	if len(dc.Frames) != 1 {
		t.Fatalf("got %d frames, want 1 (cross-origin srcdoc ignored)", len(dc.Frames))
	}
	if dc.Frames[0].HTML != "" {
		t.Error("cross-origin frame should carry no HTML")
	}
}

func TestFrameURLsIncludesPageFirst(t *testing.T) {
	dc := DetectionContext{
		PageURL: "https://lms.example.edu/course/1",
		Frames:  []FrameInfo{{URL: "https://uni.panopto.com/embed"}},
	}
	urls := dc.FrameURLs()
	if len(urls) != 2 || urls[0] != "https://lms.example.edu/course/1" {
		t.Errorf("FrameURLs = %v", urls)
	}
}

func TestSameOrigin(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"https://a.example.com/x", "https://a.example.com/y", true},
		{"https://a.example.com/x", "http://a.example.com/x", false},
		{"https://a.example.com/x", "https://b.example.com/x", false},
		{"://bad", "https://a.example.com", false},
	}
	for _, tt := range tests {
		if got := sameOrigin(tt.a, tt.b); got != tt.want {
			t.Errorf("sameOrigin(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
