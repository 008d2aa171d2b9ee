package engine

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DetectionContext is the value object handed to providers for synchronous
// detection: page URL plus collected iframe/DOM info. It carries everything
// DOM-dependent detection needs, so providers never touch a live rendering
// environment and tests can hand-build fixtures.
type DetectionContext struct {
	PageURL  string
	PageHTML string
	Frames   []FrameInfo
}

// NewDetectionContext builds a context from the host's captured page state.
// Iframes referenced by the page HTML (and, recursively, by same-origin frame
// HTML up to Cfg.MaxFrameDepth) are appended to the supplied frame list.
// Cross-origin frames keep their URL but are never recursed into; their
// content is inaccessible.
func NewDetectionContext(pageURL, pageHTML string, frames []FrameInfo) DetectionContext {
	dc := DetectionContext{PageURL: pageURL, PageHTML: pageHTML}

	seen := make(map[string]bool)
	for _, f := range frames {
		if f.URL == "" || seen[f.URL] {
			continue
		}
		seen[f.URL] = true
		dc.Frames = append(dc.Frames, f)
	}

	collectFrames(&dc, pageURL, pageHTML, 0, seen)
	for _, f := range frames {
		if f.HTML != "" && sameOrigin(pageURL, f.URL) {
			collectFrames(&dc, f.URL, f.HTML, f.Depth, seen)
		}
	}
	return dc
}

// collectFrames scans html for iframe elements and appends them to dc,
// recursing into same-origin frames whose HTML is inlined via srcdoc.
func collectFrames(dc *DetectionContext, baseURL, html string, depth int, seen map[string]bool) {
	if html == "" || depth >= Cfg.MaxFrameDepth {
		return
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return
	}
	doc.Find("iframe[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		abs, err := absoluteURL(baseURL, src)
		if err != nil || seen[abs] {
			return
		}
		seen[abs] = true
		title, _ := s.Attr("title")
		frame := FrameInfo{URL: abs, Title: title, Depth: depth + 1}
		if srcdoc, ok := s.Attr("srcdoc"); ok && sameOrigin(baseURL, abs) {
			frame.HTML = srcdoc
		}
		dc.Frames = append(dc.Frames, frame)
		if frame.HTML != "" {
			collectFrames(dc, abs, frame.HTML, depth+1, seen)
		}
	})
}

// FrameURLs returns every collected frame URL plus the page URL itself, the
// candidate set for URL-pattern matchers.
func (dc DetectionContext) FrameURLs() []string {
	urls := make([]string, 0, len(dc.Frames)+1)
	if dc.PageURL != "" {
		urls = append(urls, dc.PageURL)
	}
	for _, f := range dc.Frames {
		urls = append(urls, f.URL)
	}
	return urls
}

// Documents yields goquery documents for the page HTML and every same-origin
// frame HTML, in page-then-frames order.
func (dc DetectionContext) Documents() []*goquery.Document {
	var docs []*goquery.Document
	if dc.PageHTML != "" {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(dc.PageHTML)); err == nil {
			docs = append(docs, doc)
		}
	}
	for _, f := range dc.Frames {
		if f.HTML == "" {
			continue
		}
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(f.HTML)); err == nil {
			docs = append(docs, doc)
		}
	}
	return docs
}

func sameOrigin(a, b string) bool {
	ua, err1 := url.Parse(a)
	ub, err2 := url.Parse(b)
	if err1 != nil || err2 != nil {
		return false
	}
	return ua.Scheme == ub.Scheme && ua.Host == ub.Host
}

func absoluteURL(base, ref string) (string, error) {
	return resolveURL(base, ref)
}
