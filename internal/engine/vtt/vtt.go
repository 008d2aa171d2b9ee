// Package vtt parses and formats WebVTT caption files into the engine's
// uniform transcript model. Pure text transformation, no I/O.
package vtt

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/anatolykoptev/go_lecture/internal/engine"
)

// cueTimingRe matches "<time> --> <time>[ <cue settings>]" where <time> is
// H:MM:SS.mmm or MM:SS.mmm with optional sub-second precision.
var cueTimingRe = regexp.MustCompile(`^((?:\d{1,2}:)?\d{1,2}:\d{1,2}(?:[.,]\d{1,3})?)\s+-->\s+((?:\d{1,2}:)?\d{1,2}:\d{1,2}(?:[.,]\d{1,3})?)(?:\s+.*)?$`)

// voiceRe captures the speaker name of a <v> tag; voice, class and generic
// inline tags are stripped in that order before entity decoding.
var (
	voiceRe      = regexp.MustCompile(`<v(?:\.[^\s>]+)*(?:\s+([^>]*))?>`)
	voiceCloseRe = regexp.MustCompile(`</v>`)
	classRe      = regexp.MustCompile(`</?c[^>]*>`)
	inlineTagRe  = regexp.MustCompile(`</?(?:b|i|u|ruby|rt|lang)(?:[\s.][^>]*)?>`)
)

// Parse converts WebVTT text into time-coded segments. Leading WEBVTT
// signature and NOTE/STYLE blocks are skipped; cue identifier lines are
// ignored when present and tolerated when absent; multi-line cue bodies are
// collapsed into one segment. Segments whose text is empty after tag
// stripping and entity decoding are dropped entirely.
func Parse(data string) engine.TranscriptResult {
	lines := strings.Split(strings.ReplaceAll(data, "\r\n", "\n"), "\n")

	var segments []engine.TranscriptSegment
	i := 0

	// Signature line, with optional trailing text after "WEBVTT".
	if i < len(lines) && strings.HasPrefix(strings.TrimSpace(lines[i]), "WEBVTT") {
		i++
	}

	for i < len(lines) {
		line := strings.TrimSpace(lines[i])

		if line == "" {
			i++
			continue
		}
		// NOTE and STYLE blocks run until the next blank line.
		if strings.HasPrefix(line, "NOTE") || line == "STYLE" || strings.HasPrefix(line, "STYLE ") {
			for i < len(lines) && strings.TrimSpace(lines[i]) != "" {
				i++
			}
			continue
		}

		m := cueTimingRe.FindStringSubmatch(line)
		if m == nil {
			// Probably a cue identifier; the timing line must follow directly.
			if i+1 < len(lines) {
				if m2 := cueTimingRe.FindStringSubmatch(strings.TrimSpace(lines[i+1])); m2 != nil {
					i++
					m = m2
					line = strings.TrimSpace(lines[i])
				}
			}
			if m == nil {
				i++ // stray line outside any cue
				continue
			}
		}

		startMs := ParseTimestamp(m[1])
		endMs := ParseTimestamp(m[2])
		i++

		var body []string
		for i < len(lines) && strings.TrimSpace(lines[i]) != "" {
			body = append(body, strings.TrimSpace(lines[i]))
			i++
		}

		text, speaker := cleanCueText(strings.Join(body, " "))
		if text == "" {
			continue
		}
		end := endMs
		seg := engine.TranscriptSegment{StartMs: startMs, Text: text, Speaker: speaker}
		if end >= startMs {
			seg.EndMs = &end
		}
		segments = append(segments, seg)
	}

	return NewResult(segments)
}

// NewResult assembles the uniform transcript model: plain text is the
// space-joined segment texts in order, duration is the last segment's end
// (or start when it has no end), zero when there are no segments.
func NewResult(segments []engine.TranscriptSegment) engine.TranscriptResult {
	texts := make([]string, 0, len(segments))
	for _, s := range segments {
		texts = append(texts, s.Text)
	}
	var duration int64
	if n := len(segments); n > 0 {
		last := segments[n-1]
		duration = last.StartMs
		if last.EndMs != nil {
			duration = *last.EndMs
		}
	}
	return engine.TranscriptResult{
		PlainText:  strings.Join(texts, " "),
		Segments:   segments,
		DurationMs: duration,
	}
}

// cleanCueText strips caption markup and decodes entities. The speaker name
// of the first voice tag, if any, is returned separately.
func cleanCueText(s string) (text, speaker string) {
	if m := voiceRe.FindStringSubmatch(s); m != nil {
		speaker = strings.TrimSpace(m[1])
	}
	s = voiceRe.ReplaceAllString(s, "")
	s = voiceCloseRe.ReplaceAllString(s, "")
	s = classRe.ReplaceAllString(s, "")
	s = inlineTagRe.ReplaceAllString(s, "")
	s = decodeEntities(s)
	return strings.TrimSpace(s), speaker
}

// ParseTimestamp converts "H:MM:SS.mmm" or "MM:SS.mmm" to milliseconds.
// Malformed input (wrong segment count, non-numeric parts) yields 0.
func ParseTimestamp(ts string) int64 {
	parts := strings.Split(strings.TrimSpace(ts), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0
	}

	var h, m int64
	var err error
	secPart := parts[len(parts)-1]
	if len(parts) == 3 {
		if h, err = strconv.ParseInt(parts[0], 10, 64); err != nil {
			return 0
		}
		if m, err = strconv.ParseInt(parts[1], 10, 64); err != nil {
			return 0
		}
	} else {
		if m, err = strconv.ParseInt(parts[0], 10, 64); err != nil {
			return 0
		}
	}

	secStr, msStr, _ := strings.Cut(strings.ReplaceAll(secPart, ",", "."), ".")
	sec, err := strconv.ParseInt(secStr, 10, 64)
	if err != nil {
		return 0
	}
	var ms int64
	if msStr != "" {
		// "9" means 900ms, "91" means 910ms.
		for len(msStr) < 3 {
			msStr += "0"
		}
		if ms, err = strconv.ParseInt(msStr[:3], 10, 64); err != nil {
			return 0
		}
	}

	return ((h*60+m)*60+sec)*1000 + ms
}

// FormatTimestamp renders milliseconds as HH:MM:SS.mmm.
func FormatTimestamp(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	h := ms / 3600000
	m := (ms % 3600000) / 60000
	s := (ms % 60000) / 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms%1000)
}

// Format is the parser's inverse for well-formed input: WEBVTT header,
// sequential numeric cue ids, HH:MM:SS.mmm --> HH:MM:SS.mmm timing lines.
func Format(segments []engine.TranscriptSegment) string {
	var sb strings.Builder
	sb.WriteString("WEBVTT\n\n")
	for i, seg := range segments {
		end := seg.StartMs
		if seg.EndMs != nil {
			end = *seg.EndMs
		}
		fmt.Fprintf(&sb, "%d\n%s --> %s\n%s\n\n",
			i+1, FormatTimestamp(seg.StartMs), FormatTimestamp(end), seg.Text)
	}
	return sb.String()
}
