package vtt

import (
	"regexp"
	"strconv"
	"strings"
)

// namedEntities is the fixed table of entities seen in caption payloads.
var namedEntities = map[string]string{
	"&amp;":    "&",
	"&lt;":     "<",
	"&gt;":     ">",
	"&quot;":   `"`,
	"&apos;":   "'",
	"&nbsp;":   " ",
	"&hellip;": "…",
	"&mdash;":  "—",
	"&ndash;":  "–",
	"&lsquo;":  "‘",
	"&rsquo;":  "’",
	"&ldquo;":  "“",
	"&rdquo;":  "”",
	"&#39;":    "'",
	"&#34;":    `"`,
}

var numericEntityRe = regexp.MustCompile(`&#(x[0-9a-fA-F]{1,6}|\d{1,7});`)

// decodeEntities resolves the named table plus generic &#NNN; and &#xHHH;
// numeric forms. Unknown named entities are left as-is.
func decodeEntities(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	for name, repl := range namedEntities {
		s = strings.ReplaceAll(s, name, repl)
	}
	return numericEntityRe.ReplaceAllStringFunc(s, func(m string) string {
		code := m[2 : len(m)-1]
		base := 10
		if code[0] == 'x' || code[0] == 'X' {
			base = 16
			code = code[1:]
		}
		n, err := strconv.ParseInt(code, base, 32)
		if err != nil || n <= 0 {
			return m
		}
		return string(rune(n))
	})
}
