package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	fhttp "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
)

// BrowserClient wraps tls-client with a Chrome TLS fingerprint and a cookie
// jar. The jar is the credential model for cross-origin endpoints: lecture
// platforms gate caption data behind session cookies.
type BrowserClient struct {
	client tls_client.HttpClient
}

// NewBrowserClient creates a client that impersonates Chrome 131.
// Redirects are followed manually (see Get) so callers can observe the final
// URL of wrapper/redirect pages.
func NewBrowserClient() (*BrowserClient, error) {
	jar := tls_client.NewCookieJar()
	opts := []tls_client.HttpClientOption{
		tls_client.WithTimeoutSeconds(30),
		tls_client.WithClientProfile(profiles.Chrome_131),
		tls_client.WithNotFollowRedirects(),
		tls_client.WithCookieJar(jar),
		tls_client.WithInsecureSkipVerify(),
	}
	client, err := tls_client.NewHttpClient(nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("tls-client init: %w", err)
	}
	return &BrowserClient{client: client}, nil
}

// SeedCookies installs a raw Cookie header value ("a=1; b=2") for an origin.
func (bc *BrowserClient) SeedCookies(origin, rawCookies string) error {
	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("seed cookies: %w", err)
	}
	var cookies []*fhttp.Cookie
	for _, part := range strings.Split(rawCookies, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || name == "" {
			continue
		}
		cookies = append(cookies, &fhttp.Cookie{Name: name, Value: value, Path: "/"})
	}
	bc.client.SetCookies(u, cookies)
	return nil
}

// Get fetches a URL with Chrome TLS fingerprint, following up to 10
// redirects. Returns body bytes, HTTP status, the final URL after redirects,
// and any transport error.
func (bc *BrowserClient) Get(ctx context.Context, rawURL string) (body []byte, status int, finalURL string, err error) {
	current := rawURL
	for hop := 0; hop < 10; hop++ {
		req, err := fhttp.NewRequestWithContext(ctx, fhttp.MethodGet, current, nil)
		if err != nil {
			return nil, 0, current, fmt.Errorf("build request: %w", err)
		}
		for k, v := range chromeHeaders() {
			req.Header.Set(k, v)
		}
		// Chrome-like header order matters for fingerprinting
		req.Header[fhttp.HeaderOrderKey] = []string{
			"accept",
			"accept-language",
			"accept-encoding",
			"referer",
			"cookie",
			"user-agent",
		}

		resp, err := bc.client.Do(req)
		if err != nil {
			return nil, 0, current, fmt.Errorf("tls request: %w", err)
		}

		if isRedirectStatus(resp.StatusCode) {
			loc := resp.Header.Get("Location")
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			if loc == "" {
				return nil, resp.StatusCode, current, fmt.Errorf("redirect without location from %s", current)
			}
			next, err := resolveURL(current, loc)
			if err != nil {
				return nil, resp.StatusCode, current, err
			}
			current = next
			continue
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, resp.StatusCode, current, fmt.Errorf("read body: %w", err)
		}
		return data, resp.StatusCode, current, nil
	}
	return nil, 0, current, fmt.Errorf("stopped after 10 redirects from %s", rawURL)
}

func isRedirectStatus(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func resolveURL(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse redirect url: %w", err)
	}
	return b.ResolveReference(r).String(), nil
}

// chromeHeaders returns common Chrome browser headers.
func chromeHeaders() map[string]string {
	return map[string]string{
		"accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"accept-language": "en-US,en;q=0.9",
		"accept-encoding": "gzip, deflate, br",
		"user-agent":      UserAgentChrome,
	}
}
