package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Fetcher is the seam between the engine and the host's network stack.
// The engine never performs raw I/O outside an implementation of this
// interface, so detection and extraction logic stays testable against
// httptest servers or canned fixtures.
type Fetcher interface {
	// FetchWithCredentials GETs a URL with the session cookie jar attached.
	// A 401/403 maps to ErrAuthRequired and is never retried.
	FetchWithCredentials(ctx context.Context, url string) (string, error)

	// FetchJSON GETs a URL through the resilient fetch layer and decodes the
	// body into v.
	FetchJSON(ctx context.Context, url string, v any) error

	// FetchHTMLWithRedirectInfo is FetchWithCredentials plus the final URL
	// after redirects, for resolving wrapper/redirect pages.
	FetchHTMLWithRedirectInfo(ctx context.Context, url string) (html, finalURL string, err error)
}

// HTTPFetcher is the default Fetcher: credentialed paths go through the
// browser-fingerprint client, JSON endpoints through the plain HTTP client
// wrapped in the resilient fetch layer.
type HTTPFetcher struct {
	Browser *BrowserClient
	Client  *http.Client
	Config  FetchConfig
}

// NewHTTPFetcher builds a fetcher from the engine configuration.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		Browser: cfg.Browser,
		Client:  cfg.HTTPClient,
		Config:  cfg.Fetch,
	}
}

func (f *HTTPFetcher) FetchWithCredentials(ctx context.Context, url string) (string, error) {
	html, _, err := f.FetchHTMLWithRedirectInfo(ctx, url)
	return html, err
}

func (f *HTTPFetcher) FetchHTMLWithRedirectInfo(ctx context.Context, url string) (string, string, error) {
	if f.Browser == nil {
		return "", "", fmt.Errorf("credentialed fetches disabled: no browser client")
	}
	metrics.FetchRequests.Add(1)

	type page struct {
		body     string
		finalURL string
	}

	operation := func() (page, error) {
		body, status, finalURL, err := f.Browser.Get(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return page{}, backoff.Permanent(ctx.Err())
			}
			return page{}, err
		}
		if err := f.classifyPageStatus(status); err != nil {
			return page{}, err
		}
		return page{body: string(body), finalURL: finalURL}, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = f.Config.BaseDelay
	bo.MaxInterval = f.Config.MaxDelay

	p, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(f.Config.MaxRetries+1)),
		backoff.WithMaxElapsedTime(f.Config.Timeout))
	if err != nil {
		metrics.FetchErrors.Add(1)
		return "", "", err
	}
	return p.body, p.finalURL, nil
}

// classifyPageStatus maps an HTTP status from a credentialed page fetch to
// nil (success), a retryable error, or a permanent one. Auth statuses carry
// ErrAuthRequired and stop the retry loop immediately.
func (f *HTTPFetcher) classifyPageStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return backoff.Permanent(fmt.Errorf("%w (status %d)", ErrAuthRequired, status))
	case status == http.StatusNotFound:
		return backoff.Permanent(fmt.Errorf("status %d", status))
	case f.Config.retryableStatus(status):
		return fmt.Errorf("status %d", status)
	case status < 200 || status > 299:
		return backoff.Permanent(fmt.Errorf("status %d", status))
	}
	return nil
}

func (f *HTTPFetcher) FetchJSON(ctx context.Context, url string, v any) error {
	metrics.FetchRequests.Add(1)

	resp, err := FetchWithRetry(ctx, f.Config, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", UserAgentChrome)
		return f.Client.Do(req)
	})
	if err != nil {
		metrics.FetchErrors.Add(1)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		metrics.FetchErrors.Add(1)
		return fmt.Errorf("%w (status %d)", ErrAuthRequired, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.FetchErrors.Add(1)
		return fmt.Errorf("%w: status %d", ErrInvalidResponse, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8*1024*1024))
	if err != nil {
		metrics.FetchErrors.Add(1)
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

// newFetchHTTPClient creates the plain HTTP client used for JSON and caption
// endpoints. Per-request deadlines come from the fetch layer, so the client
// itself carries only transport-level limits.
func newFetchHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     60 * time.Second,
			TLSHandshakeTimeout: 15 * time.Second,
		},
	}
}
