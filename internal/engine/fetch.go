package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"time"
)

// FetchConfig controls the resilient fetch layer used by every provider.
type FetchConfig struct {
	MaxRetries         int
	BaseDelay          time.Duration
	MaxDelay           time.Duration
	Timeout            time.Duration
	JitterRatio        float64
	RetryableStatuses  map[int]bool
	RetryOnServerError bool
	RetryOnNetworkErr  bool
	RetryOnTimeout     bool

	// OnRetry, when set, receives an event before each retry sleep.
	OnRetry func(RetryEvent)
}

// RetryEvent is emitted to OnRetry before each backoff sleep.
type RetryEvent struct {
	Attempt    int
	MaxRetries int
	Delay      time.Duration
	Status     int
	Err        error
}

// DefaultFetchConfig is suitable for provider endpoints.
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{
		MaxRetries:         3,
		BaseDelay:          500 * time.Millisecond,
		MaxDelay:           5 * time.Second,
		Timeout:            30 * time.Second,
		JitterRatio:        0.3,
		RetryableStatuses:  map[int]bool{http.StatusTooManyRequests: true},
		RetryOnServerError: true,
		RetryOnNetworkErr:  true,
		RetryOnTimeout:     true,
	}
}

// errAttemptTimeout marks a context cancelled by the per-attempt timeout, so
// it can be told apart from a caller-supplied cancellation (never retried).
var errAttemptTimeout = errors.New("fetch attempt timed out")

// FetchWithRetry runs do with retry, exponential backoff and a per-attempt
// timeout composed with the caller's context.
//
// HTTP 401/403/404 are never retried regardless of configuration. After
// exhausting attempts the last response, if any, is returned even when
// non-2xx so the caller can inspect the status; otherwise the last error.
func FetchWithRetry(ctx context.Context, fc FetchConfig, do func(ctx context.Context) (*http.Response, error)) (*http.Response, error) {
	var lastErr error
	var lastResp *http.Response

	for attempt := 0; attempt <= fc.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		attemptCtx, cancel := context.WithTimeoutCause(ctx, fc.Timeout, errAttemptTimeout)
		resp, err := do(attemptCtx)

		if err != nil {
			cancel()
			err = normalizeAttemptErr(ctx, attemptCtx, err)
			lastErr = err
			if !fc.retryableError(ctx, err) || attempt == fc.MaxRetries {
				break
			}
			fc.sleepBackoff(ctx, attempt, 0, err, "")
			continue
		}

		// Keep the attempt context alive until the body is consumed.
		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}

		if neverRetryStatus(resp.StatusCode) {
			return resp, nil
		}
		if !fc.retryableStatus(resp.StatusCode) {
			return resp, nil
		}

		lastResp = resp
		lastErr = nil
		if attempt == fc.MaxRetries {
			break
		}
		retryAfter := resp.Header.Get("Retry-After")
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		lastResp = nil
		fc.sleepBackoff(ctx, attempt, resp.StatusCode, nil, retryAfter)
	}

	if lastResp != nil {
		return lastResp, nil
	}
	return nil, lastErr
}

// normalizeAttemptErr rewrites attempt-context errors so classification can
// distinguish our timeout from the caller's cancellation.
func normalizeAttemptErr(parent, attempt context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if attempt.Err() != nil && errors.Is(context.Cause(attempt), errAttemptTimeout) {
		return errAttemptTimeout
	}
	return err
}

// retryableError classifies transport-level failures.
func (fc FetchConfig) retryableError(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return false // caller abort surfaces immediately
	}
	if IsTimeoutError(err) {
		return fc.RetryOnTimeout
	}
	if isNetworkError(err) {
		return fc.RetryOnNetworkErr
	}
	return false
}

func (fc FetchConfig) retryableStatus(code int) bool {
	if fc.RetryableStatuses[code] {
		return true
	}
	return fc.RetryOnServerError && code >= 500 && code <= 599
}

// neverRetryStatus reports statuses that indicate a caller-side problem, not
// transience: retrying cannot help and may lock accounts.
func neverRetryStatus(code int) bool {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

// IsTimeoutError reports whether err is a timeout, either our per-attempt
// deadline or a transport-level one.
func IsTimeoutError(err error) bool {
	if errors.Is(err, errAttemptTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// isNetworkError reports DNS failures, resets and other dial-level trouble.
func isNetworkError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func (fc FetchConfig) sleepBackoff(ctx context.Context, attempt, status int, err error, retryAfter string) {
	delay := BackoffDelay(fc.BaseDelay, fc.MaxDelay, fc.JitterRatio, attempt)
	if d, ok := parseRetryAfter(retryAfter); ok {
		delay = d
	}

	if fc.OnRetry != nil {
		fc.OnRetry(RetryEvent{Attempt: attempt, MaxRetries: fc.MaxRetries, Delay: delay, Status: status, Err: err})
	}
	slog.Debug("fetch: retrying",
		slog.Int("attempt", attempt+1),
		slog.Duration("delay", delay),
		slog.Int("status", status),
		slog.Any("error", err),
	)

	select {
	case <-time.After(delay):
	case <-ctx.Done():
	}
}

// BackoffDelay computes min(base*2^attempt, max) plus up to jitterRatio of
// extra random delay, floored to a whole millisecond.
func BackoffDelay(base, max time.Duration, jitterRatio float64, attempt int) time.Duration {
	delay := base << uint(attempt)
	if delay > max || delay <= 0 {
		delay = max
	}
	if jitterRatio > 0 {
		delay += time.Duration(rand.Float64() * jitterRatio * float64(delay))
	}
	return delay.Truncate(time.Millisecond)
}

// parseRetryAfter handles both the delta-seconds and HTTP-date forms.
func parseRetryAfter(v string) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}

// cancelOnClose releases the per-attempt context when the body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
