package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v5"
)

func testFetcher() *HTTPFetcher {
	return &HTTPFetcher{Client: http.DefaultClient, Config: testFetchConfig()}
}

func TestFetchJSON(t *testing.T) {
	ctx := context.Background()

	t.Run("decodes body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Accept") != "application/json" {
				t.Errorf("Accept = %q", r.Header.Get("Accept"))
			}
			w.Write([]byte(`{"data":[{"id":"les-1"}]}`))
		}))
		defer srv.Close()

		var v map[string]any
		if err := testFetcher().FetchJSON(ctx, srv.URL, &v); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := v["data"].([]any); !ok {
			t.Errorf("decoded = %v", v)
		}
	})

	t.Run("401 maps to auth required", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		var v any
		err := testFetcher().FetchJSON(ctx, srv.URL, &v)
		if !errors.Is(err, ErrAuthRequired) {
			t.Errorf("error = %v, want ErrAuthRequired", err)
		}
	})

	t.Run("non-200 maps to invalid response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		var v any
		err := testFetcher().FetchJSON(ctx, srv.URL, &v)
		if !errors.Is(err, ErrInvalidResponse) {
			t.Errorf("error = %v, want ErrInvalidResponse", err)
		}
	})

	t.Run("undecodable body maps to invalid response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>not json</html>"))
		}))
		defer srv.Close()

		var v any
		err := testFetcher().FetchJSON(ctx, srv.URL, &v)
		if !errors.Is(err, ErrInvalidResponse) {
			t.Errorf("error = %v, want ErrInvalidResponse", err)
		}
	})

	t.Run("retries server errors", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte(`{"ok":true}`))
		}))
		defer srv.Close()

		var v any
		if err := testFetcher().FetchJSON(ctx, srv.URL, &v); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := calls.Load(); got != 2 {
			t.Errorf("server saw %d requests, want 2", got)
		}
	})
}

func TestFetchHTMLWithRedirectInfoNoBrowser(t *testing.T) {
	_, _, err := testFetcher().FetchHTMLWithRedirectInfo(context.Background(), "https://lms.example.edu/page")
	if err == nil {
		t.Fatal("expected error when no browser client is configured")
	}
}

func TestClassifyPageStatus(t *testing.T) {
	f := testFetcher()

	tests := []struct {
		status    int
		ok        bool
		permanent bool
		authErr   bool
	}{
		{http.StatusOK, true, false, false},
		{http.StatusCreated, true, false, false},
		{http.StatusUnauthorized, false, true, true},
		{http.StatusForbidden, false, true, true},
		{http.StatusNotFound, false, true, false},
		{http.StatusTooManyRequests, false, false, false},
		{http.StatusInternalServerError, false, false, false},
		{http.StatusBadGateway, false, false, false},
		{http.StatusTeapot, false, true, false},
	}
	for _, tt := range tests {
		err := f.classifyPageStatus(tt.status)
		if tt.ok {
			if err != nil {
				t.Errorf("classifyPageStatus(%d) = %v, want nil", tt.status, err)
			}
			continue
		}
		if err == nil {
			t.Errorf("classifyPageStatus(%d) = nil, want error", tt.status)
			continue
		}
		var pe *backoff.PermanentError
		if got := errors.As(err, &pe); got != tt.permanent {
			t.Errorf("classifyPageStatus(%d) permanent = %v, want %v", tt.status, got, tt.permanent)
		}
		if got := errors.Is(err, ErrAuthRequired); got != tt.authErr {
			t.Errorf("classifyPageStatus(%d) auth = %v, want %v", tt.status, got, tt.authErr)
		}
	}
}
