package modio

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestRetryAfter(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		header string
		want   time.Duration
	}{
		{"missing", "", 0},
		{"seconds", "7", 7 * time.Second},
		{"padded", " 2 ", 2 * time.Second},
		{"negative", "-3", 0},
		{"http date", now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second},
		{"date in the past", now.Add(-time.Minute).Format(http.TimeFormat), 0},
		{"garbage", "soon", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.header != "" {
				h.Set("Retry-After", tt.header)
			}
			if got := retryAfter(h, now); got != tt.want {
				t.Errorf("retryAfter(%q) = %v, want %v", tt.header, got, tt.want)
			}
		})
	}
}

func TestWithRetriesWaitsForRetryAfter(t *testing.T) {
	retryDelay = time.Millisecond
	const wait = 50 * time.Millisecond

	var calls int
	start := time.Now()
	err := withRetries(context.Background(), func() error {
		calls++
		if calls == 1 {
			return &RetryableError{Err: errors.New("rate limited"), After: wait}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("withRetries() error: %v", err)
	}
	if calls != 2 {
		t.Errorf("fn called %d times, want 2", calls)
	}
	if elapsed := time.Since(start); elapsed < wait {
		t.Errorf("retried after %v, want at least %v", elapsed, wait)
	}
}

func TestWithRetriesGivesUp(t *testing.T) {
	retryDelay = time.Millisecond

	var calls int
	err := withRetries(context.Background(), func() error {
		calls++
		return &RetryableError{Err: errors.New("bad gateway")}
	})
	if err == nil || calls != maxAttempts {
		t.Errorf("withRetries() = %v after %d calls, want an error after %d", err, calls, maxAttempts)
	}

	calls = 0
	plain := errors.New("bad request")
	if err := withRetries(context.Background(), func() error { calls++; return plain }); err != plain || calls != 1 {
		t.Errorf("non-retryable error: got %v after %d calls", err, calls)
	}
}

func TestWithRetriesStopsOnCancel(t *testing.T) {
	retryDelay = time.Hour
	t.Cleanup(func() { retryDelay = time.Millisecond })

	ctx, cancel := context.WithCancel(context.Background())
	err := withRetries(ctx, func() error {
		cancel()
		return &RetryableError{Err: errors.New("unavailable")}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("withRetries() = %v, want context.Canceled", err)
	}
}

func TestGetJSONRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(ModPage{})
	}))
	defer server.Close()

	if _, err := newTestClient(t, server).GetMods(context.Background(), 1, 0, 10); err != nil {
		t.Fatalf("GetMods() error after a 429: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("server called %d times, want 2", calls.Load())
	}
}
