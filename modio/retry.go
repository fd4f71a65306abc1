package modio

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Catalog reads that fail with a transport error, a 5xx or a 429 are tried
// again. Waits double from retryDelay, and a 429 waits at least as long as
// its Retry-After header asks, up to maxRetryAfter.
const (
	maxAttempts   = 3
	maxRetryAfter = time.Minute
)

// retryDelay is a variable so tests can shorten it.
var retryDelay = time.Second

// RetryableError marks a failed request worth sending again.
type RetryableError struct {
	Err   error
	After time.Duration // minimum wait requested by mod.io, zero if none
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// withRetries calls fn until it succeeds, fails with an error that is not a
// *RetryableError, or maxAttempts calls have been made.
func withRetries(ctx context.Context, fn func() error) error {
	delay := retryDelay
	for attempt := 1; ; attempt++ {
		err := fn()
		var re *RetryableError
		if err == nil || !errors.As(err, &re) || attempt == maxAttempts {
			return err
		}

		timer := time.NewTimer(max(delay, min(re.After, maxRetryAfter)))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}

// retryAfter reads a Retry-After header given either in seconds or as an
// HTTP date.
func retryAfter(h http.Header, now time.Time) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(max(secs, 0)) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}
