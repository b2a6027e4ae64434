// Package backoff holds the retry policy shared by the remote service clients.
package backoff

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

const (
	baseDelay = 200 * time.Millisecond
	maxDelay  = 5 * time.Second
)

// Delay returns the exponential backoff for the given attempt, capped at 5s.
func Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	if attempt > 16 {
		return maxDelay
	}

	d := baseDelay << attempt
	if d > maxDelay {
		d = maxDelay
	}

	return d
}

// RetryAfter returns the delay requested by a Retry-After header, capped at
// 5s, falling back to Delay(attempt).
func RetryAfter(resp *http.Response, attempt int) time.Duration {
	if resp != nil {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs >= 0 {
				if secs > int(maxDelay/time.Second) {
					return maxDelay
				}

				return time.Duration(secs) * time.Second
			}
		}
	}

	return Delay(attempt)
}

// Retryable reports whether a response status is worth another attempt.
func Retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
