package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// FailureClass buckets generation failures for the retry policy.
type FailureClass int

const (
	// FailRetriable covers transport hiccups and 408/429/5xx responses.
	FailRetriable FailureClass = iota
	// FailRejected covers non-retriable 4xx: the provider understood the
	// request and refused it. Surfaces a problem record and ends the drive.
	FailRejected
	// FailFatal covers aborts and anything unclassified.
	FailFatal
)

// HTTPError is a non-2xx provider response.
type HTTPError struct {
	Provider string
	Status   int
	Body     string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("%s: http %d: %s", e.Provider, e.Status, body)
}

// transportMarkers are error-string fragments that indicate a transient
// transport failure worth retrying.
var transportMarkers = []string{
	"fetch failed",
	"socket hang up",
	"terminated",
	"timeout",
	"timed out",
	"rate limit",
	"rate_limit",
	"overloaded",
	"connection reset",
	"connection refused",
	"broken pipe",
	"unexpected EOF",
	"ETIMEDOUT",
	"ECONNRESET",
	"ECONNREFUSED",
	"EAI_AGAIN",
	"ENOTFOUND",
	"ENETUNREACH",
	"EHOSTUNREACH",
	"EPIPE",
	"UND_ERR_CONNECT_TIMEOUT",
	"UND_ERR_SOCKET",
	"UND_ERR_HEADERS_TIMEOUT",
	"UND_ERR_BODY_TIMEOUT",
}

// Classify buckets a generation error.
func Classify(err error) FailureClass {
	if err == nil {
		return FailFatal
	}
	if errors.Is(err, context.Canceled) {
		return FailFatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailRetriable
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.Status == 408 || httpErr.Status == 429:
			return FailRetriable
		case httpErr.Status >= 500:
			return FailRetriable
		case httpErr.Status >= 400:
			return FailRejected
		}
		return FailFatal
	}
	msg := err.Error()
	for _, marker := range transportMarkers {
		if strings.Contains(msg, marker) {
			return FailRetriable
		}
	}
	return FailFatal
}

const maxBackoff = 30 * time.Second

// Backoff returns the capped exponential delay for a retry attempt
// (attempt 0 → 1s, 1 → 2s, 2 → 4s, …, capped at 30s). No jitter.
func Backoff(attempt int) time.Duration {
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// SleepWithAbort sleeps for d, honoring ctx cancellation.
func SleepWithAbort(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run executes do with the retry policy: retriable failures are retried
// with capped exponential backoff while attempts remain and canRetry still
// allows it (for streaming, canRetry is "no content has been observed
// yet"). Rejected and fatal failures return immediately.
func Run[T any](ctx context.Context, providerName string, maxRetries int, canRetry func() bool, do func() (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		v, err := do()
		if err == nil {
			return v, nil
		}
		class := Classify(err)
		if class != FailRetriable || attempt >= maxRetries || (canRetry != nil && !canRetry()) {
			return zero, err
		}
		delay := Backoff(attempt)
		slog.Warn("llm request failed, retrying",
			"provider", providerName, "attempt", attempt+1, "backoff", delay, "error", err)
		if serr := SleepWithAbort(ctx, delay); serr != nil {
			return zero, serr
		}
	}
}
