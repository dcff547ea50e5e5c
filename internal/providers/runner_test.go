package providers

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureClass
	}{
		{"nil", nil, FailFatal},
		{"canceled", context.Canceled, FailFatal},
		{"deadline", context.DeadlineExceeded, FailRetriable},
		{"http 408", &HTTPError{Provider: "p", Status: 408}, FailRetriable},
		{"http 429", &HTTPError{Provider: "p", Status: 429}, FailRetriable},
		{"http 500", &HTTPError{Provider: "p", Status: 500}, FailRetriable},
		{"http 503", &HTTPError{Provider: "p", Status: 503}, FailRetriable},
		{"http 400", &HTTPError{Provider: "p", Status: 400}, FailRejected},
		{"http 401", &HTTPError{Provider: "p", Status: 401}, FailRejected},
		{"http 404", &HTTPError{Provider: "p", Status: 404}, FailRejected},
		{"wrapped http 429", fmt.Errorf("generate: %w", &HTTPError{Provider: "p", Status: 429}), FailRetriable},
		{"transport marker", errors.New("read tcp: connection reset by peer"), FailRetriable},
		{"socket hang up", errors.New("socket hang up"), FailRetriable},
		{"rate limit text", errors.New("provider rate_limit reached"), FailRetriable},
		{"unclassified", errors.New("malformed response body"), FailFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestBackoff(t *testing.T) {
	want := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for attempt, w := range want {
		if got := Backoff(attempt); got != w {
			t.Errorf("Backoff(%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestRunRetriesThenSucceeds(t *testing.T) {
	calls := 0
	got, err := Run(context.Background(), "p", 3, nil, func() (string, error) {
		calls++
		if calls == 1 {
			return "", &HTTPError{Provider: "p", Status: 500}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != "ok" || calls != 2 {
		t.Errorf("got %q after %d calls, want ok after 2", got, calls)
	}
}

func TestRunRejectedIsNotRetried(t *testing.T) {
	calls := 0
	reject := &HTTPError{Provider: "p", Status: 400}
	_, err := Run(context.Background(), "p", 5, nil, func() (int, error) {
		calls++
		return 0, reject
	})
	if !errors.Is(err, reject) {
		t.Fatalf("err = %v, want the rejection", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRunExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := Run(context.Background(), "p", 1, nil, func() (int, error) {
		calls++
		return 0, &HTTPError{Provider: "p", Status: 503}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 2 { // initial attempt + one retry
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRunHonorsCanRetry(t *testing.T) {
	// Streaming semantics: once content has been observed, a retriable
	// failure must not be retried.
	calls := 0
	_, err := Run(context.Background(), "p", 5, func() bool { return false }, func() (int, error) {
		calls++
		return 0, &HTTPError{Provider: "p", Status: 500}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestSleepWithAbort(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := SleepWithAbort(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if err := SleepWithAbort(context.Background(), time.Millisecond); err != nil {
		t.Errorf("err = %v, want nil", err)
	}
}

func TestRunAbortsDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := Run(ctx, "p", 3, nil, func() (int, error) {
			calls++
			return 0, &HTTPError{Provider: "p", Status: 500}
		})
		done <- err
	}()
	time.Sleep(50 * time.Millisecond) // first attempt failed, backoff running
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
