package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestWithRequestsPerMinute(t *testing.T) {
	g := NewOpenAIGenerator("p", "")
	if g.limiter != nil {
		t.Error("default generator has a limiter")
	}
	g = NewOpenAIGenerator("p", "", WithRequestsPerMinute(0))
	if g.limiter != nil {
		t.Error("rpm 0 must leave the limiter disabled")
	}
	g = NewOpenAIGenerator("p", "", WithRequestsPerMinute(120))
	if g.limiter == nil {
		t.Fatal("rpm 120 did not install a limiter")
	}
	if g.limiter.Limit() != rate.Limit(2) || g.limiter.Burst() != 1 {
		t.Errorf("limiter = %v req/s burst %d, want 2 req/s burst 1", g.limiter.Limit(), g.limiter.Burst())
	}
}

func TestRequestsPerMinutePacesRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	// 1200 rpm is one request every 50ms once the initial burst is spent.
	g := NewOpenAIGenerator("p", "", WithBaseURL(srv.URL), WithRequestsPerMinute(1200))
	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := g.GenMessages(context.Background(), GenRequest{Model: "m"}); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("three requests took %v, want at least two 50ms waits", elapsed)
	}
}
