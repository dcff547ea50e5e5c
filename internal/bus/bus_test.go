package bus

import (
	"sync"
	"testing"
)

func TestSubscribeBroadcastUnsubscribe(t *testing.T) {
	b := NewMessageBus()

	var mu sync.Mutex
	got := map[string][]string{}
	sub := func(id string) {
		b.Subscribe(id, func(evt Event) {
			mu.Lock()
			got[id] = append(got[id], evt.Name)
			mu.Unlock()
		})
	}
	sub("a")
	sub("b")

	b.Broadcast(Event{Name: "one", DialogKey: "alice/alice"})
	b.Unsubscribe("b")
	b.Broadcast(Event{Name: "two", DialogKey: "alice/alice"})

	mu.Lock()
	defer mu.Unlock()
	if len(got["a"]) != 2 || got["a"][1] != "two" {
		t.Errorf("a received %v", got["a"])
	}
	if len(got["b"]) != 1 || got["b"][0] != "one" {
		t.Errorf("b received %v, want only the pre-unsubscribe event", got["b"])
	}
}

func TestResubscribeReplacesHandler(t *testing.T) {
	b := NewMessageBus()
	calls := 0
	b.Subscribe("x", func(Event) { t.Error("stale handler invoked") })
	b.Subscribe("x", func(Event) { calls++ })
	b.Broadcast(Event{Name: "e"})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestBroadcastNoSubscribers(t *testing.T) {
	b := NewMessageBus()
	// Must not panic.
	b.Broadcast(Event{Name: "ignored"})
	b.Unsubscribe("never-registered")
}

func TestPreview(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		maxWidth int
		want     string
	}{
		{"short stays", "hello", 10, "hello"},
		{"ascii truncated", "hello world", 6, "hello…"},
		{"exact fit", "hello", 5, "hello"},
		{"cjk counts double width", "你好世界", 5, "你好…"},
		{"empty", "", 4, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Preview(tt.in, tt.maxWidth); got != tt.want {
				t.Errorf("Preview(%q, %d) = %q, want %q", tt.in, tt.maxWidth, got, tt.want)
			}
		})
	}
}
