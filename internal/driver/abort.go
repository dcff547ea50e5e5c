package driver

import (
	"context"
	"sync"

	"github.com/dominds/minddrive/internal/dialog"
)

// abortToken carries one drive's cancellation. The stop reason is
// first-writer-wins: repeated stop requests keep the original reason.
type abortToken struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
	reason  dialog.StopReason
	detail  string
}

func newAbortToken(parent context.Context) *abortToken {
	ctx, cancel := context.WithCancel(parent)
	return &abortToken{ctx: ctx, cancel: cancel}
}

// Stop records the reason (if first) and cancels the token. Returns true
// when this call was the writer.
func (t *abortToken) Stop(reason dialog.StopReason, detail string) bool {
	t.mu.Lock()
	wrote := false
	if !t.stopped {
		t.stopped = true
		t.reason = reason
		t.detail = detail
		wrote = true
	}
	t.mu.Unlock()
	t.cancel()
	return wrote
}

// StopState returns the recorded stop reason, if any.
func (t *abortToken) StopState() (dialog.StopReason, string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason, t.detail, t.stopped
}

func (t *abortToken) release() {
	t.cancel()
}

// abortRegistry maps running drives to their abort tokens so external stop
// requests can reach them.
type abortRegistry struct {
	mu     sync.Mutex
	tokens map[string]*abortToken
}

func newAbortRegistry() *abortRegistry {
	return &abortRegistry{tokens: make(map[string]*abortToken)}
}

func (r *abortRegistry) register(key string, t *abortToken) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[key] = t
}

func (r *abortRegistry) unregister(key string, t *abortToken) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tokens[key] == t {
		delete(r.tokens, key)
	}
}

// stop cancels the drive of key, if one is running.
func (r *abortRegistry) stop(key string, reason dialog.StopReason, detail string) bool {
	r.mu.Lock()
	t := r.tokens[key]
	r.mu.Unlock()
	if t == nil {
		return false
	}
	t.Stop(reason, detail)
	return true
}
