// Package bus carries dialog events from the driver to UI transports.
package bus

import (
	"sync"

	"github.com/mattn/go-runewidth"
)

// Event names emitted by the driver.
const (
	EventEndOfUserSaying  = "end_of_user_saying_evt"
	EventNewQ4HAsked      = "new_q4h_asked"
	EventDiligenceBudget  = "diligence_budget_evt"
	EventRunState         = "run_state_evt" // markers: resumed, interrupted{reason}
	EventSayingChunk      = "saying_chunk"
	EventThinkingChunk    = "thinking_chunk"
	EventMarkdownRender   = "markdown_render"
	EventTeammateResponse = "teammate_response"
	EventDomindsNotice    = "dominds_notice"
)

// Event is one dialog event. DialogKey is "root/self".
type Event struct {
	Name      string `json:"name"`
	DialogKey string `json:"dialog_key"`
	Payload   any    `json:"payload,omitempty"`
}

// EndOfUserSaying is the payload of EventEndOfUserSaying.
type EndOfUserSaying struct {
	Course           int    `json:"course"`
	GenSeq           int    `json:"genseq"`
	MsgID            string `json:"msg_id"`
	Content          string `json:"content"`
	Grammar          string `json:"grammar"`
	UserLanguageCode string `json:"user_language_code,omitempty"`
}

// DiligenceBudget is the payload of EventDiligenceBudget. The conservation
// invariant holds at every event: Injected + Remaining == MaxInjectCount.
type DiligenceBudget struct {
	MaxInjectCount       int  `json:"max_inject_count"`
	InjectedCount        int  `json:"injected_count"`
	RemainingCount       int  `json:"remaining_count"`
	DisableDiligencePush bool `json:"disable_diligence_push"`
}

// RunStateMarker is the payload of EventRunState.
type RunStateMarker struct {
	Marker string `json:"marker"` // "resumed" | "interrupted"
	Reason string `json:"reason,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Handler receives broadcast events.
type Handler func(Event)

// Publisher abstracts event broadcast + subscription so the driver stays
// decoupled from concrete transports.
type Publisher interface {
	Subscribe(id string, h Handler)
	Unsubscribe(id string)
	Broadcast(evt Event)
}

// MessageBus is the in-process Publisher. Broadcast dispatches handlers
// synchronously in subscription snapshot order; handlers must not block.
type MessageBus struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewMessageBus creates an empty bus.
func NewMessageBus() *MessageBus {
	return &MessageBus{handlers: make(map[string]Handler)}
}

func (b *MessageBus) Subscribe(id string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[id] = h
}

func (b *MessageBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, id)
}

func (b *MessageBus) Broadcast(evt Event) {
	b.mu.RLock()
	hs := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		hs = append(hs, h)
	}
	b.mu.RUnlock()
	for _, h := range hs {
		h(evt)
	}
}

// Preview truncates s to maxWidth display cells for event payloads and
// logs, so wide CJK output does not blow past UI columns.
func Preview(s string, maxWidth int) string {
	return runewidth.Truncate(s, maxWidth, "…")
}
