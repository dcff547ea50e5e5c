package driver

import (
	"strings"

	"github.com/dominds/minddrive/internal/bus"
	"github.com/dominds/minddrive/internal/dialog"
	"github.com/dominds/minddrive/internal/tellask"
)

// driveReceiver is the per-attempt streaming sink: it relays thinking and
// saying chunks to the event bus and routes saying text through a fresh
// tellask parser per saying. contentSeen gates streaming retries.
type driveReceiver struct {
	rt *Runtime
	d  *dialog.Dialog

	parser      tellask.StreamParser
	calls       []tellask.Call
	contentSeen bool
	funcCalls   int
}

func newDriveReceiver(rt *Runtime, d *dialog.Dialog) *driveReceiver {
	return &driveReceiver{rt: rt, d: d}
}

func (r *driveReceiver) emit(name string, payload any) {
	r.rt.bus.Broadcast(bus.Event{Name: name, DialogKey: r.d.ID.Key(), Payload: payload})
}

func (r *driveReceiver) ThinkingStart(genseq int) {}

func (r *driveReceiver) ThinkingChunk(text string) {
	r.contentSeen = true
	r.emit(bus.EventThinkingChunk, map[string]string{"text": text})
}

func (r *driveReceiver) ThinkingFinish() {}

func (r *driveReceiver) SayingStart(genseq int) {
	r.parser = r.rt.parser(r)
}

func (r *driveReceiver) SayingChunk(text string) {
	r.contentSeen = true
	r.emit(bus.EventSayingChunk, map[string]string{"text": text})
	if r.parser != nil {
		r.parser.TakeUpstreamChunk(text)
	}
}

func (r *driveReceiver) SayingFinish() {
	if r.parser == nil {
		return
	}
	r.parser.Finalize()
	r.calls = append(r.calls, r.parser.CollectedCalls()...)
	r.parser = nil
}

func (r *driveReceiver) FuncCall(callID, name, arguments string) {
	r.contentSeen = true
	r.funcCalls++
}

func (r *driveReceiver) StreamError(detail string) {
	r.rt.streamError(r.d, detail)
}

// tellask.EventReceiver: parsed markdown is rendered to the UI.

func (r *driveReceiver) MarkdownStart() {}

func (r *driveReceiver) MarkdownChunk(text string) {
	r.emit(bus.EventMarkdownRender, map[string]string{"text": text})
}

func (r *driveReceiver) MarkdownFinish() {}

// markdownEmitter routes parser markdown to the bus without the streaming
// surface. Used when parsing a complete text (user tellasks, non-streaming
// sayings).
type markdownEmitter struct {
	rt *Runtime
	d  *dialog.Dialog
}

func (e *markdownEmitter) MarkdownStart() {}

func (e *markdownEmitter) MarkdownChunk(text string) {
	e.rt.bus.Broadcast(bus.Event{
		Name:      bus.EventMarkdownRender,
		DialogKey: e.d.ID.Key(),
		Payload:   map[string]string{"text": text},
	})
}

func (e *markdownEmitter) MarkdownFinish() {}

// parseText runs the tellask parser over a complete text and returns the
// collected calls, emitting markdown render events for the remainder.
func (rt *Runtime) parseText(d *dialog.Dialog, text string) []tellask.Call {
	p := rt.parser(&markdownEmitter{rt: rt, d: d})
	p.TakeUpstreamChunk(text)
	if !strings.HasSuffix(text, "\n") {
		p.TakeUpstreamChunk("\n")
	}
	p.Finalize()
	return p.CollectedCalls()
}

// streamError surfaces a generation stream error to the UI.
func (rt *Runtime) streamError(d *dialog.Dialog, detail string) {
	rt.bus.Broadcast(bus.Event{
		Name:      bus.EventDomindsNotice,
		DialogKey: d.ID.Key(),
		Payload:   map[string]string{"stream_error": detail},
	})
}
