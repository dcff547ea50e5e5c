package driver

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dominds/minddrive/internal/bus"
	"github.com/dominds/minddrive/internal/dialog"
)

// supplyResponse delivers a completed subdialog's last saying to its
// caller: atomically (under the caller's suspension-state lock) the
// pending record is consumed and a durable response is queued. The caller
// is then rescheduled if nothing else blocks it.
func (rt *Runtime) supplyResponse(sub *dialog.Dialog, say dialog.ChatMessage) {
	asg := sub.Assignment
	if asg == nil {
		return
	}
	caller := asg.CallerDialogID
	if caller.IsZero() {
		return
	}

	susp := rt.suspLocks.get(caller.Key())
	if err := susp.Lock(context.Background()); err != nil {
		return
	}
	pending, err := rt.store.LoadPendingSubdialogs(caller)
	if err != nil {
		susp.Unlock()
		slog.Warn("load pending subdialogs failed", "caller", caller.Key(), "error", err)
		return
	}
	var rec *dialog.PendingSubdialog
	filtered := make([]dialog.PendingSubdialog, 0, len(pending))
	for i := range pending {
		if pending[i].SubdialogID == sub.ID && rec == nil {
			r := pending[i]
			rec = &r
			continue
		}
		filtered = append(filtered, pending[i])
	}
	if rec == nil {
		// No pending record: the caller never asked, or it was already
		// answered. Ignore.
		susp.Unlock()
		return
	}

	head := rec.TellaskHead
	if head == "" {
		head = asg.TellaskHead
	}
	resp := dialog.SubdialogResponse{
		ResponseID:     uuid.NewString(),
		SubdialogID:    sub.ID,
		Response:       say.Content,
		CompletedAt:    time.Now(),
		CallType:       rec.CallType,
		TellaskHead:    head,
		ResponderID:    sub.AgentID,
		OriginMemberID: asg.OriginMemberID,
		CallID:         rec.CallID,
	}
	if err := rt.store.AppendSubdialogResponse(caller, resp); err != nil {
		susp.Unlock()
		slog.Error("queue subdialog response failed", "caller", caller.Key(), "sub", sub.ID.Key(), "error", err)
		return
	}
	if err := rt.store.SavePendingSubdialogs(caller, filtered); err != nil {
		slog.Warn("save pending subdialogs failed", "caller", caller.Key(), "error", err)
	}
	questions, _ := rt.store.LoadQuestions4Human(caller)
	susp.Unlock()

	if len(questions) == 0 && len(filtered) == 0 {
		if caller.IsRoot() {
			if err := rt.store.SetNeedsDrive(caller, true, "teammate_response"); err != nil {
				slog.Warn("set needs-drive failed", "caller", caller.Key(), "error", err)
			}
		} else {
			go func() {
				if err := rt.DriveDialog(context.Background(), caller, nil); err != nil {
					slog.Warn("caller drive failed", "caller", caller.Key(), "error", err)
				}
			}()
		}
	}

	rt.bus.Broadcast(bus.Event{
		Name:      bus.EventTeammateResponse,
		DialogKey: caller.Key(),
		Payload: map[string]string{
			"responder_id": resp.ResponderID,
			"tellask_head": resp.TellaskHead,
			"preview":      bus.Preview(resp.Response, 120),
		},
	})

	if rec.CallType == dialog.CallTypeC {
		// Transient subdialogs keep no live state after delivery.
		rt.reg.Remove(sub.ID)
		rt.healthMu.Lock()
		delete(rt.health, sub.ID.Key())
		rt.healthMu.Unlock()
	}
}
