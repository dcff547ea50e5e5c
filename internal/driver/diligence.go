package driver

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dominds/minddrive/internal/bus"
	"github.com/dominds/minddrive/internal/dialog"
	"github.com/dominds/minddrive/internal/minds"
)

// diligenceDecision is the outcome of the Diligence Push controller.
type diligenceDecision struct {
	// nextPrompt, when non-empty, continues the loop with a pushed prompt.
	nextPrompt string
	// suspended means the budget was exhausted and a Q4H was registered.
	suspended bool
}

// diligencePush decides whether a root dialog about to idle gets pushed
// for another iteration. Budget accounting satisfies the conservation
// invariant injected+remaining == max on every emitted event.
func (rt *Runtime) diligencePush(d *dialog.Dialog, am *minds.AgentMinds) (diligenceDecision, error) {
	if !d.IsRoot() || d.DisableDiligencePush {
		return diligenceDecision{}, nil
	}
	dil := rt.minds.LoadDiligence(d.LastUserLanguageCode)
	if dil.Disabled {
		return diligenceDecision{}, nil
	}
	max := am.Agent.EffectiveDiligencePushMax()

	if d.DiligencePushRemainingBudget >= 1 {
		d.DiligencePushRemainingBudget--
		rt.emitBudget(d, max)
		return diligenceDecision{nextPrompt: dil.Text}, nil
	}

	// Budget exhausted: ask the human how to continue, exactly once.
	d.DiligencePushRemainingBudget = 0
	rt.emitBudget(d, max)
	q := dialog.HumanQuestion{
		ID:          uuid.NewString(),
		TellaskHead: "@human",
		BodyContent: minds.Msg(d.LastUserLanguageCode, minds.MsgBudgetExhausted),
		AskedAt:     time.Now(),
		CallSite:    dialog.CallSiteRef{Course: d.CurrentCourse(), MessageIndex: d.MsgCount() - 1},
	}
	if err := rt.appendQ4H(d, q); err != nil {
		return diligenceDecision{}, err
	}
	return diligenceDecision{suspended: true}, nil
}

// emitBudget broadcasts the diligence budget event for the dialog.
func (rt *Runtime) emitBudget(d *dialog.Dialog, max int) {
	remaining := d.DiligencePushRemainingBudget
	rt.bus.Broadcast(bus.Event{
		Name:      bus.EventDiligenceBudget,
		DialogKey: d.ID.Key(),
		Payload: bus.DiligenceBudget{
			MaxInjectCount:       max,
			InjectedCount:        max - remaining,
			RemainingCount:       remaining,
			DisableDiligencePush: d.DisableDiligencePush,
		},
	})
}

// appendQ4H persists a question-for-human under the dialog's
// suspension-state lock and announces it.
func (rt *Runtime) appendQ4H(d *dialog.Dialog, q dialog.HumanQuestion) error {
	susp := rt.suspLocks.get(d.ID.Key())
	if err := susp.Lock(context.Background()); err != nil {
		return err
	}
	err := rt.store.AppendQuestion4Human(d.ID, q)
	susp.Unlock()
	if err != nil {
		return err
	}
	rt.bus.Broadcast(bus.Event{
		Name:      bus.EventNewQ4HAsked,
		DialogKey: d.ID.Key(),
		Payload:   map[string]any{"question": q},
	})
	return nil
}
