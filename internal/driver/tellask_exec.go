package driver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dominds/minddrive/internal/bus"
	"github.com/dominds/minddrive/internal/dialog"
	"github.com/dominds/minddrive/internal/minds"
	"github.com/dominds/minddrive/internal/tellask"
	"github.com/dominds/minddrive/internal/tracing"
)

// tellaskOutcome is the merged result of executing one saying's tellask
// calls.
type tellaskOutcome struct {
	// Msgs are synchronously produced results and bubbles, in call order.
	Msgs []dialog.ChatMessage
	// HasQ4H means a question-for-human was registered.
	HasQ4H bool
	// CreatedPending means at least one subdialog is awaiting a response.
	CreatedPending bool
	// SyncResults counts results the next generation should react to.
	SyncResults int
}

func (o *tellaskOutcome) merge(other *tellaskOutcome) {
	o.Msgs = append(o.Msgs, other.Msgs...)
	o.HasQ4H = o.HasQ4H || other.HasQ4H
	o.CreatedPending = o.CreatedPending || other.CreatedPending
	o.SyncResults += other.SyncResults
}

// execTellasks executes the collected calls concurrently and merges their
// outcomes in call order.
func (rt *Runtime) execTellasks(tok *abortToken, d *dialog.Dialog, am *minds.AgentMinds, calls []tellask.Call) (*tellaskOutcome, error) {
	out := &tellaskOutcome{}
	if len(calls) == 0 {
		return out, nil
	}
	outs := make([]*tellaskOutcome, len(calls))
	errs := make([]error, len(calls))
	var wg sync.WaitGroup
	for i, c := range calls {
		wg.Add(1)
		go func(i int, c tellask.Call) {
			defer wg.Done()
			outs[i], errs[i] = rt.execOneTellask(tok, d, am, c)
		}(i, c)
	}
	wg.Wait()
	for i := range calls {
		if errs[i] != nil {
			return out, errs[i]
		}
		out.merge(outs[i])
	}
	return out, nil
}

func (rt *Runtime) execOneTellask(tok *abortToken, d *dialog.Dialog, am *minds.AgentMinds, c tellask.Call) (*tellaskOutcome, error) {
	ctx, span := tracing.StartTellask(tok.ctx, c.TellaskHead)
	defer span.End()

	lang := d.LastUserLanguageCode
	o := &tellaskOutcome{}
	bubble := func(text string) {
		o.Msgs = append(o.Msgs, dialog.NewTellaskResult("dominds", c.TellaskHead, dialog.TellaskFailed, text))
		o.SyncResults++
	}

	if !c.Valid {
		bubble(minds.Msg(lang, minds.MsgMalformedTellask, c.Reason))
		return o, nil
	}

	switch c.FirstMention {
	case tellask.AliasHuman:
		q := dialog.HumanQuestion{
			ID:          uuid.NewString(),
			TellaskHead: c.TellaskHead,
			BodyContent: c.Body,
			AskedAt:     time.Now(),
			CallID:      c.CallID,
			CallSite:    dialog.CallSiteRef{Course: d.CurrentCourse(), MessageIndex: d.MsgCount() - 1},
		}
		if err := rt.appendQ4H(d, q); err != nil {
			rt.streamError(d, err.Error())
			bubble(minds.Msg(lang, minds.MsgMalformedTellask, "question could not be registered: "+err.Error()))
			return o, nil
		}
		o.HasQ4H = true
		return o, nil

	case tellask.AliasDominds:
		bubble(minds.Msg(lang, minds.MsgUnknownTeammate, tellask.AliasDominds))
		return o, nil

	case tellask.AliasTellasker:
		if d.IsRoot() {
			bubble(minds.Msg(lang, minds.MsgTellaskerOutsideSub))
			return o, nil
		}
		return rt.execTypeA(ctx, d, c)

	case tellask.AliasSelf:
		return rt.execFBR(d, am, c)
	}

	// Team-member targets: fan out per known mentioned member.
	var targets []string
	for _, m := range tellask.Mentions(c.TellaskHead) {
		switch m {
		case tellask.AliasSelf, tellask.AliasTellasker, tellask.AliasHuman, tellask.AliasDominds:
			continue
		}
		if _, ok := am.Team.Members[m]; ok {
			targets = append(targets, m)
		} else {
			bubble(minds.Msg(lang, minds.MsgUnknownTeammate, m))
		}
	}
	if len(targets) == 0 {
		return o, nil
	}

	sessions := tellask.SessionDirectives(c.TellaskHead)
	if len(sessions) > 1 {
		bubble(minds.Msg(lang, minds.MsgMalformedTellask, "more than one !tellaskSession directive"))
		return o, nil
	}
	session := ""
	if len(sessions) == 1 {
		if sessions[0] == "" {
			bubble(minds.Msg(lang, minds.MsgMalformedTellask, "invalid !tellaskSession identifier"))
			return o, nil
		}
		session = sessions[0]
	}

	supAgent := ""
	if !d.IsRoot() {
		if sup, err := rt.dialogFor(d.SupdialogID()); err == nil {
			supAgent = sup.AgentID
		}
	}

	outs := make([]*tellaskOutcome, len(targets))
	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target string) {
			defer wg.Done()
			to := &tellaskOutcome{}
			if target == d.AgentID {
				// Permitted, but worth flagging: @self is the intended way.
				to.Msgs = append(to.Msgs, dialog.NewTellaskResult("dominds", c.TellaskHead,
					dialog.TellaskFailed, minds.Msg(lang, minds.MsgSelfTellaskByRealID)))
				to.SyncResults++
			}
			if target == supAgent && session == "" {
				a, err := rt.execTypeA(ctx, d, c)
				if err == nil {
					to.merge(a)
				}
				outs[i], errs[i] = to, err
				return
			}
			callType := dialog.CallTypeC
			if session != "" {
				callType = dialog.CallTypeB
			}
			s, err := rt.spawnSub(d, target, session, callType, targets, c)
			if err == nil {
				to.merge(s)
			}
			outs[i], errs[i] = to, err
		}(i, target)
	}
	wg.Wait()
	for i := range targets {
		if errs[i] != nil {
			return o, errs[i]
		}
		o.merge(outs[i])
	}
	return o, nil
}

// execTypeA suspends the current subdialog and synchronously drives its
// direct supdialog for one course, queued behind the supdialog's drive
// lock. The supdialog's last saying becomes the reply.
func (rt *Runtime) execTypeA(ctx context.Context, d *dialog.Dialog, c tellask.Call) (*tellaskOutcome, error) {
	o := &tellaskOutcome{}
	supID := d.SupdialogID()
	sup, err := rt.dialogFor(supID)
	if err != nil {
		o.Msgs = append(o.Msgs, dialog.NewTellaskResult("dominds", c.TellaskHead, dialog.TellaskFailed,
			fmt.Sprintf("supdialog unavailable: %v", err)))
		o.SyncResults++
		return o, nil
	}
	prompt := &HumanPrompt{
		MsgID:   c.CallID,
		Content: formatTellaskPrompt(d.AgentID, c),
	}
	driveErr := rt.DriveDialog(ctx, supID, prompt)

	var result dialog.ChatMessage
	if driveErr != nil {
		result = dialog.NewTellaskResult(sup.AgentID, c.TellaskHead, dialog.TellaskFailed, driveErr.Error())
	} else if say, ok := sup.LastSaying(); ok {
		result = dialog.NewTellaskResult(sup.AgentID, c.TellaskHead, dialog.TellaskCompleted, say.Content)
	} else {
		result = dialog.NewTellaskResult(sup.AgentID, c.TellaskHead, dialog.TellaskCompleted, "(no reply)")
	}
	o.Msgs = append(o.Msgs, result)
	o.SyncResults++
	rt.bus.Broadcast(bus.Event{
		Name:      bus.EventTeammateResponse,
		DialogKey: d.ID.Key(),
		Payload: map[string]string{
			"responder_id": sup.AgentID,
			"tellask_head": c.TellaskHead,
			"status":       result.Status,
			"preview":      bus.Preview(result.Content, 120),
		},
	})
	return o, nil
}

// execFBR fans out an @self call into fbr_effort parallel fresh-boots
// subdialogs of the same agent. With a !tellaskSession directive the pool
// sessions are derived deterministically from the base so the pool is
// resumable; without one the subdialogs are transient.
func (rt *Runtime) execFBR(d *dialog.Dialog, am *minds.AgentMinds, c tellask.Call) (*tellaskOutcome, error) {
	o := &tellaskOutcome{}
	lang := d.LastUserLanguageCode
	effort := am.Agent.EffectiveFBREffort()
	if effort <= 0 {
		o.Msgs = append(o.Msgs, dialog.NewTellaskResult("dominds", c.TellaskHead, dialog.TellaskFailed,
			minds.Msg(lang, minds.MsgFBRDisabled)))
		o.SyncResults++
		return o, nil
	}
	sessions := tellask.SessionDirectives(c.TellaskHead)
	base := ""
	if len(sessions) > 0 {
		if len(sessions) > 1 || sessions[0] == "" {
			o.Msgs = append(o.Msgs, dialog.NewTellaskResult("dominds", c.TellaskHead, dialog.TellaskFailed,
				minds.Msg(lang, minds.MsgMalformedTellask, "invalid !tellaskSession directive")))
			o.SyncResults++
			return o, nil
		}
		base = sessions[0]
	}
	// The pool members get a clean headline; the directive only names the pool.
	fc := c
	fc.TellaskHead = tellask.StripSessionDirective(c.TellaskHead)
	for i := 0; i < effort; i++ {
		session := ""
		callType := dialog.CallTypeC
		if base != "" {
			session = fmt.Sprintf("%s.fbr-%s", base, shortID(fmt.Sprintf("%s#%d", base, i)))
			callType = dialog.CallTypeB
		}
		s, err := rt.spawnSub(d, d.AgentID, session, callType, nil, fc)
		if err != nil {
			return o, err
		}
		o.merge(s)
	}
	return o, nil
}

// spawnSub creates (or, for a registered session, resumes) a subdialog,
// records it as pending on the caller and drives it asynchronously.
func (rt *Runtime) spawnSub(d *dialog.Dialog, target, session string, callType dialog.CallType, collective []string, c tellask.Call) (*tellaskOutcome, error) {
	o := &tellaskOutcome{}
	root := d.ID.RootDialogID()
	asg := &dialog.Assignment{
		TellaskHead:       c.TellaskHead,
		TellaskBody:       c.Body,
		OriginMemberID:    d.AgentID,
		CallerDialogID:    d.ID,
		CallID:            c.CallID,
		CollectiveTargets: collective,
		TellaskSession:    session,
	}

	var sub *dialog.Dialog
	resumed := false
	if callType == dialog.CallTypeB {
		if id, ok := rt.reg.LookupRegistered(root, target, session); ok {
			if existing, err := rt.dialogFor(id); err == nil {
				sub = existing
				resumed = true
			}
		}
	}
	if sub == nil {
		var self string
		if callType == dialog.CallTypeB {
			self = fmt.Sprintf("%s.%s", target, session)
		} else {
			self = fmt.Sprintf("%s-%s", target, shortID(c.CallID+uuid.NewString()))
		}
		subID := dialog.SubID(root.Root, self)
		sub = rt.reg.GetOrAdd(subID, func() *dialog.Dialog {
			return dialog.NewSub(subID, target, asg)
		})
		if callType == dialog.CallTypeB {
			rt.reg.RegisterSubdialog(root, target, session, subID)
			if err := rt.store.RegisterSubdialog(root, dialog.RegisteredSubdialog{
				TargetAgentID:  target,
				TellaskSession: session,
				SubdialogID:    subID,
			}); err != nil {
				return o, fmt.Errorf("register subdialog %s: %w", subID.Key(), err)
			}
		}
	}

	var prompt *HumanPrompt
	if resumed {
		sub.Assignment = asg
		if err := rt.store.UpdateSubdialogAssignment(sub.ID, asg); err != nil {
			return o, fmt.Errorf("update assignment for %s: %w", sub.ID.Key(), err)
		}
		prompt = &HumanPrompt{MsgID: c.CallID, Content: formatTellaskPrompt(d.AgentID, c)}
	} else {
		rt.persistLatest(sub, dialog.RunState{Kind: dialog.RunProceeding})
	}

	// The pending record is data-path state: failure to persist it is a
	// drive error, not a warning.
	susp := rt.suspLocks.get(d.ID.Key())
	if err := susp.Lock(context.Background()); err != nil {
		return o, err
	}
	pending, err := rt.store.LoadPendingSubdialogs(d.ID)
	if err == nil {
		pending = append(pending, dialog.PendingSubdialog{
			SubdialogID:    sub.ID,
			CreatedAt:      time.Now(),
			TellaskHead:    c.TellaskHead,
			TargetAgentID:  target,
			CallType:       callType,
			TellaskSession: session,
			CallID:         c.CallID,
		})
		err = rt.store.SavePendingSubdialogs(d.ID, pending)
	}
	susp.Unlock()
	if err != nil {
		rt.streamError(d, err.Error())
		return o, fmt.Errorf("record pending subdialog: %w", err)
	}

	go func() {
		if err := rt.DriveDialog(context.Background(), sub.ID, prompt); err != nil {
			// The failed drive already finalized its own run state; the
			// caller stays suspended until a response or a new user prompt.
			rt.streamError(d, fmt.Sprintf("subdialog %s drive failed: %v", sub.ID.Key(), err))
		}
	}()
	o.CreatedPending = true
	return o, nil
}

// formatTellaskPrompt renders a tellask as the prompting message of the
// receiving dialog.
func formatTellaskPrompt(from string, c tellask.Call) string {
	out := fmt.Sprintf("[tellask from @%s] %s", from, c.TellaskHead)
	if c.Body != "" {
		out += "\n\n" + c.Body
	}
	return out
}

// shortID derives a stable 8-hex-char identifier from its input.
func shortID(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:4])
}
