package driver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dominds/minddrive/internal/bus"
	"github.com/dominds/minddrive/internal/dialog"
	"github.com/dominds/minddrive/internal/minds"
	"github.com/dominds/minddrive/internal/providers"
	"github.com/dominds/minddrive/internal/store"
	"github.com/dominds/minddrive/internal/tellask"
	"github.com/dominds/minddrive/internal/tracing"
)

// HumanPrompt is the optional initial prompt of a drive.
type HumanPrompt struct {
	MsgID            string
	Content          string
	Grammar          string // GrammarMarkdown (default) or GrammarTellask
	UserLanguageCode string
	SkipTaskdoc      bool

	// internal marks prompts the driver prepared itself (diligence pushes,
	// forced-new-course prompts): no user-saying events, no budget re-arm.
	internal bool
}

// loopOutcome reports why the generation loop stopped cleanly.
type loopOutcome struct {
	hasQ4H       bool
	awaitingSubs bool
	fbrStopped   bool
}

func (o loopOutcome) suspended() bool { return o.hasQ4H || o.awaitingSubs }

// DriveDialog drives the dialog to suspension, waiting in the dialog's
// FIFO drive queue if another drive is in flight.
func (rt *Runtime) DriveDialog(ctx context.Context, id dialog.ID, prompt *HumanPrompt) error {
	lock := rt.driveLocks.get(id.Key())
	if err := lock.Lock(ctx); err != nil {
		return err
	}
	defer lock.Unlock()
	return rt.driveLocked(ctx, id, prompt)
}

// TryDriveDialog drives the dialog only if no drive is in flight,
// otherwise returns ErrDialogBusy.
func (rt *Runtime) TryDriveDialog(ctx context.Context, id dialog.ID, prompt *HumanPrompt) error {
	lock := rt.driveLocks.get(id.Key())
	if !lock.TryLock() {
		return ErrDialogBusy
	}
	defer lock.Unlock()
	return rt.driveLocked(ctx, id, prompt)
}

func (rt *Runtime) driveLocked(ctx context.Context, id dialog.ID, prompt *HumanPrompt) error {
	d, err := rt.dialogFor(id)
	if err != nil {
		return err
	}
	latest, err := rt.store.LoadDialogLatest(id)
	if err != nil {
		return err
	}
	if latest != nil && latest.RunState.IsDead() {
		return store.ErrDeadDialog
	}

	ctx, span := tracing.StartDrive(ctx, id.Key(), d.AgentID)
	defer span.End()

	tok := newAbortToken(ctx)
	rt.aborts.register(id.Key(), tok)
	defer func() {
		rt.aborts.unregister(id.Key(), tok)
		tok.release()
	}()

	if prompt == nil && latest != nil && latest.RunState.Kind == dialog.RunInterrupted {
		rt.bus.Broadcast(bus.Event{
			Name:      bus.EventRunState,
			DialogKey: id.Key(),
			Payload:   bus.RunStateMarker{Marker: "resumed"},
		})
	}
	if err := rt.store.SetDialogRunState(id, dialog.RunState{Kind: dialog.RunProceeding}); err != nil {
		return err
	}

	var take *store.Take
	out, driveErr := rt.generationLoop(tok, d, prompt, &take)

	rs := dialog.RunState{Kind: dialog.RunIdleWaitingUser}
	if driveErr != nil {
		ie, ok := IsInterrupted(driveErr)
		if !ok {
			ie = &DialogInterruptedError{DialogKey: id.Key(), Reason: dialog.StopSystem, Detail: driveErr.Error()}
			driveErr = ie
		}
		rs = dialog.RunState{Kind: dialog.RunInterrupted, Reason: ie.Reason, Detail: ie.Detail}
		rt.bus.Broadcast(bus.Event{
			Name:      bus.EventRunState,
			DialogKey: id.Key(),
			Payload:   bus.RunStateMarker{Marker: "interrupted", Reason: string(ie.Reason), Detail: ie.Detail},
		})
		slog.Warn("drive interrupted", "dialog", id.Key(), "reason", ie.Reason, "detail", ie.Detail)
	}
	// SetDialogRunState preserves a dead state written externally.
	if err := rt.store.SetDialogRunState(id, rs); err != nil {
		slog.Warn("finalize run state failed", "dialog", id.Key(), "error", err)
	}
	rt.persistLatest(d, rs)

	if take != nil {
		if driveErr == nil {
			if err := rt.store.CommitTake(take); err != nil {
				slog.Warn("commit take failed", "dialog", id.Key(), "error", err)
			}
		} else if err := rt.store.RollbackTake(take); err != nil {
			slog.Warn("rollback take failed", "dialog", id.Key(), "error", err)
		}
	}

	if driveErr == nil && !d.IsRoot() && !out.suspended() && !out.fbrStopped {
		if say, ok := d.LastSaying(); ok {
			rt.supplyResponse(d, say)
		}
	}
	return driveErr
}

// generationLoop is the heart of a drive: iterate generations until the
// dialog suspends, idles, or is interrupted.
func (rt *Runtime) generationLoop(tok *abortToken, d *dialog.Dialog, prompt *HumanPrompt, takeOut **store.Take) (loopOutcome, error) {
	var out loopOutcome
	var taken []dialog.SubdialogResponse
	first := true
	key := d.ID.Key()

	for {
		if reason, detail, stopped := tok.StopState(); stopped {
			return out, &DialogInterruptedError{DialogKey: key, Reason: reason, Detail: detail}
		}

		// Fresh minds every iteration: configuration may have changed.
		am, err := rt.minds.LoadAgentMinds(d.AgentID)
		if err != nil {
			detail := fmt.Sprintf("agent minds unavailable: %v", err)
			rt.noticeDominds(d, detail)
			rt.recordProblem(ProblemConfig, d, "", detail)
			return out, &DialogInterruptedError{DialogKey: key, Reason: dialog.StopSystem, Detail: detail}
		}
		pol := rt.buildPolicy(d, am)
		provName, model, modelSpec, gen, err := rt.resolveGenerator(d, am)
		if err != nil {
			rt.noticeDominds(d, err.Error())
			rt.recordProblem(ProblemConfig, d, provName, err.Error())
			return out, &DialogInterruptedError{DialogKey: key, Reason: dialog.StopSystem, Detail: err.Error()}
		}

		promptEmitted := false
		includeTaskdoc := true
		if prompt != nil {
			if prompt.UserLanguageCode != "" {
				d.LastUserLanguageCode = prompt.UserLanguageCode
			}
			includeTaskdoc = !prompt.SkipTaskdoc
			if d.IsRoot() && !prompt.internal {
				d.DiligencePushRemainingBudget = am.Agent.EffectiveDiligencePushMax()
			}
			msgID := prompt.MsgID
			if msgID == "" {
				msgID = uuid.NewString()
			}
			grammar := prompt.Grammar
			if grammar == "" {
				grammar = dialog.GrammarMarkdown
			}
			genseq := d.NextGenSeq()
			d.AddChatMessages(dialog.NewPrompting(msgID, prompt.Content, grammar, genseq))
			if err := rt.persistMsgs(d); err != nil {
				return out, err
			}
			if grammar == dialog.GrammarTellask {
				calls := rt.parseText(d, prompt.Content)
				res, err := rt.execTellasks(tok, d, am, calls)
				if err != nil {
					return out, err
				}
				if len(res.Msgs) > 0 {
					d.AddChatMessages(res.Msgs...)
					if err := rt.persistMsgs(d); err != nil {
						return out, err
					}
				}
				out.hasQ4H = out.hasQ4H || res.HasQ4H
				out.awaitingSubs = out.awaitingSubs || res.CreatedPending
			} else if !prompt.internal {
				rt.bus.Broadcast(bus.Event{
					Name:      bus.EventMarkdownRender,
					DialogKey: key,
					Payload:   map[string]string{"text": prompt.Content},
				})
			}
			if !prompt.internal {
				rt.bus.Broadcast(bus.Event{
					Name:      bus.EventEndOfUserSaying,
					DialogKey: key,
					Payload: bus.EndOfUserSaying{
						Course:           d.CurrentCourse(),
						GenSeq:           genseq,
						MsgID:            msgID,
						Content:          prompt.Content,
						Grammar:          grammar,
						UserLanguageCode: prompt.UserLanguageCode,
					},
				})
			}
			promptEmitted = true
			prompt = nil

			// A user tellask may have suspended the dialog before any
			// generation happened.
			if out.suspended() {
				if out.hasQ4H {
					d.DiligencePushRemainingBudget = am.Agent.EffectiveDiligencePushMax()
					rt.emitBudget(d, am.Agent.EffectiveDiligencePushMax())
				}
				return out, nil
			}
		}

		if first {
			take, err := rt.takeResponses(d)
			if err != nil {
				return out, err
			}
			if take != nil && len(take.Responses) > 0 {
				*takeOut = take
				taken = take.Responses
			}
		}

		rem := rt.remediateHealth(d, modelSpec, promptEmitted)
		if rem.newCoursePrompt != "" {
			rt.persistLatest(d, dialog.RunState{Kind: dialog.RunProceeding})
			prompt = &HumanPrompt{Content: rem.newCoursePrompt, internal: true}
			first = false
			continue
		}
		if rem.guide != "" {
			if rem.guideAsPrompt {
				d.AddChatMessages(dialog.NewPrompting(uuid.NewString(), rem.guide, dialog.GrammarMarkdown, d.NextGenSeq()))
			} else {
				d.AddChatMessages(dialog.NewEnvironment(rem.guide))
			}
			if err := rt.persistMsgs(d); err != nil {
				return out, err
			}
		}

		wire := rt.assembleContext(d, am, pol, taken, "", includeTaskdoc)
		genseq := d.NextGenSeq()
		result, calls, err := rt.generate(tok, d, gen, provName, model, pol, am, wire, genseq)
		if err != nil {
			if reason, detail, stopped := tok.StopState(); stopped {
				return out, &DialogInterruptedError{DialogKey: key, Reason: reason, Detail: detail}
			}
			rt.streamError(d, err.Error())
			if providers.Classify(err) == providers.FailRejected {
				rt.recordProblem(ProblemProviderRejected, d, provName, err.Error())
				detail := fmt.Sprintf("provider %s rejected the request: %v", provName, err)
				return out, &DialogInterruptedError{DialogKey: key, Reason: dialog.StopSystem, Detail: detail}
			}
			return out, &DialogInterruptedError{DialogKey: key, Reason: dialog.StopSystem, Detail: err.Error()}
		}
		d.LastContextHealth = evalContextHealth(modelSpec, result.Usage)

		var funcCalls, spoken []dialog.ChatMessage
		for _, m := range result.Messages {
			m := m
			if m.GenSeq == 0 {
				m.GenSeq = genseq
			}
			if m.Type == dialog.MsgFuncCall {
				funcCalls = append(funcCalls, m)
			} else {
				spoken = append(spoken, m)
			}
		}
		d.AddChatMessages(spoken...)
		if err := rt.persistMsgs(d); err != nil {
			return out, err
		}

		if pol.FBRToolless && fbrViolated(calls, len(funcCalls)) {
			notice := minds.Msg(d.LastUserLanguageCode, minds.MsgFBRViolation)
			d.AddChatMessages(dialog.ChatMessage{Type: dialog.MsgUIOnlyMarkdown, Content: notice, GenSeq: genseq})
			if err := rt.persistMsgs(d); err != nil {
				return out, err
			}
			rt.noticeDominds(d, notice)
			out.fbrStopped = true
			return out, nil
		}

		execRes, err := rt.execTellasks(tok, d, am, calls)
		if err != nil {
			return out, err
		}
		if len(execRes.Msgs) > 0 {
			d.AddChatMessages(execRes.Msgs...)
			if err := rt.persistMsgs(d); err != nil {
				return out, err
			}
		}

		if len(funcCalls) > 0 {
			results := rt.execFuncCalls(tok, d, am, funcCalls)
			pairs := make([]dialog.ChatMessage, 0, 2*len(funcCalls))
			for i := range funcCalls {
				pairs = append(pairs, funcCalls[i], results[i])
			}
			d.AddChatMessages(pairs...)
			if err := rt.persistMsgs(d); err != nil {
				return out, err
			}
		}

		if execRes.HasQ4H || execRes.CreatedPending {
			out.hasQ4H = execRes.HasQ4H
			out.awaitingSubs = execRes.CreatedPending
			if execRes.HasQ4H {
				d.DiligencePushRemainingBudget = am.Agent.EffectiveDiligencePushMax()
				rt.emitBudget(d, am.Agent.EffectiveDiligencePushMax())
			}
			return out, nil
		}

		if len(funcCalls) > 0 || execRes.SyncResults > 0 {
			first = false
			continue
		}

		if d.IsRoot() {
			dec, err := rt.diligencePush(d, am)
			if err != nil {
				return out, err
			}
			if dec.suspended {
				out.hasQ4H = true
				return out, nil
			}
			if dec.nextPrompt != "" {
				prompt = &HumanPrompt{Content: dec.nextPrompt, internal: true}
				first = false
				continue
			}
		}
		return out, nil
	}
}

// takeResponses removes the dialog's queued subdialog responses under its
// suspension-state lock.
func (rt *Runtime) takeResponses(d *dialog.Dialog) (*store.Take, error) {
	susp := rt.suspLocks.get(d.ID.Key())
	if err := susp.Lock(context.Background()); err != nil {
		return nil, err
	}
	defer susp.Unlock()
	return rt.store.TakeSubdialogResponses(d.ID)
}

// resolveGenerator resolves provider and model for the agent, with
// human-actionable localized errors for missing configuration.
func (rt *Runtime) resolveGenerator(d *dialog.Dialog, am *minds.AgentMinds) (provName, model string, modelSpec minds.ModelSpec, gen providers.Generator, err error) {
	lang := d.LastUserLanguageCode
	provName = am.Agent.Provider
	model = am.Agent.Model
	if provName == "" {
		provName = am.Team.MemberDefaults.Provider
	}
	if model == "" {
		model = am.Team.MemberDefaults.Model
	}
	if provName == "" || model == "" {
		return provName, model, modelSpec, nil, fmt.Errorf("%s", minds.Msg(lang, minds.MsgMissingProvider, am.Agent.ID))
	}
	llm, lerr := rt.minds.LLM()
	if lerr != nil {
		return provName, model, modelSpec, nil, lerr
	}
	spec, ok := llm.Providers[provName]
	if !ok {
		return provName, model, modelSpec, nil, fmt.Errorf("%s", minds.Msg(lang, minds.MsgMissingGenerator, provName, ""))
	}
	modelSpec, ok = spec.Models[model]
	if !ok {
		return provName, model, modelSpec, nil, fmt.Errorf("%s", minds.Msg(lang, minds.MsgUnknownModel, model, provName))
	}
	gen, gerr := rt.generatorFor(provName, spec)
	if gerr != nil {
		return provName, model, modelSpec, nil, fmt.Errorf("%s", minds.Msg(lang, minds.MsgMissingGenerator, provName, spec.APIType))
	}
	return provName, model, modelSpec, gen, nil
}

// generate runs one generation with the retry policy. For streaming
// members, retries are allowed only while no content has reached the
// parser.
func (rt *Runtime) generate(tok *abortToken, d *dialog.Dialog, gen providers.Generator, provName, model string, pol drivePolicy, am *minds.AgentMinds, wire []providers.WireMessage, genseq int) (*providers.GenResult, []tellask.Call, error) {
	req := providers.GenRequest{
		Model:        model,
		SystemPrompt: pol.SystemPrompt,
		Messages:     wire,
		Tools:        pol.Tools,
		Params:       pol.Params,
	}
	ctx, span := tracing.StartGenerate(tok.ctx, provName, model, genseq)
	defer span.End()

	if am.Agent.WantsStreaming() {
		var rcv *driveReceiver
		res, err := providers.Run(ctx, provName, rt.maxRetries,
			func() bool { return rcv == nil || !rcv.contentSeen },
			func() (*providers.GenResult, error) {
				rcv = newDriveReceiver(rt, d)
				return gen.GenToReceiver(ctx, req, rcv, genseq)
			})
		if err != nil {
			span.RecordError(err)
			return nil, nil, err
		}
		return res, rcv.calls, nil
	}

	res, err := providers.Run(ctx, provName, rt.maxRetries, nil,
		func() (*providers.GenResult, error) { return gen.GenMessages(ctx, req) })
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}
	var calls []tellask.Call
	for _, m := range res.Messages {
		if m.Type == dialog.MsgSaying {
			calls = append(calls, rt.parseText(d, m.Content)...)
		}
	}
	return res, calls, nil
}
