package driver

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dominds/minddrive/internal/bus"
	"github.com/dominds/minddrive/internal/config"
	"github.com/dominds/minddrive/internal/dialog"
	"github.com/dominds/minddrive/internal/minds"
	"github.com/dominds/minddrive/internal/providers"
	"github.com/dominds/minddrive/internal/store"
	"github.com/dominds/minddrive/internal/tellask"
	"github.com/dominds/minddrive/internal/tools"
)

// Problem kinds recorded against the workspace.
const (
	ProblemProviderRejected = "llm_provider_rejected_request"
	ProblemConfig           = "configuration_error"
)

const defaultMaxRetries = 5

// Runtime owns everything a drive needs: the store, the live-dialog
// registry, per-dialog lock tables, the abort registry and the
// context-health state. One Runtime serves one workspace.
type Runtime struct {
	cfg    *config.Config
	store  store.Store
	reg    *dialog.Registry
	minds  *minds.Loader
	tools  *tools.Registry
	bus    bus.Publisher
	parser tellask.ParserFactory

	maxRetries int

	driveLocks *lockTable // generation-loop exclusivity, FIFO per dialog
	suspLocks  *lockTable // suspension-state (pending/responses/Q4H) writes
	aborts     *abortRegistry

	healthMu sync.Mutex
	health   map[string]*healthState

	genMu      sync.Mutex
	generators map[string]providers.Generator
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithParserFactory replaces the default tellask stream parser.
func WithParserFactory(f tellask.ParserFactory) Option {
	return func(rt *Runtime) { rt.parser = f }
}

// WithMaxRetries overrides the LLM retry budget.
func WithMaxRetries(n int) Option {
	return func(rt *Runtime) { rt.maxRetries = n }
}

// WithGenerator pre-registers a generator under a provider name. Used for
// providers the runtime cannot build from llm.yaml, and by tests.
func WithGenerator(name string, g providers.Generator) Option {
	return func(rt *Runtime) { rt.generators[name] = g }
}

// New creates a Runtime over the given collaborators.
func New(cfg *config.Config, st store.Store, loader *minds.Loader, toolReg *tools.Registry, pub bus.Publisher, opts ...Option) *Runtime {
	rt := &Runtime{
		cfg:        cfg,
		store:      st,
		reg:        dialog.NewRegistry(),
		minds:      loader,
		tools:      toolReg,
		bus:        pub,
		parser:     tellask.NewLineParser,
		maxRetries: defaultMaxRetries,
		driveLocks: newLockTable(),
		suspLocks:  newLockTable(),
		aborts:     newAbortRegistry(),
		health:     make(map[string]*healthState),
		generators: make(map[string]providers.Generator),
	}
	for _, o := range opts {
		o(rt)
	}
	return rt
}

// Registry exposes the live-dialog registry.
func (rt *Runtime) Registry() *dialog.Registry { return rt.reg }

// Store exposes the persistence facade.
func (rt *Runtime) Store() store.Store { return rt.store }

// Stop requests interruption of a running drive. The first stop request
// wins the recorded reason; later requests only reinforce cancellation.
// Returns false when no drive is running for the dialog.
func (rt *Runtime) Stop(id dialog.ID, reason dialog.StopReason, detail string) bool {
	return rt.aborts.stop(id.Key(), reason, detail)
}

// EnsureRoot returns the root dialog for an agent, creating and persisting
// it on first use. The root dialog id is the agent id.
func (rt *Runtime) EnsureRoot(agentID string) (*dialog.Dialog, error) {
	id := dialog.RootID(agentID)
	if d, ok := rt.reg.Get(id); ok {
		return d, nil
	}
	d, err := rt.dialogFor(id)
	if err == nil {
		return d, nil
	}
	d = rt.reg.GetOrAdd(id, func() *dialog.Dialog {
		return dialog.NewRoot(agentID, agentID)
	})
	st := &store.LatestState{
		ID:        d.ID,
		Kind:      d.Kind,
		AgentID:   d.AgentID,
		RunState:  dialog.RunState{Kind: dialog.RunIdleWaitingUser},
		Course:    d.CurrentCourse(),
		UpdatedAt: time.Now(),
	}
	if err := rt.store.SaveDialogLatest(st); err != nil {
		return nil, fmt.Errorf("persist root dialog: %w", err)
	}
	return d, nil
}

// dialogFor resolves a dialog from the registry, reviving it from the
// store when it is not in memory.
func (rt *Runtime) dialogFor(id dialog.ID) (*dialog.Dialog, error) {
	if d, ok := rt.reg.Get(id); ok {
		return d, nil
	}
	latest, err := rt.store.LoadDialogLatest(id)
	if err != nil {
		return nil, fmt.Errorf("load dialog %s: %w", id.Key(), err)
	}
	if latest == nil {
		return nil, fmt.Errorf("dialog %s not found", id.Key())
	}
	msgs, err := rt.store.LoadMessages(id, latest.Course)
	if err != nil {
		return nil, fmt.Errorf("load messages for %s: %w", id.Key(), err)
	}
	d := rt.reg.GetOrAdd(id, func() *dialog.Dialog {
		var nd *dialog.Dialog
		if latest.Kind == dialog.KindRoot {
			nd = dialog.NewRoot(id.Root, latest.AgentID)
		} else {
			nd = dialog.NewSub(id, latest.AgentID, latest.Assignment)
		}
		nd.RestoreCourse(latest.Course, latest.GenSeq, msgs)
		return nd
	})
	if latest.Kind == dialog.KindSub {
		rt.restoreRegistered(id.RootDialogID())
	}
	slog.Info("dialog revived", "dialog", id.Key(), "course", latest.Course, "genseq", latest.GenSeq)
	return d, nil
}

// restoreRegistered reloads the root's resumable-subdialog registrations
// into the in-memory registry after a restart.
func (rt *Runtime) restoreRegistered(root dialog.ID) {
	recs, err := rt.store.ListRegisteredSubdialogs(root)
	if err != nil {
		slog.Warn("registered subdialogs unavailable", "root", root.Key(), "error", err)
		return
	}
	for _, rec := range recs {
		rt.reg.RegisterSubdialog(root, rec.TargetAgentID, rec.TellaskSession, rec.SubdialogID)
	}
}

// persistLatest saves the dialog's current snapshot. ErrDeadDialog is
// swallowed: dead is terminal and the snapshot no longer matters.
func (rt *Runtime) persistLatest(d *dialog.Dialog, rs dialog.RunState) {
	st := &store.LatestState{
		ID:         d.ID,
		Kind:       d.Kind,
		AgentID:    d.AgentID,
		RunState:   rs,
		Course:     d.CurrentCourse(),
		GenSeq:     d.ActiveGenSeq(),
		Assignment: d.Assignment,
		UpdatedAt:  time.Now(),
	}
	if err := rt.store.SaveDialogLatest(st); err != nil && err != store.ErrDeadDialog {
		slog.Warn("persist latest failed", "dialog", d.ID.Key(), "error", err)
	}
}

// persistMsgs saves the current course's messages.
func (rt *Runtime) persistMsgs(d *dialog.Dialog) error {
	if err := rt.store.SaveMessages(d.ID, d.CurrentCourse(), d.Msgs()); err != nil {
		return fmt.Errorf("persist messages for %s: %w", d.ID.Key(), err)
	}
	return nil
}

// healthStateFor returns the dialog's context-health FSM entry.
func (rt *Runtime) healthStateFor(key string) *healthState {
	rt.healthMu.Lock()
	defer rt.healthMu.Unlock()
	hs, ok := rt.health[key]
	if !ok {
		hs = &healthState{}
		rt.health[key] = hs
	}
	return hs
}

// generatorFor resolves (building lazily) the generator for a provider.
func (rt *Runtime) generatorFor(name string, spec minds.ProviderSpec) (providers.Generator, error) {
	rt.genMu.Lock()
	defer rt.genMu.Unlock()
	if g, ok := rt.generators[name]; ok {
		return g, nil
	}
	switch spec.APIType {
	case providers.APITypeOpenAI, "":
		apiKey := ""
		if spec.APIKeyEnv != "" {
			apiKey = os.Getenv(spec.APIKeyEnv)
		}
		g := providers.NewOpenAIGenerator(name, apiKey,
			providers.WithBaseURL(spec.BaseURL),
			providers.WithRequestsPerMinute(spec.RequestsPerMinute))
		rt.generators[name] = g
		return g, nil
	default:
		return nil, fmt.Errorf("unsupported apiType %q for provider %q", spec.APIType, name)
	}
}

// noticeDominds emits a system notice bubble on the dialog's event stream.
func (rt *Runtime) noticeDominds(d *dialog.Dialog, text string) {
	rt.bus.Broadcast(bus.Event{
		Name:      bus.EventDomindsNotice,
		DialogKey: d.ID.Key(),
		Payload:   map[string]string{"content": text},
	})
}

// recordProblem upserts a workspace problem keyed by {kind, dialog}.
func (rt *Runtime) recordProblem(kind string, d *dialog.Dialog, provider, detail string) {
	p := store.Problem{
		Kind:      kind,
		DialogKey: d.ID.Key(),
		Provider:  provider,
		Detail:    detail,
		UpdatedAt: time.Now(),
	}
	if err := rt.store.UpsertProblem(p); err != nil {
		slog.Warn("record problem failed", "kind", kind, "dialog", d.ID.Key(), "error", err)
	}
}
