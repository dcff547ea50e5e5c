package driver

import (
	"strings"

	"github.com/dominds/minddrive/internal/dialog"
	"github.com/dominds/minddrive/internal/minds"
	"github.com/dominds/minddrive/internal/providers"
	"github.com/dominds/minddrive/internal/tellask"
)

// drivePolicy is what one iteration generates under. Default mode carries
// the agent's tools and system prompt; fresh-boots (FBR) mode is toolless,
// swaps the system prompt and restricts the tellask vocabulary to
// @tellasker.
type drivePolicy struct {
	FBRToolless  bool
	SystemPrompt string
	Params       map[string]any
	Tools        []providers.ToolDefinition
	// NoticeEnv, when non-empty, is prepended to the context as an
	// environment message.
	NoticeEnv string
}

// isFBRToolless reports whether the dialog runs under fresh-boots policy:
// a subdialog whose assignment headline addresses @self.
func isFBRToolless(d *dialog.Dialog) bool {
	if d.IsRoot() || d.Assignment == nil {
		return false
	}
	return strings.HasPrefix(strings.TrimSpace(d.Assignment.TellaskHead), "@"+tellask.AliasSelf)
}

// buildPolicy derives the drive policy for one iteration from freshly
// loaded minds.
func (rt *Runtime) buildPolicy(d *dialog.Dialog, am *minds.AgentMinds) drivePolicy {
	lang := d.LastUserLanguageCode
	if !isFBRToolless(d) {
		return drivePolicy{
			SystemPrompt: am.SystemPrompt,
			Params:       am.Agent.ModelParams,
			Tools:        rt.tools.ProviderDefs(am.AgentTools),
		}
	}
	params := am.Agent.ModelParams
	if len(am.Agent.FBRModelParams) > 0 {
		params = am.Agent.FBRModelParams
	}
	return drivePolicy{
		FBRToolless:  true,
		SystemPrompt: rt.minds.FBRSystemPrompt(lang),
		Params:       params,
		NoticeEnv:    minds.Msg(lang, minds.MsgNoToolsNotice),
	}
}

// fbrViolated reports whether a generation broke the fresh-boots policy:
// any function call, or any valid tellask addressing something other than
// @tellasker.
func fbrViolated(calls []tellask.Call, funcCallCount int) bool {
	if funcCallCount > 0 {
		return true
	}
	for _, c := range calls {
		if c.Valid && c.FirstMention != tellask.AliasTellasker {
			return true
		}
	}
	return false
}
