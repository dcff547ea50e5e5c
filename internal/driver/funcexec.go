package driver

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dominds/minddrive/internal/dialog"
	"github.com/dominds/minddrive/internal/minds"
	"github.com/dominds/minddrive/internal/tools"
	"github.com/dominds/minddrive/internal/tracing"
)

// execFuncCalls executes the generation's function calls concurrently.
// results[i] pairs with calls[i]: same CallID, same GenSeq. Failures are
// captured into the result message, never escalated.
func (rt *Runtime) execFuncCalls(tok *abortToken, d *dialog.Dialog, am *minds.AgentMinds, calls []dialog.ChatMessage) []dialog.ChatMessage {
	results := make([]dialog.ChatMessage, len(calls))
	var wg sync.WaitGroup
	for i, fc := range calls {
		wg.Add(1)
		go func(i int, fc dialog.ChatMessage) {
			defer wg.Done()
			results[i] = rt.execOneFunc(tok, d, am, fc)
		}(i, fc)
	}
	wg.Wait()
	return results
}

func (rt *Runtime) execOneFunc(tok *abortToken, d *dialog.Dialog, am *minds.AgentMinds, fc dialog.ChatMessage) dialog.ChatMessage {
	ctx, span := tracing.StartTool(tok.ctx, fc.Name)
	defer span.End()

	fail := func(content string) dialog.ChatMessage {
		return dialog.NewFuncResult(fc.CallID, fc.Name, content, fc.GenSeq)
	}

	tool, ok := rt.tools.Get(fc.Name)
	if !ok {
		return fail(fmt.Sprintf("Function '%s' execution failed: no such tool", fc.Name))
	}

	var args map[string]any
	if fc.Arguments != "" {
		if err := json.Unmarshal([]byte(fc.Arguments), &args); err != nil {
			args = nil
		}
	}
	if tool.ArgsValidation() == tools.ValidationSchema {
		if err := tools.ValidateArgs(tool.Parameters(), args); err != nil {
			return fail("Invalid arguments: " + err.Error())
		}
	}

	out, err := tool.Call(ctx, d, &am.Agent, args)
	if err != nil {
		span.RecordError(err)
		return fail(fmt.Sprintf("Function '%s' execution failed: %v", fc.Name, err))
	}
	return dialog.NewFuncResult(fc.CallID, fc.Name, out, fc.GenSeq)
}
