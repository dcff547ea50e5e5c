package driver

import (
	"fmt"
	"os"
	"strings"

	"github.com/dominds/minddrive/internal/dialog"
	"github.com/dominds/minddrive/internal/minds"
	"github.com/dominds/minddrive/internal/providers"
)

// assembleContext builds the provider-facing message list for one
// generation:
//
//  1. policy notice (fresh-boots "no tools"), 2. memories, 3. taskdoc,
//  4. course prefix, 5. course history (UI-only filtered), 6. taken
//     subdialog responses, 7. internal prompt.
//
// Rendered reminders, then a language guide, are inserted immediately
// before the last user-role message.
func (rt *Runtime) assembleContext(d *dialog.Dialog, am *minds.AgentMinds, pol drivePolicy, taken []dialog.SubdialogResponse, internalPrompt string, includeTaskdoc bool) []providers.WireMessage {
	var out []providers.WireMessage
	user := func(content string) {
		out = append(out, providers.WireMessage{Role: "user", Content: content})
	}

	if pol.NoticeEnv != "" {
		user(pol.NoticeEnv)
	}
	for _, mem := range am.Memories {
		user(mem)
	}
	if includeTaskdoc && d.TaskDocPath != "" {
		if data, err := os.ReadFile(d.TaskDocPath); err == nil {
			if doc := strings.TrimSpace(string(data)); doc != "" {
				user("Your task document:\n\n" + doc)
			}
		}
	}
	for _, prefix := range coursePrefix(d) {
		user(prefix)
	}

	for _, m := range d.Msgs() {
		if !m.VisibleToLLM() {
			continue
		}
		if wm, ok := wireMessage(m); ok {
			out = append(out, wm)
		}
	}

	for _, resp := range taken {
		user(formatResponseEnv(resp))
	}
	if internalPrompt != "" {
		user(internalPrompt)
	}

	var inserts []providers.WireMessage
	for _, r := range d.Reminders() {
		inserts = append(inserts, providers.WireMessage{Role: "user", Content: renderReminder(r)})
	}
	if d.LastUserLanguageCode != "" && d.LastUserLanguageCode != "en" {
		inserts = append(inserts, providers.WireMessage{
			Role:    "assistant",
			Content: fmt.Sprintf("(I will respond in the user's language: %s.)", d.LastUserLanguageCode),
		})
	}
	return insertBeforeLastUser(out, inserts)
}

// coursePrefix yields the system-emitted prologue of the current course.
func coursePrefix(d *dialog.Dialog) []string {
	var out []string
	if asg := d.Assignment; asg != nil {
		prefix := fmt.Sprintf("You are driven as a subdialog on behalf of @%s.\nTellask: %s", asg.OriginMemberID, asg.TellaskHead)
		if asg.TellaskBody != "" {
			prefix += "\n\n" + asg.TellaskBody
		}
		prefix += "\n\nYour final saying will be delivered back to your caller."
		out = append(out, prefix)
	}
	if c := d.CurrentCourse(); c > 1 {
		out = append(out, fmt.Sprintf("This is course %d of this dialog; earlier courses were archived after a clear-mind boundary.", c))
	}
	return out
}

// wireMessage converts one history message to provider wire form.
// Thinking is not replayed to the model.
func wireMessage(m dialog.ChatMessage) (providers.WireMessage, bool) {
	switch m.Type {
	case dialog.MsgThinking:
		return providers.WireMessage{}, false
	case dialog.MsgFuncCall:
		return providers.WireMessage{Role: "assistant", CallID: m.CallID, Name: m.Name, Arguments: m.Arguments}, true
	case dialog.MsgFuncResult:
		return providers.WireMessage{Role: "tool", ToolCallID: m.CallID, Name: m.Name, Content: m.Content}, true
	case dialog.MsgTellaskResult:
		content := fmt.Sprintf("Response from @%s (to: %s) [%s]:\n\n%s", m.ResponderID, m.TellaskHead, m.Status, m.Content)
		return providers.WireMessage{Role: "user", Content: content}, true
	default:
		return providers.WireMessage{Role: m.Role(), Content: m.Content}, true
	}
}

// formatResponseEnv renders one taken subdialog response, naming the
// responder, the requester and the original headline.
func formatResponseEnv(r dialog.SubdialogResponse) string {
	head := fmt.Sprintf("Teammate response from @%s", r.ResponderID)
	if r.OriginMemberID != "" && r.OriginMemberID != r.ResponderID {
		head += fmt.Sprintf(" (requested by @%s)", r.OriginMemberID)
	}
	return fmt.Sprintf("%s to your tellask %q:\n\n%s", head, r.TellaskHead, r.Response)
}

func renderReminder(r dialog.Reminder) string {
	if r.Rendered != "" {
		return r.Rendered
	}
	return fmt.Sprintf("Reminder (%s): %s", r.OwnerTool, r.Content)
}

// insertBeforeLastUser places inserts immediately before the last
// user-role message, or appends them when no user message exists.
func insertBeforeLastUser(msgs, inserts []providers.WireMessage) []providers.WireMessage {
	if len(inserts) == 0 {
		return msgs
	}
	idx := -1
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			idx = i
			break
		}
	}
	if idx < 0 {
		return append(msgs, inserts...)
	}
	out := make([]providers.WireMessage, 0, len(msgs)+len(inserts))
	out = append(out, msgs[:idx]...)
	out = append(out, inserts...)
	out = append(out, msgs[idx:]...)
	return out
}
