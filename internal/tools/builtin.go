package tools

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dominds/minddrive/internal/dialog"
	"github.com/dominds/minddrive/internal/minds"
)

const remindToolName = "remind"

// NewRemindTool returns the built-in reminder tool: agents pin short notes
// that the driver re-injects into every later generation's context.
func NewRemindTool() Tool {
	return &FuncTool{
		ToolName:        remindToolName,
		ToolDescription: "Pin a short reminder into your context, or drop one. Reminders reappear every turn until removed.",
		ToolParameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"action": map[string]any{
					"type":        "string",
					"description": "add, remove, or list",
				},
				"content": map[string]any{
					"type":        "string",
					"description": "reminder text (action=add)",
				},
				"id": map[string]any{
					"type":        "string",
					"description": "reminder id (action=remove)",
				},
			},
			"required": []any{"action"},
		},
		Fn: func(_ context.Context, dlg *dialog.Dialog, _ *minds.Member, args map[string]any) (string, error) {
			action, _ := args["action"].(string)
			switch action {
			case "add":
				content, _ := args["content"].(string)
				if content == "" {
					return "", fmt.Errorf("add requires content")
				}
				id := uuid.NewString()[:8]
				dlg.UpsertReminder(dialog.Reminder{ID: id, OwnerTool: remindToolName, Content: content})
				return fmt.Sprintf("reminder %s pinned", id), nil
			case "remove":
				id, _ := args["id"].(string)
				if !dlg.RemoveReminder(id) {
					return "", fmt.Errorf("no reminder with id %q", id)
				}
				return fmt.Sprintf("reminder %s removed", id), nil
			case "list":
				rs := dlg.Reminders()
				if len(rs) == 0 {
					return "no reminders pinned", nil
				}
				out := ""
				for _, r := range rs {
					out += fmt.Sprintf("%s: %s\n", r.ID, r.Content)
				}
				return out, nil
			default:
				return "", fmt.Errorf("unknown action %q", action)
			}
		},
	}
}
