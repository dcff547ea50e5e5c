package driver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dominds/minddrive/internal/dialog"
)

// SubmitUserSaying drives an agent's root dialog with a fresh user prompt.
// The drive runs synchronously; callers wanting fire-and-forget wrap it in
// a goroutine.
func (rt *Runtime) SubmitUserSaying(ctx context.Context, agentID, content, grammar, langCode string) error {
	d, err := rt.EnsureRoot(agentID)
	if err != nil {
		return err
	}
	return rt.DriveDialog(ctx, d.ID, &HumanPrompt{
		Content:          content,
		Grammar:          grammar,
		UserLanguageCode: langCode,
	})
}

// OpenQuestions lists the unanswered questions-for-human of a dialog.
func (rt *Runtime) OpenQuestions(id dialog.ID) ([]dialog.HumanQuestion, error) {
	return rt.store.LoadQuestions4Human(id)
}

// AnswerQuestion resolves a question-for-human and drives the dialog with
// the user's answer.
func (rt *Runtime) AnswerQuestion(ctx context.Context, id dialog.ID, questionID, answer, langCode string) error {
	susp := rt.suspLocks.get(id.Key())
	if err := susp.Lock(ctx); err != nil {
		return err
	}
	err := rt.store.ResolveQuestion4Human(id, questionID)
	susp.Unlock()
	if err != nil {
		return fmt.Errorf("resolve question %s: %w", questionID, err)
	}
	return rt.DriveDialog(ctx, id, &HumanPrompt{
		Content:          answer,
		UserLanguageCode: langCode,
	})
}

// MarkDead persists the terminal dead state for a dialog and cancels any
// running drive. Dead is never overwritten afterwards.
func (rt *Runtime) MarkDead(id dialog.ID, detail string) error {
	rt.aborts.stop(id.Key(), dialog.StopSystem, "dialog marked dead")
	rs := dialog.RunState{Kind: dialog.RunDead, Reason: dialog.StopSystem, Detail: detail}
	if err := rt.store.SetDialogRunState(id, rs); err != nil {
		return err
	}
	slog.Info("dialog marked dead", "dialog", id.Key(), "detail", detail)
	return nil
}
