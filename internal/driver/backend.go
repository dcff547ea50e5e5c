package driver

import (
	"context"
	"log/slog"
	"time"

	"github.com/dominds/minddrive/internal/dialog"
)

// RunBackend runs the backend driver loop until ctx is cancelled: scan the
// persisted needs-drive set, drive every drivable dialog to suspension,
// and clear flags that are drained. Sleeps the poll interval when a scan
// finds nothing, and the error backoff after a failed scan.
func (rt *Runtime) RunBackend(ctx context.Context) error {
	slog.Info("backend driver started",
		"poll", rt.cfg.Driver.PollInterval, "error_backoff", rt.cfg.Driver.ErrorBackoff)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ids, err := rt.store.ListNeedsDrive()
		if err != nil {
			slog.Error("needs-drive scan failed", "error", err)
			if serr := sleepCtx(ctx, rt.cfg.Driver.ErrorBackoff); serr != nil {
				return serr
			}
			continue
		}

		drove := false
		for _, id := range ids {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !rt.canDrive(id) {
				continue
			}
			drove = true
			if err := rt.DriveDialog(ctx, id, nil); err != nil {
				slog.Warn("scheduled drive failed", "dialog", id.Key(), "error", err)
			}
			// The flag is re-evaluated only after the drive lock is
			// released: keep it while the dialog still has drivable work.
			if rt.canDrive(id) && !rt.hasQueuedResponses(id) {
				if err := rt.store.SetNeedsDrive(id, false, "drained"); err != nil {
					slog.Warn("clear needs-drive failed", "dialog", id.Key(), "error", err)
				}
			}
		}

		if !drove {
			if err := sleepCtx(ctx, rt.cfg.Driver.PollInterval); err != nil {
				return err
			}
		}
	}
}

// canDrive reports whether a dialog may be driven now: alive, no open
// question for human, and no pending subdialog still awaiting its
// response.
func (rt *Runtime) canDrive(id dialog.ID) bool {
	latest, err := rt.store.LoadDialogLatest(id)
	if err != nil || latest == nil || latest.RunState.IsDead() {
		return false
	}
	questions, err := rt.store.LoadQuestions4Human(id)
	if err != nil || len(questions) > 0 {
		return false
	}
	pending, err := rt.store.LoadPendingSubdialogs(id)
	if err != nil || len(pending) > 0 {
		return false
	}
	return true
}

func (rt *Runtime) hasQueuedResponses(id dialog.ID) bool {
	resp, err := rt.store.LoadSubdialogResponses(id)
	return err == nil && len(resp) > 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
