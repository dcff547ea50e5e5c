// Package driver implements the generation loop, the tellask executor and
// the backend scheduler that together drive dialogs against LLM backends.
package driver

import (
	"errors"
	"fmt"

	"github.com/dominds/minddrive/internal/dialog"
)

// ErrDialogBusy reports that a dialog's drive lock could not be taken
// without waiting.
var ErrDialogBusy = errors.New("dialog is being driven")

// DialogInterruptedError unwinds a drive that was stopped mid-flight. The
// stop reason is whatever the first stop writer recorded.
type DialogInterruptedError struct {
	DialogKey string
	Reason    dialog.StopReason
	Detail    string
}

func (e *DialogInterruptedError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("dialog %s interrupted (%s): %s", e.DialogKey, e.Reason, e.Detail)
	}
	return fmt.Sprintf("dialog %s interrupted (%s)", e.DialogKey, e.Reason)
}

// IsInterrupted reports whether err unwinds from a stopped drive and
// returns the interruption when it does.
func IsInterrupted(err error) (*DialogInterruptedError, bool) {
	var ie *DialogInterruptedError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}
