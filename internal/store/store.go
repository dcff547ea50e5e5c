// Package store defines the persistence facade the dialog driver runs on.
//
// All mutating calls are idempotent at the record key (response ID,
// subdialog ID, question ID). Two backends exist: a per-dialog YAML
// directory layout (store/file) and SQLite (store/sqlite).
package store

import (
	"errors"
	"time"

	"github.com/dominds/minddrive/internal/dialog"
)

// ErrDeadDialog is returned when a write would resurrect a dialog whose
// persisted run state is dead. Dead is terminal.
var ErrDeadDialog = errors.New("dialog is dead")

// LatestState is the persisted snapshot of a dialog's identity and run
// state, enough to revive it after a process restart.
type LatestState struct {
	ID         dialog.ID          `json:"id" yaml:"id"`
	Kind       dialog.Kind        `json:"kind" yaml:"kind"`
	AgentID    string             `json:"agent_id" yaml:"agent_id"`
	RunState   dialog.RunState    `json:"run_state" yaml:"run_state"`
	Course     int                `json:"course" yaml:"course"`
	GenSeq     int                `json:"genseq" yaml:"genseq"`
	Assignment *dialog.Assignment `json:"assignment,omitempty" yaml:"assignment,omitempty"`
	UpdatedAt  time.Time          `json:"updated_at" yaml:"updated_at"`
}

// Take is a batch of subdialog responses removed from a caller's queue for
// injection into its next drive. Commit on generation success, roll back on
// generation error so the batch is re-delivered.
type Take struct {
	DialogID  dialog.ID
	Responses []dialog.SubdialogResponse
}

// Problem is a workspace-level problem record, keyed by {Kind, DialogKey}.
type Problem struct {
	Kind      string    `json:"kind" yaml:"kind"`
	DialogKey string    `json:"dialog_key" yaml:"dialog_key"`
	Provider  string    `json:"provider,omitempty" yaml:"provider,omitempty"`
	Detail    string    `json:"detail" yaml:"detail"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Store is the persistence facade consumed by the driver. Implementations
// must be safe for concurrent use; the driver additionally serializes
// suspension-state mutations per dialog.
type Store interface {
	// Latest-state snapshot.
	LoadDialogLatest(id dialog.ID) (*LatestState, error) // nil when absent
	SaveDialogLatest(st *LatestState) error
	// SetDialogRunState updates only the run state, preserving dead.
	SetDialogRunState(id dialog.ID, rs dialog.RunState) error

	// Messages, one file/row-set per course.
	SaveMessages(id dialog.ID, course int, msgs []dialog.ChatMessage) error
	LoadMessages(id dialog.ID, course int) ([]dialog.ChatMessage, error)

	// Questions for human.
	AppendQuestion4Human(id dialog.ID, q dialog.HumanQuestion) error
	LoadQuestions4Human(id dialog.ID) ([]dialog.HumanQuestion, error)
	ResolveQuestion4Human(id dialog.ID, questionID string) error

	// Pending subdialogs of a caller.
	LoadPendingSubdialogs(id dialog.ID) ([]dialog.PendingSubdialog, error)
	SavePendingSubdialogs(id dialog.ID, recs []dialog.PendingSubdialog) error

	// Subdialog response queue of a caller (FIFO).
	AppendSubdialogResponse(id dialog.ID, rec dialog.SubdialogResponse) error
	LoadSubdialogResponses(id dialog.ID) ([]dialog.SubdialogResponse, error)
	TakeSubdialogResponses(id dialog.ID) (*Take, error)
	CommitTake(t *Take) error
	RollbackTake(t *Take) error

	// Needs-drive flag, evaluated by the backend driver.
	SetNeedsDrive(id dialog.ID, flag bool, status string) error
	ListNeedsDrive() ([]dialog.ID, error)

	// Subdialog assignment and the root's registry of resumable subdialogs.
	UpdateSubdialogAssignment(id dialog.ID, asg *dialog.Assignment) error
	RegisterSubdialog(root dialog.ID, rec dialog.RegisteredSubdialog) error
	ListRegisteredSubdialogs(root dialog.ID) ([]dialog.RegisteredSubdialog, error)

	// Workspace problems.
	UpsertProblem(p Problem) error
	ListProblems() ([]Problem, error)

	Close() error
}
