package dialog

// RunStateKind is the persisted liveness state of a dialog.
type RunStateKind string

const (
	RunProceeding      RunStateKind = "proceeding"
	RunIdleWaitingUser RunStateKind = "idle_waiting_user"
	RunInterrupted     RunStateKind = "interrupted"
	RunDead            RunStateKind = "dead"
)

// StopReason classifies why a drive was interrupted.
type StopReason string

const (
	StopUser      StopReason = "user_stop"
	StopEmergency StopReason = "emergency_stop"
	StopSystem    StopReason = "system_stop"
)

// RunState is the persisted latest run state of a dialog. Dead is terminal:
// once persisted, no later write may overwrite it.
type RunState struct {
	Kind   RunStateKind `json:"kind" yaml:"kind"`
	Reason StopReason   `json:"reason,omitempty" yaml:"reason,omitempty"`
	Detail string       `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// IsDead reports whether the state is the terminal dead state.
func (s RunState) IsDead() bool { return s.Kind == RunDead }
