package dialog

import "time"

// CallType is the subdialog-call taxonomy derived from headline syntax.
type CallType string

const (
	// CallTypeA targets the subdialog's direct supdialog: the sub suspends
	// and the supdialog is driven synchronously for one course.
	CallTypeA CallType = "A"
	// CallTypeB carries a !tellaskSession directive: the subdialog is
	// registered in the root's registry and resumable.
	CallTypeB CallType = "B"
	// CallTypeC is a transient subdialog, discarded after its reply.
	CallTypeC CallType = "C"
)

// Assignment is what a supdialog handed to a subdialog when creating or
// resuming it. OriginMemberID is the member the reply is attributed to.
type Assignment struct {
	TellaskHead       string   `json:"tellask_head" yaml:"tellask_head"`
	TellaskBody       string   `json:"tellask_body,omitempty" yaml:"tellask_body,omitempty"`
	OriginMemberID    string   `json:"origin_member_id" yaml:"origin_member_id"`
	CallerDialogID    ID       `json:"caller_dialog_id" yaml:"caller_dialog_id"`
	CallID            string   `json:"call_id" yaml:"call_id"`
	CollectiveTargets []string `json:"collective_targets,omitempty" yaml:"collective_targets,omitempty"`
	TellaskSession    string   `json:"tellask_session,omitempty" yaml:"tellask_session,omitempty"`
}

// PendingSubdialog records, on the caller, a subdialog whose response has
// not yet been queued. Mutated only under the caller's suspension-state lock.
type PendingSubdialog struct {
	SubdialogID    ID        `json:"subdialog_id" yaml:"subdialog_id"`
	CreatedAt      time.Time `json:"created_at" yaml:"created_at"`
	TellaskHead    string    `json:"tellask_head" yaml:"tellask_head"`
	TargetAgentID  string    `json:"target_agent_id" yaml:"target_agent_id"`
	CallType       CallType  `json:"call_type" yaml:"call_type"`
	TellaskSession string    `json:"tellask_session,omitempty" yaml:"tellask_session,omitempty"`
	CallID         string    `json:"call_id,omitempty" yaml:"call_id,omitempty"`
}

// SubdialogResponse is queued on the caller for consumption on its next
// drive. Delivery is FIFO in persistence-append order.
type SubdialogResponse struct {
	ResponseID     string    `json:"response_id" yaml:"response_id"`
	SubdialogID    ID        `json:"subdialog_id" yaml:"subdialog_id"`
	Response       string    `json:"response" yaml:"response"`
	CompletedAt    time.Time `json:"completed_at" yaml:"completed_at"`
	CallType       CallType  `json:"call_type" yaml:"call_type"`
	TellaskHead    string    `json:"tellask_head" yaml:"tellask_head"`
	ResponderID    string    `json:"responder_id" yaml:"responder_id"`
	OriginMemberID string    `json:"origin_member_id,omitempty" yaml:"origin_member_id,omitempty"`
	CallID         string    `json:"call_id,omitempty" yaml:"call_id,omitempty"`
}

// CallSiteRef points back to where a question was asked.
type CallSiteRef struct {
	Course       int `json:"course" yaml:"course"`
	MessageIndex int `json:"message_index" yaml:"message_index"`
}

// HumanQuestion (Q4H) suspends a dialog until the user answers.
type HumanQuestion struct {
	ID          string      `json:"id" yaml:"id"`
	TellaskHead string      `json:"tellask_head" yaml:"tellask_head"`
	BodyContent string      `json:"body_content" yaml:"body_content"`
	AskedAt     time.Time   `json:"asked_at" yaml:"asked_at"`
	CallID      string      `json:"call_id,omitempty" yaml:"call_id,omitempty"`
	CallSite    CallSiteRef `json:"call_site" yaml:"call_site"`
}

// RegisteredSubdialog is an entry of the root's registry of resumable
// (Type B) subdialogs.
type RegisteredSubdialog struct {
	TargetAgentID  string `json:"target_agent_id" yaml:"target_agent_id"`
	TellaskSession string `json:"tellask_session" yaml:"tellask_session"`
	SubdialogID    ID     `json:"subdialog_id" yaml:"subdialog_id"`
}

// HealthLevel classifies context pressure.
type HealthLevel string

const (
	HealthHealthy  HealthLevel = "healthy"
	HealthCaution  HealthLevel = "caution"
	HealthCritical HealthLevel = "critical"
)

// ContextHealth is the last computed context-health snapshot. When
// Available is false only Reason is meaningful.
type ContextHealth struct {
	Available    bool        `json:"available" yaml:"available"`
	Reason       string      `json:"reason,omitempty" yaml:"reason,omitempty"`
	PromptTokens int         `json:"prompt_tokens,omitempty" yaml:"prompt_tokens,omitempty"`
	Level        HealthLevel `json:"level,omitempty" yaml:"level,omitempty"`
	HardLimit    int         `json:"hard_limit,omitempty" yaml:"hard_limit,omitempty"`
	HardUtil     float64     `json:"hard_util,omitempty" yaml:"hard_util,omitempty"`
	OptimalLimit int         `json:"optimal_limit,omitempty" yaml:"optimal_limit,omitempty"`
	OptimalUtil  float64     `json:"optimal_util,omitempty" yaml:"optimal_util,omitempty"`
}
