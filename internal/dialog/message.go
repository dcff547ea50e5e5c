package dialog

// MessageType discriminates the closed set of chat message variants.
// Filters that used to duck-type on shape are exhaustive switches here.
type MessageType string

const (
	MsgPrompting      MessageType = "prompting"        // user prompt (human or internally prepared)
	MsgEnvironment    MessageType = "environment"      // synthetic context injection, user role
	MsgTransientGuide MessageType = "transient_guide"  // assistant guidance not retained long-term
	MsgSaying         MessageType = "saying"           // assistant visible output
	MsgThinking       MessageType = "thinking"         // assistant reasoning output
	MsgFuncCall       MessageType = "func_call"        // assistant tool invocation
	MsgFuncResult     MessageType = "func_result"      // tool result
	MsgTellaskResult  MessageType = "tellask_result"   // teammate response
	MsgUIOnlyMarkdown MessageType = "ui_only_markdown" // rendered to the UI, never sent to the LLM
)

// Grammar of a prompting message.
const (
	GrammarMarkdown = "markdown"
	GrammarTellask  = "tellask"
)

// Tellask result status values.
const (
	TellaskCompleted = "completed"
	TellaskFailed    = "failed"
)

// ChatMessage is one entry of a dialog's history. Only the fields relevant
// to a given Type are populated; Role is derived from Type.
type ChatMessage struct {
	Type    MessageType `json:"type" yaml:"type"`
	Content string      `json:"content,omitempty" yaml:"content,omitempty"`
	GenSeq  int         `json:"genseq,omitempty" yaml:"genseq,omitempty"`

	// prompting
	MsgID   string `json:"msg_id,omitempty" yaml:"msg_id,omitempty"`
	Grammar string `json:"grammar,omitempty" yaml:"grammar,omitempty"`

	// func_call / func_result: CallID and GenSeq are shared by the pair.
	CallID    string `json:"call_id,omitempty" yaml:"call_id,omitempty"`
	Name      string `json:"name,omitempty" yaml:"name,omitempty"`
	Arguments string `json:"arguments,omitempty" yaml:"arguments,omitempty"`

	// tellask_result
	ResponderID string `json:"responder_id,omitempty" yaml:"responder_id,omitempty"`
	TellaskHead string `json:"tellask_head,omitempty" yaml:"tellask_head,omitempty"`
	Status      string `json:"status,omitempty" yaml:"status,omitempty"`
}

// Role returns the LLM wire role for this message variant.
func (m ChatMessage) Role() string {
	switch m.Type {
	case MsgPrompting, MsgEnvironment:
		return "user"
	case MsgTransientGuide, MsgSaying, MsgThinking, MsgFuncCall:
		return "assistant"
	case MsgFuncResult, MsgTellaskResult:
		return "tool"
	case MsgUIOnlyMarkdown:
		return "user"
	}
	return "user"
}

// VisibleToLLM reports whether the message is part of the model-visible
// context. UI-only markdown is filtered at context-assembly time.
func (m ChatMessage) VisibleToLLM() bool {
	return m.Type != MsgUIOnlyMarkdown
}

// NewPrompting builds a prompting message.
func NewPrompting(msgID, content, grammar string, genseq int) ChatMessage {
	return ChatMessage{Type: MsgPrompting, MsgID: msgID, Content: content, Grammar: grammar, GenSeq: genseq}
}

// NewEnvironment builds a synthetic user-role context message.
func NewEnvironment(content string) ChatMessage {
	return ChatMessage{Type: MsgEnvironment, Content: content}
}

// NewFuncCall builds the assistant half of a tool invocation pair.
func NewFuncCall(callID, name, arguments string, genseq int) ChatMessage {
	return ChatMessage{Type: MsgFuncCall, CallID: callID, Name: name, Arguments: arguments, GenSeq: genseq}
}

// NewFuncResult builds the tool half of a tool invocation pair. It must
// share CallID and GenSeq with its initiating call.
func NewFuncResult(callID, name, content string, genseq int) ChatMessage {
	return ChatMessage{Type: MsgFuncResult, CallID: callID, Name: name, Content: content, GenSeq: genseq}
}

// NewTellaskResult builds a teammate response message.
func NewTellaskResult(responderID, tellaskHead, status, content string) ChatMessage {
	return ChatMessage{Type: MsgTellaskResult, ResponderID: responderID, TellaskHead: tellaskHead, Status: status, Content: content}
}
