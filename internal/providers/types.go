// Package providers defines the LLM generator contracts the driver
// consumes, the request runner with failure classification and backoff,
// and an OpenAI-compatible generator implementation.
package providers

import (
	"context"

	"github.com/dominds/minddrive/internal/dialog"
)

// Provider API types understood by the runtime.
const (
	APITypeOpenAI = "openai"
)

// WireMessage is one message in provider wire form, produced by the
// context assembler.
type WireMessage struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	ToolCallID string `json:"tool_call_id,omitempty"` // role=tool
	// role=assistant function call
	CallID    string `json:"-"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"-"`
}

// ToolDefinition describes a function tool projected for the provider API.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

// Usage tracks token consumption of one generation.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// GenRequest is the input of one generation turn.
type GenRequest struct {
	Model        string
	SystemPrompt string
	Messages     []WireMessage
	Tools        []ToolDefinition
	Params       map[string]any // model_params / fbr_model_params passthrough
}

// GenResult is the outcome of one generation turn. Messages are already in
// dialog form (saying/thinking/func_call) in production order.
type GenResult struct {
	Messages []dialog.ChatMessage
	Usage    Usage
	Model    string // the model the provider actually generated with
}

// Receiver is the streaming surface the driver hands to a generator. The
// generator dispatches callbacks sequentially; at SayingFinish the driver's
// tellask parser has seen the full saying text.
type Receiver interface {
	ThinkingStart(genseq int)
	ThinkingChunk(text string)
	ThinkingFinish()
	SayingStart(genseq int)
	SayingChunk(text string)
	SayingFinish()
	FuncCall(callID, name, arguments string)
	StreamError(detail string)
}

// Generator produces assistant turns for one provider API type.
type Generator interface {
	Name() string
	APIType() string
	// GenMessages runs one non-streaming generation.
	GenMessages(ctx context.Context, req GenRequest) (*GenResult, error)
	// GenToReceiver runs one streaming generation, dispatching into rcv.
	// The returned result repeats everything the receiver saw.
	GenToReceiver(ctx context.Context, req GenRequest, rcv Receiver, genseq int) (*GenResult, error)
}
