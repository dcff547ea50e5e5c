package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dominds/minddrive/internal/dialog"
)

// OpenAIGenerator speaks the OpenAI chat-completions API, which most
// gateways and open-weight servers also expose.
type OpenAIGenerator struct {
	name    string
	apiKey  string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// OpenAIOption configures an OpenAIGenerator.
type OpenAIOption func(*OpenAIGenerator)

// WithBaseURL points the generator at a compatible endpoint.
func WithBaseURL(u string) OpenAIOption {
	return func(g *OpenAIGenerator) {
		if u != "" {
			g.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithRequestsPerMinute throttles outgoing requests. 0 disables the limit.
func WithRequestsPerMinute(rpm int) OpenAIOption {
	return func(g *OpenAIGenerator) {
		if rpm > 0 {
			g.limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1)
		}
	}
}

// NewOpenAIGenerator creates a generator named after its provider entry in
// llm.yaml.
func NewOpenAIGenerator(name, apiKey string, opts ...OpenAIOption) *OpenAIGenerator {
	g := &OpenAIGenerator{
		name:    name,
		apiKey:  apiKey,
		baseURL: "https://api.openai.com/v1",
		client:  &http.Client{Timeout: 300 * time.Second},
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *OpenAIGenerator) Name() string    { return g.name }
func (g *OpenAIGenerator) APIType() string { return APITypeOpenAI }

type oaTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type oaToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type oaMessage struct {
	Role       string       `json:"role"`
	Content    string       `json:"content"`
	ToolCalls  []oaToolCall `json:"tool_calls,omitempty"`
	ToolCallID string       `json:"tool_call_id,omitempty"`
}

func (g *OpenAIGenerator) buildBody(req GenRequest, stream bool) map[string]any {
	msgs := make([]oaMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, oaMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		om := oaMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		if m.Role == "assistant" && m.CallID != "" {
			tc := oaToolCall{ID: m.CallID, Type: "function"}
			tc.Function.Name = m.Name
			tc.Function.Arguments = m.Arguments
			om.ToolCalls = []oaToolCall{tc}
			om.Content = ""
		}
		msgs = append(msgs, om)
	}

	body := map[string]any{
		"model":    req.Model,
		"messages": msgs,
	}
	if stream {
		body["stream"] = true
		body["stream_options"] = map[string]any{"include_usage": true}
	}
	if len(req.Tools) > 0 {
		tools := make([]oaTool, 0, len(req.Tools))
		for _, t := range req.Tools {
			var ot oaTool
			ot.Type = "function"
			ot.Function.Name = t.Name
			ot.Function.Description = t.Description
			ot.Function.Parameters = t.Parameters
			tools = append(tools, ot)
		}
		body["tools"] = tools
	}
	for k, v := range req.Params {
		body[k] = v
	}
	return body
}

func (g *OpenAIGenerator) doRequest(ctx context.Context, body map[string]any) (io.ReadCloser, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &HTTPError{Provider: g.name, Status: resp.StatusCode, Body: string(respBody)}
	}
	return resp.Body, nil
}

type oaResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content          string       `json:"content"`
			ReasoningContent string       `json:"reasoning_content"`
			ToolCalls        []oaToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// GenMessages runs one non-streaming generation.
func (g *OpenAIGenerator) GenMessages(ctx context.Context, req GenRequest) (*GenResult, error) {
	body := g.buildBody(req, false)
	respBody, err := g.doRequest(ctx, body)
	if err != nil {
		return nil, err
	}
	defer respBody.Close()

	var resp oaResponse
	if err := json.NewDecoder(respBody).Decode(&resp); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", g.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s: empty choices", g.name)
	}

	choice := resp.Choices[0]
	result := &GenResult{
		Model: resp.Model,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if choice.Message.ReasoningContent != "" {
		result.Messages = append(result.Messages, dialog.ChatMessage{Type: dialog.MsgThinking, Content: choice.Message.ReasoningContent})
	}
	if choice.Message.Content != "" {
		result.Messages = append(result.Messages, dialog.ChatMessage{Type: dialog.MsgSaying, Content: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		result.Messages = append(result.Messages, dialog.ChatMessage{
			Type:      dialog.MsgFuncCall,
			CallID:    tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return result, nil
}
