package providers

import (
	"bufio"
	"context"
	"encoding/json"
	"strings"

	"github.com/dominds/minddrive/internal/dialog"
)

type oaStreamChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
			ToolCalls        []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type streamToolCall struct {
	id   string
	name string
	args strings.Builder
}

// GenToReceiver runs one streaming generation and dispatches SSE deltas
// into rcv sequentially. Function calls are dispatched after the saying
// finishes, so the tellask parser has seen the whole saying first.
func (g *OpenAIGenerator) GenToReceiver(ctx context.Context, req GenRequest, rcv Receiver, genseq int) (*GenResult, error) {
	body := g.buildBody(req, true)
	respBody, err := g.doRequest(ctx, body)
	if err != nil {
		return nil, err
	}
	defer respBody.Close()

	result := &GenResult{}
	var saying, thinking strings.Builder
	var calls []*streamToolCall
	sayingOpen, thinkingOpen := false, false

	closeThinking := func() {
		if thinkingOpen {
			rcv.ThinkingFinish()
			thinkingOpen = false
		}
	}
	closeSaying := func() {
		if sayingOpen {
			rcv.SayingFinish()
			sayingOpen = false
		}
	}

	scanner := bufio.NewScanner(respBody)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}
		var chunk oaStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Model != "" {
			result.Model = chunk.Model
		}
		if chunk.Usage != nil {
			result.Usage = Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta

		if delta.ReasoningContent != "" {
			if !thinkingOpen {
				rcv.ThinkingStart(genseq)
				thinkingOpen = true
			}
			thinking.WriteString(delta.ReasoningContent)
			rcv.ThinkingChunk(delta.ReasoningContent)
		}
		if delta.Content != "" {
			closeThinking()
			if !sayingOpen {
				rcv.SayingStart(genseq)
				sayingOpen = true
			}
			saying.WriteString(delta.Content)
			rcv.SayingChunk(delta.Content)
		}
		for _, tc := range delta.ToolCalls {
			for len(calls) <= tc.Index {
				calls = append(calls, &streamToolCall{})
			}
			cur := calls[tc.Index]
			if tc.ID != "" {
				cur.id = tc.ID
			}
			if tc.Function.Name != "" {
				cur.name = tc.Function.Name
			}
			cur.args.WriteString(tc.Function.Arguments)
		}
	}
	if err := scanner.Err(); err != nil {
		rcv.StreamError(err.Error())
		return nil, err
	}

	closeThinking()
	closeSaying()

	if thinking.Len() > 0 {
		result.Messages = append(result.Messages, dialog.ChatMessage{Type: dialog.MsgThinking, Content: thinking.String(), GenSeq: genseq})
	}
	if saying.Len() > 0 {
		result.Messages = append(result.Messages, dialog.ChatMessage{Type: dialog.MsgSaying, Content: saying.String(), GenSeq: genseq})
	}
	for _, tc := range calls {
		if tc.id == "" && tc.name == "" {
			continue
		}
		rcv.FuncCall(tc.id, tc.name, tc.args.String())
		result.Messages = append(result.Messages, dialog.ChatMessage{
			Type:      dialog.MsgFuncCall,
			CallID:    tc.id,
			Name:      tc.name,
			Arguments: tc.args.String(),
			GenSeq:    genseq,
		})
	}
	return result, nil
}
