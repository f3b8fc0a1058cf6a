// Package response converts upstream deltas into the wire events each of
// the three inbound surfaces expects, for both streaming and
// non-streaming modes, gating thought-signature passthrough behind a
// single configuration flag.
package response

import "github.com/antigravity-gateway/gateway/internal/upstream"

// OpenAIStream is a stateless projector: every upstream delta becomes
// exactly one chat.completion.chunk. It carries only the fields needed
// to stamp every chunk consistently.
type OpenAIStream struct {
	ID                string
	Model             string
	toolCallIndex     map[string]int
	nextToolCallIndex int
}

// NewOpenAIStream builds a projector for one streaming response.
func NewOpenAIStream(id, model string) *OpenAIStream {
	return &OpenAIStream{
		ID:            id,
		Model:         model,
		toolCallIndex: make(map[string]int),
	}
}

// Chunk renders one delta into a chat.completion.chunk payload. ok is
// false for delta kinds this call doesn't project (there are none today,
// but keeps the contract explicit for future delta kinds).
func (s *OpenAIStream) Chunk(d upstream.Delta) (map[string]any, bool) {
	delta := map[string]any{}

	switch d.Kind {
	case upstream.DeltaContent:
		delta["content"] = d.Content
	case upstream.DeltaReasoning:
		delta["reasoning_content"] = d.ReasoningContent
	case upstream.DeltaToolCalls:
		delta["tool_calls"] = s.renderToolCalls(d.ToolCalls)
	case upstream.DeltaUsage:
		return s.terminal(d.Usage), true
	default:
		return nil, false
	}

	return s.base(map[string]any{
		"index": 0,
		"delta": delta,
	}), true
}

func (s *OpenAIStream) renderToolCalls(calls []upstream.ToolCall) []any {
	out := make([]any, 0, len(calls))
	for _, tc := range calls {
		idx, ok := s.toolCallIndex[tc.ID]
		if !ok {
			idx = s.nextToolCallIndex
			s.toolCallIndex[tc.ID] = idx
			s.nextToolCallIndex++
		}
		out = append(out, map[string]any{
			"index": idx,
			"id":    tc.ID,
			"type":  "function",
			"function": map[string]any{
				"name":      tc.Name,
				"arguments": tc.Arguments,
			},
		})
	}
	return out
}

func (s *OpenAIStream) terminal(usage upstream.Usage) map[string]any {
	finish := "stop"
	if s.nextToolCallIndex > 0 {
		finish = "tool_calls"
	}
	chunk := s.base(map[string]any{
		"index":         0,
		"delta":         map[string]any{},
		"finish_reason": finish,
	})
	chunk["usage"] = map[string]any{
		"prompt_tokens":     usage.PromptTokens,
		"completion_tokens": usage.CompletionTokens,
		"total_tokens":      usage.TotalTokens,
	}
	return chunk
}

func (s *OpenAIStream) base(choice map[string]any) map[string]any {
	return map[string]any{
		"id":      s.ID,
		"object":  "chat.completion.chunk",
		"model":   s.Model,
		"choices": []any{choice},
	}
}

// DoneLine is the OpenAI stream terminator literal.
const DoneLine = "data: [DONE]\n\n"
