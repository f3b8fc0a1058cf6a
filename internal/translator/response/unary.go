package response

import (
	"encoding/json"

	"github.com/antigravity-gateway/gateway/internal/upstream"
)

// OpenAIUnary projects a fully-buffered upstream result into an OpenAI
// chat.completion response.
func OpenAIUnary(id, model string, r *upstream.UnaryResult, passSignature bool) map[string]any {
	msg := map[string]any{"role": "assistant"}
	if r.Content != "" {
		msg["content"] = r.Content
	}
	if r.ReasoningContent != "" {
		msg["reasoning_content"] = r.ReasoningContent
	}
	finish := "stop"
	if len(r.ToolCalls) > 0 {
		finish = "tool_calls"
		calls := make([]any, 0, len(r.ToolCalls))
		for _, tc := range r.ToolCalls {
			calls = append(calls, map[string]any{
				"id":   tc.ID,
				"type": "function",
				"function": map[string]any{
					"name":      tc.Name,
					"arguments": tc.Arguments,
				},
			})
		}
		msg["tool_calls"] = calls
	}

	return map[string]any{
		"id":     id,
		"object": "chat.completion",
		"model":  model,
		"choices": []any{map[string]any{
			"index":         0,
			"message":       msg,
			"finish_reason": finish,
		}},
		"usage": map[string]any{
			"prompt_tokens":     r.Usage.PromptTokens,
			"completion_tokens": r.Usage.CompletionTokens,
			"total_tokens":      r.Usage.TotalTokens,
		},
	}
}

// GeminiUnary projects a buffered upstream result into a Gemini
// generateContent response. finishReason is always STOP, matching the
// streaming projector (pinned behavior, not a bug: see Open Questions).
func GeminiUnary(r *upstream.UnaryResult, passSignature bool) map[string]any {
	var parts []any
	if r.ReasoningContent != "" {
		part := map[string]any{"text": r.ReasoningContent, "thought": true}
		if passSignature && r.ReasoningSignature != "" {
			part["thoughtSignature"] = r.ReasoningSignature
		}
		parts = append(parts, part)
	}
	if r.Content != "" {
		parts = append(parts, map[string]any{"text": r.Content})
	}
	for _, tc := range r.ToolCalls {
		var args any
		if tc.Arguments != "" {
			_ = json.Unmarshal([]byte(tc.Arguments), &args)
		}
		part := map[string]any{"functionCall": map[string]any{"name": tc.Name, "args": args}}
		if passSignature && tc.ThoughtSignature != "" {
			part["thoughtSignature"] = tc.ThoughtSignature
		}
		parts = append(parts, part)
	}

	return map[string]any{
		"candidates": []any{map[string]any{
			"content":      map[string]any{"role": "model", "parts": parts},
			"finishReason": "STOP",
		}},
		"usageMetadata": map[string]any{
			"promptTokenCount":     r.Usage.PromptTokens,
			"candidatesTokenCount": r.Usage.CompletionTokens,
			"totalTokenCount":      r.Usage.TotalTokens,
		},
	}
}

// ClaudeUnary projects a buffered upstream result into a Claude Messages
// response, assembling a single content[] array ordered thinking → text
// → tool_use, mirroring the streaming sequence.
func ClaudeUnary(id, model string, r *upstream.UnaryResult, passSignature bool) map[string]any {
	var content []any
	if r.ReasoningContent != "" {
		block := map[string]any{"type": "thinking", "thinking": r.ReasoningContent}
		if passSignature && r.ReasoningSignature != "" {
			block["signature"] = r.ReasoningSignature
		}
		content = append(content, block)
	}
	if r.Content != "" {
		content = append(content, map[string]any{"type": "text", "text": r.Content})
	}
	stopReason := "end_turn"
	for _, tc := range r.ToolCalls {
		var input any
		if tc.Arguments != "" {
			_ = json.Unmarshal([]byte(tc.Arguments), &input)
		}
		content = append(content, map[string]any{
			"type": "tool_use", "id": tc.ID, "name": tc.Name, "input": input,
		})
		stopReason = "tool_use"
	}

	return map[string]any{
		"id":          id,
		"type":        "message",
		"role":        "assistant",
		"model":       model,
		"content":     content,
		"stop_reason": stopReason,
		"usage": map[string]any{
			"input_tokens":  r.Usage.PromptTokens,
			"output_tokens": r.Usage.CompletionTokens,
		},
	}
}
