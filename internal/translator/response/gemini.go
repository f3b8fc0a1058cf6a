package response

import (
	"encoding/json"

	"github.com/antigravity-gateway/gateway/internal/upstream"
)

// GeminiStream projects upstream deltas into candidates[0].content.parts
// fragments. passSignature gates whether thoughtSignature fields survive
// into the outbound payload.
type GeminiStream struct {
	passSignature bool
}

// NewGeminiStream builds a projector for one streaming response.
func NewGeminiStream(passSignature bool) *GeminiStream {
	return &GeminiStream{passSignature: passSignature}
}

// Chunk renders one delta into a streamGenerateContent chunk.
func (s *GeminiStream) Chunk(d upstream.Delta) (map[string]any, bool) {
	switch d.Kind {
	case upstream.DeltaReasoning:
		part := map[string]any{"text": d.ReasoningContent, "thought": true}
		if s.passSignature && d.ThoughtSignature != "" {
			part["thoughtSignature"] = d.ThoughtSignature
		}
		return s.candidate(part), true

	case upstream.DeltaContent:
		return s.candidate(map[string]any{"text": d.Content}), true

	case upstream.DeltaToolCalls:
		parts := make([]any, 0, len(d.ToolCalls))
		for _, tc := range d.ToolCalls {
			var args any
			if tc.Arguments != "" {
				_ = json.Unmarshal([]byte(tc.Arguments), &args)
			}
			part := map[string]any{
				"functionCall": map[string]any{"name": tc.Name, "args": args},
			}
			if s.passSignature && tc.ThoughtSignature != "" {
				part["thoughtSignature"] = tc.ThoughtSignature
			}
			parts = append(parts, part)
		}
		return map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{"role": "model", "parts": parts},
			}},
		}, true

	case upstream.DeltaUsage:
		return map[string]any{
			"candidates": []any{map[string]any{
				"finishReason": "STOP",
			}},
			"usageMetadata": map[string]any{
				"promptTokenCount":     d.Usage.PromptTokens,
				"candidatesTokenCount": d.Usage.CompletionTokens,
				"totalTokenCount":      d.Usage.TotalTokens,
			},
		}, true

	default:
		return nil, false
	}
}

func (s *GeminiStream) candidate(part map[string]any) map[string]any {
	return map[string]any{
		"candidates": []any{map[string]any{
			"content": map[string]any{"role": "model", "parts": []any{part}},
		}},
	}
}
