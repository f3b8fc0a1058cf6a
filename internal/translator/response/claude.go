package response

import "github.com/antigravity-gateway/gateway/internal/upstream"

// cursor names the Claude content-block state.
type cursor int

const (
	cursorNone cursor = iota
	cursorThinking
	cursorText
)

// Event is one named Claude SSE event: "event: Name\ndata: <json>\n\n".
type Event struct {
	Name string
	Data map[string]any
}

// ClaudeStream drives the explicit block-cursor state machine described
// for Claude streaming: content_block_start/delta/stop framing around
// thinking, text, and tool_use blocks, bracketed by message_start and
// message_stop.
type ClaudeStream struct {
	passSignature bool
	started       bool
	cursor        cursor
	index         int
	toolUseCount  int
}

// NewClaudeStream builds a fresh state machine for one streaming response.
func NewClaudeStream(passSignature bool) *ClaudeStream {
	return &ClaudeStream{passSignature: passSignature}
}

// Events renders zero or more SSE events for one upstream delta.
func (s *ClaudeStream) Events(d upstream.Delta) []Event {
	var events []Event
	if !s.started {
		events = append(events, Event{Name: "message_start", Data: map[string]any{
			"type": "message_start",
			"message": map[string]any{
				"role":    "assistant",
				"content": []any{},
			},
		}})
		s.started = true
	}

	switch d.Kind {
	case upstream.DeltaReasoning:
		events = append(events, s.onReasoning(d)...)
	case upstream.DeltaContent:
		events = append(events, s.onContent(d)...)
	case upstream.DeltaToolCalls:
		events = append(events, s.onToolCalls(d)...)
	case upstream.DeltaUsage:
		events = append(events, s.onUsage(d)...)
	}

	return events
}

func (s *ClaudeStream) onReasoning(d upstream.Delta) []Event {
	var events []Event
	if s.cursor != cursorThinking {
		start := map[string]any{"type": "thinking", "thinking": ""}
		if s.passSignature && d.ThoughtSignature != "" {
			start["signature"] = d.ThoughtSignature
		}
		events = append(events, Event{Name: "content_block_start", Data: map[string]any{
			"type":  "content_block_start",
			"index": s.index,
			"content_block": start,
		}})
		s.cursor = cursorThinking
	}

	delta := map[string]any{"type": "thinking_delta", "thinking": d.ReasoningContent}
	if s.passSignature && d.ThoughtSignature != "" {
		delta["signature"] = d.ThoughtSignature
	}
	events = append(events, Event{Name: "content_block_delta", Data: map[string]any{
		"type": "content_block_delta", "index": s.index, "delta": delta,
	}})
	return events
}

func (s *ClaudeStream) onContent(d upstream.Delta) []Event {
	var events []Event
	events = append(events, s.closeIfOpen()...)

	if s.cursor != cursorText {
		events = append(events, Event{Name: "content_block_start", Data: map[string]any{
			"type":  "content_block_start",
			"index": s.index,
			"content_block": map[string]any{"type": "text", "text": ""},
		}})
		s.cursor = cursorText
	}

	events = append(events, Event{Name: "content_block_delta", Data: map[string]any{
		"type": "content_block_delta", "index": s.index,
		"delta": map[string]any{"type": "text_delta", "text": d.Content},
	}})
	return events
}

func (s *ClaudeStream) onToolCalls(d upstream.Delta) []Event {
	var events []Event
	events = append(events, s.closeIfOpen()...)

	for _, tc := range d.ToolCalls {
		events = append(events, Event{Name: "content_block_start", Data: map[string]any{
			"type":  "content_block_start",
			"index": s.index,
			"content_block": map[string]any{"type": "tool_use", "id": tc.ID, "name": tc.Name},
		}})
		events = append(events, Event{Name: "content_block_delta", Data: map[string]any{
			"type": "content_block_delta", "index": s.index,
			"delta": map[string]any{"type": "input_json_delta", "partial_json": tc.Arguments},
		}})
		events = append(events, Event{Name: "content_block_stop", Data: map[string]any{
			"type": "content_block_stop", "index": s.index,
		}})
		s.index++
		s.toolUseCount++
	}
	s.cursor = cursorNone
	return events
}

// closeIfOpen emits content_block_stop and advances the index if a block
// is currently open, without changing cursor (caller sets the new one).
func (s *ClaudeStream) closeIfOpen() []Event {
	if s.cursor == cursorNone {
		return nil
	}
	ev := []Event{{Name: "content_block_stop", Data: map[string]any{
		"type": "content_block_stop", "index": s.index,
	}}}
	s.index++
	s.cursor = cursorNone
	return ev
}

func (s *ClaudeStream) onUsage(d upstream.Delta) []Event {
	events := s.closeIfOpen()

	stopReason := "end_turn"
	if s.toolUseCount > 0 {
		stopReason = "tool_use"
	}
	events = append(events, Event{Name: "message_delta", Data: map[string]any{
		"type":  "message_delta",
		"delta": map[string]any{"stop_reason": stopReason},
		"usage": map[string]any{"output_tokens": d.Usage.CompletionTokens},
	}})
	events = append(events, Event{Name: "message_stop", Data: map[string]any{"type": "message_stop"}})
	return events
}
