package request

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// ConvertOpenAIMessages rewrites an OpenAI chat messages array into the
// upstream contents history. System-role messages are pulled out and
// concatenated into systemText instead of becoming a content entry,
// since the upstream shape (like Gemini's) carries system text as its
// own field rather than as a turn in the history.
func ConvertOpenAIMessages(messages []gjson.Result) (contents []Content, systemText string) {
	for _, m := range messages {
		role := m.Get("role").String()

		switch role {
		case "system", "developer":
			if systemText != "" {
				systemText += "\n\n"
			}
			systemText += m.Get("content").String()
			continue
		case "tool":
			contents = append(contents, Content{
				"role": "user",
				"parts": []any{Part{
					"functionResponse": map[string]any{
						"id":       m.Get("tool_call_id").String(),
						"name":     m.Get("name").String(),
						"response": map[string]any{"result": m.Get("content").String()},
					},
				}},
			})
			continue
		}

		geminiRole := "user"
		if role == "assistant" {
			geminiRole = "model"
		}

		var parts []any
		if calls := m.Get("tool_calls"); calls.Exists() {
			for _, tc := range calls.Array() {
				parts = append(parts, Part{"functionCall": map[string]any{
					"id":   tc.Get("id").String(),
					"name": tc.Get("function.name").String(),
					"args": decodeArguments(tc.Get("function.arguments").String()),
				}})
			}
		} else if content := m.Get("content"); content.IsArray() {
			for _, block := range content.Array() {
				if text := block.Get("text"); text.Exists() {
					parts = append(parts, Part{"text": text.String()})
				}
			}
		} else if content.Exists() {
			parts = append(parts, Part{"text": content.String()})
		}

		if len(parts) == 0 {
			continue
		}
		contents = append(contents, Content{"role": geminiRole, "parts": parts})
	}
	return contents, systemText
}

// ConvertClaudeMessages rewrites a Claude Messages array (content blocks of
// type text/thinking/tool_use/tool_result) into the upstream contents
// history. Claude's system field is caller-supplied separately; it never
// appears inside messages.
func ConvertClaudeMessages(messages []gjson.Result) []Content {
	var contents []Content
	for _, m := range messages {
		geminiRole := "user"
		if m.Get("role").String() == "assistant" {
			geminiRole = "model"
		}

		var parts []any
		content := m.Get("content")
		if content.Type == gjson.String {
			parts = append(parts, Part{"text": content.String()})
		} else {
			for _, block := range content.Array() {
				parts = append(parts, claudeBlockToPart(block)...)
			}
		}

		if len(parts) == 0 {
			continue
		}
		contents = append(contents, Content{"role": geminiRole, "parts": parts})
	}
	return contents
}

func claudeBlockToPart(block gjson.Result) []any {
	switch block.Get("type").String() {
	case "text":
		return []any{Part{"text": block.Get("text").String()}}

	case "thinking":
		part := Part{"thought": true, "text": block.Get("thinking").String()}
		if sig := block.Get("signature").String(); sig != "" {
			part["thoughtSignature"] = sig
		}
		return []any{part}

	case "tool_use":
		var args any
		if input := block.Get("input"); input.Exists() {
			args = input.Value()
		}
		return []any{Part{"functionCall": map[string]any{
			"id":   block.Get("id").String(),
			"name": block.Get("name").String(),
			"args": args,
		}}}

	case "tool_result":
		return []any{Part{"functionResponse": map[string]any{
			"id":       block.Get("tool_use_id").String(),
			"response": map[string]any{"result": claudeToolResultText(block.Get("content"))},
		}}}

	default:
		return nil
	}
}

func claudeToolResultText(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.String()
	}
	var text string
	for _, block := range content.Array() {
		text += block.Get("text").String()
	}
	return text
}

// ConvertGeminiContents passes a native Gemini contents array through with
// no shape change: it is already expressed in the upstream antigravity
// shape.
func ConvertGeminiContents(contents gjson.Result) []Content {
	var out []Content
	for _, c := range contents.Array() {
		if v, ok := c.Value().(map[string]any); ok {
			out = append(out, Content(v))
		}
	}
	return out
}

// ObjectArray converts a gjson array of objects into []map[string]any, the
// shape ConvertOpenAITools/ConvertClaudeTools expect.
func ObjectArray(arr gjson.Result) []map[string]any {
	var out []map[string]any
	for _, v := range arr.Array() {
		if m, ok := v.Value().(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func decodeArguments(raw string) any {
	if raw == "" {
		return map[string]any{}
	}
	var args any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{}
	}
	return args
}
