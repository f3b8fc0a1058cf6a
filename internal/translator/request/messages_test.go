package request

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tidwall/gjson"
)

func parseMessages(t *testing.T, raw string) []gjson.Result {
	t.Helper()
	arr := gjson.Parse(raw)
	if !arr.IsArray() {
		t.Fatalf("fixture is not a JSON array: %s", raw)
	}
	return arr.Array()
}

func TestConvertOpenAIMessagesExtractsSystemText(t *testing.T) {
	messages := parseMessages(t, `[
		{"role":"system","content":"be terse"},
		{"role":"user","content":"hi"}
	]`)

	contents, systemText := ConvertOpenAIMessages(messages)

	if systemText != "be terse" {
		t.Errorf("systemText = %q, want %q", systemText, "be terse")
	}

	want := []Content{
		{"role": "user", "parts": []any{Part{"text": "hi"}}},
	}
	if diff := cmp.Diff(want, contents); diff != "" {
		t.Errorf("contents mismatch (-want +got):\n%s", diff)
	}
}

func TestConvertOpenAIMessagesToolRoleBecomesFunctionResponse(t *testing.T) {
	messages := parseMessages(t, `[
		{"role":"tool","tool_call_id":"call_1","name":"lookup","content":"42"}
	]`)

	contents, _ := ConvertOpenAIMessages(messages)

	want := []Content{
		{"role": "user", "parts": []any{Part{
			"functionResponse": map[string]any{
				"id":       "call_1",
				"name":     "lookup",
				"response": map[string]any{"result": "42"},
			},
		}}},
	}
	if diff := cmp.Diff(want, contents); diff != "" {
		t.Errorf("contents mismatch (-want +got):\n%s", diff)
	}
}

func TestConvertOpenAIMessagesToolCallsBuildFunctionCallParts(t *testing.T) {
	messages := parseMessages(t, `[
		{"role":"assistant","tool_calls":[
			{"id":"call_9","function":{"name":"search","arguments":"{\"q\":\"go\"}"}}
		]}
	]`)

	contents, _ := ConvertOpenAIMessages(messages)

	want := []Content{
		{"role": "model", "parts": []any{Part{
			"functionCall": map[string]any{
				"id":   "call_9",
				"name": "search",
				"args": map[string]any{"q": "go"},
			},
		}}},
	}
	if diff := cmp.Diff(want, contents); diff != "" {
		t.Errorf("contents mismatch (-want +got):\n%s", diff)
	}
}

func TestConvertClaudeMessagesHandlesContentBlockTypes(t *testing.T) {
	messages := parseMessages(t, `[
		{"role":"assistant","content":[
			{"type":"thinking","thinking":"let me see","signature":"sig-1"},
			{"type":"tool_use","id":"tu_1","name":"lookup","input":{"k":"v"}}
		]},
		{"role":"user","content":[
			{"type":"tool_result","tool_use_id":"tu_1","content":"result text"}
		]}
	]`)

	contents := ConvertClaudeMessages(messages)

	want := []Content{
		{"role": "model", "parts": []any{
			Part{"thought": true, "text": "let me see", "thoughtSignature": "sig-1"},
			Part{"functionCall": map[string]any{"id": "tu_1", "name": "lookup", "args": map[string]any{"k": "v"}}},
		}},
		{"role": "user", "parts": []any{
			Part{"functionResponse": map[string]any{
				"id":       "tu_1",
				"response": map[string]any{"result": "result text"},
			}},
		}},
	}
	if diff := cmp.Diff(want, contents); diff != "" {
		t.Errorf("contents mismatch (-want +got):\n%s", diff)
	}
}

func TestConvertGeminiContentsPassesThrough(t *testing.T) {
	raw := gjson.Parse(`[{"role":"user","parts":[{"text":"hi"}]}]`)

	contents := ConvertGeminiContents(raw)

	if len(contents) != 1 {
		t.Fatalf("expected 1 content entry, got %d", len(contents))
	}
	if contents[0]["role"] != "user" {
		t.Errorf("role = %v, want user", contents[0]["role"])
	}
}

func TestObjectArrayFiltersNonObjects(t *testing.T) {
	raw := gjson.Parse(`[{"a":1},"skip-me",{"b":2}]`)

	out := ObjectArray(raw)

	if len(out) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(out))
	}
}
