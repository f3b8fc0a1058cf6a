// Package request builds the upstream antigravity request body from any
// of the three inbound surfaces. Contents are represented as plain
// map[string]any/[]any trees (Gemini's own shape is close enough to the
// upstream shape that this avoids a redundant struct layer) and mutated
// in place with the shared post-processing steps described below.
package request

import (
	"github.com/google/uuid"

	"github.com/antigravity-gateway/gateway/internal/params"
	"github.com/antigravity-gateway/gateway/internal/signature"
)

// Content is one upstream "contents[]" entry: {role, parts}.
type Content = map[string]any

// Part is one entry of a Content's "parts" array.
type Part = map[string]any

// Tool is one upstream tool declaration.
type Tool = map[string]any

// Envelope is the final wire body sent to the upstream streaming/unary
// endpoints.
type Envelope struct {
	Project   string         `json:"project"`
	RequestID string         `json:"requestId"`
	Request   map[string]any `json:"request"`
	Model     string         `json:"model"`
	UserAgent string         `json:"userAgent"`
}

// Build runs the full translation pipeline and returns the envelope
// ready to be JSON-marshaled for the upstream call.
//
// contents is the already-dialect-normalized message history (built by
// the caller from whichever of the three inbound bodies it parsed);
// systemText is any caller-supplied system instruction text; tools are
// the already-shape-converted upstream tool declarations.
func Build(opts BuildOptions) Envelope {
	contents := threadFunctionCallIDs(opts.Contents)

	if opts.ThinkingSupported {
		contents = stitchThoughtSignatures(contents, opts.Model, opts.Signatures)
	}

	reqBody := map[string]any{
		"contents": contents,
	}

	sysText := mergeSystemInstruction(opts.ProcessSystemInstruction, opts.CallerSystemText)
	if sysText != "" {
		reqBody["systemInstruction"] = map[string]any{
			"parts": []any{map[string]any{"text": sysText}},
		}
	}

	if len(opts.Tools) > 0 {
		reqBody["tools"] = opts.Tools
		reqBody["toolConfig"] = map[string]any{
			"functionCallingConfig": map[string]any{"mode": "VALIDATED"},
		}
	}

	reqBody["generationConfig"] = params.Project(opts.Params, opts.Model)
	reqBody["sessionId"] = opts.SessionID

	return Envelope{
		Project:   opts.ProjectID,
		RequestID: uuid.NewString(),
		Request:   reqBody,
		Model:     opts.Model,
		UserAgent: "antigravity",
	}
}

// BuildOptions collects everything Build needs to assemble the envelope.
type BuildOptions struct {
	Contents                  []Content
	Tools                     []Tool
	Model                     string
	ProjectID                 string
	SessionID                 string
	ThinkingSupported         bool
	Params                    params.Normalized
	ProcessSystemInstruction  string
	CallerSystemText          string
	Signatures                *signature.Cache
}

// mergeSystemInstruction concatenates the process-wide instruction in
// front of any caller-supplied text.
func mergeSystemInstruction(processWide, caller string) string {
	switch {
	case processWide == "":
		return caller
	case caller == "":
		return processWide
	default:
		return processWide + "\n\n" + caller
	}
}

// threadFunctionCallIDs walks the history and assigns a fresh ID to any
// functionCall part lacking one, then assigns the same IDs in order to
// functionResponse parts that arrive without one.
func threadFunctionCallIDs(contents []Content) []Content {
	var pendingIDs []string

	for _, c := range contents {
		role, _ := c["role"].(string)
		if role != "model" {
			continue
		}
		parts, _ := c["parts"].([]any)
		for _, p := range parts {
			part, ok := p.(Part)
			if !ok {
				continue
			}
			fc, ok := part["functionCall"].(map[string]any)
			if !ok {
				continue
			}
			id, _ := fc["id"].(string)
			if id == "" {
				id = "call_" + uuid.NewString()
				fc["id"] = id
			}
			pendingIDs = append(pendingIDs, id)
		}
	}

	idx := 0
	for _, c := range contents {
		role, _ := c["role"].(string)
		if role != "user" {
			continue
		}
		parts, _ := c["parts"].([]any)
		for _, p := range parts {
			part, ok := p.(Part)
			if !ok {
				continue
			}
			fr, ok := part["functionResponse"].(map[string]any)
			if !ok {
				continue
			}
			if id, _ := fr["id"].(string); id == "" && idx < len(pendingIDs) {
				fr["id"] = pendingIDs[idx]
				idx++
			}
		}
	}

	return contents
}

// stitchThoughtSignatures implements the thought-part/signature merge:
// for each historical assistant message, merge a standalone signature
// part into the first signature-less thought part; if none exists,
// inject a placeholder thought part carrying the cached reasoning
// signature. Remaining standalone signatures fill functionCall parts
// lacking one; any leftover functionCall falls back to the cached tool
// signature.
func stitchThoughtSignatures(contents []Content, model string, cache *signature.Cache) []Content {
	var cachedReasoning, cachedTool string
	if cache != nil {
		cachedReasoning, _ = cache.GetReasoning(model)
		cachedTool, _ = cache.GetToolCall(model)
	}

	for _, c := range contents {
		role, _ := c["role"].(string)
		if role != "model" {
			continue
		}
		parts, _ := c["parts"].([]any)

		var standaloneSigs []string
		var thoughtPartIdx = -1

		for i, p := range parts {
			part, ok := p.(Part)
			if !ok {
				continue
			}
			if isStandaloneSignature(part) {
				if sig, _ := part["thoughtSignature"].(string); sig != "" {
					standaloneSigs = append(standaloneSigs, sig)
				}
				continue
			}
			if thought, _ := part["thought"].(bool); thought && thoughtPartIdx == -1 {
				if _, hasSig := part["thoughtSignature"]; !hasSig {
					thoughtPartIdx = i
				}
			}
		}

		if len(standaloneSigs) > 0 && thoughtPartIdx >= 0 {
			if part, ok := parts[thoughtPartIdx].(Part); ok {
				part["thoughtSignature"] = standaloneSigs[0]
				standaloneSigs = standaloneSigs[1:]
			}
		} else if thoughtPartIdx == -1 && cachedReasoning != "" {
			placeholder := Part{"thought": true, "text": "", "thoughtSignature": cachedReasoning}
			parts = append([]any{placeholder}, parts...)
		}

		parts = removeStandaloneSignatures(parts)

		sigIdx := 0
		for _, p := range parts {
			part, ok := p.(Part)
			if !ok {
				continue
			}
			fc, ok := part["functionCall"].(map[string]any)
			if !ok {
				continue
			}
			if _, has := fc["thoughtSignature"]; has {
				continue
			}
			if sigIdx < len(standaloneSigs) {
				fc["thoughtSignature"] = standaloneSigs[sigIdx]
				sigIdx++
			} else if cachedTool != "" {
				fc["thoughtSignature"] = cachedTool
			}
		}

		c["parts"] = parts
	}

	return contents
}

func isStandaloneSignature(part Part) bool {
	_, hasSig := part["thoughtSignature"]
	_, hasThought := part["thought"]
	_, hasFC := part["functionCall"]
	_, hasText := part["text"]
	return hasSig && !hasThought && !hasFC && !hasText
}

func removeStandaloneSignatures(parts []any) []any {
	out := parts[:0]
	for _, p := range parts {
		part, ok := p.(Part)
		if ok && isStandaloneSignature(part) {
			continue
		}
		out = append(out, p)
	}
	return out
}
