package request

import (
	"sort"
	"strings"
)

// modelAliases maps inbound OpenAI/Claude model ids to the concrete
// upstream antigravity model id.
var modelAliases = map[string]string{
	"gpt-4o":                  "gemini-2.5-pro",
	"gpt-4o-mini":             "gemini-2.5-flash",
	"claude-3-5-sonnet-latest": "claude-3-5-sonnet",
	"claude-opus-4":           "claude-opus-4",
}

// thinkingSupportedModels names the upstream model ids that accept a
// thinkingConfig.
var thinkingSupportedModels = map[string]bool{
	"gemini-2.5-pro":    true,
	"gemini-2.5-flash":  true,
	"claude-opus-4":     true,
	"claude-3-5-sonnet": false,
}

// ResolveModel maps an inbound model id to the upstream model id,
// returning the input unchanged if no alias is registered.
func ResolveModel(inbound string) string {
	if alias, ok := modelAliases[inbound]; ok {
		return alias
	}
	return inbound
}

// IsThinkingSupported reports whether model accepts a thinkingConfig.
func IsThinkingSupported(model string) bool {
	if supported, ok := thinkingSupportedModels[model]; ok {
		return supported
	}
	return strings.Contains(model, "2.5") || strings.Contains(strings.ToLower(model), "opus")
}

// ListedModels returns the upstream model ids this gateway knows how to
// route to, for the /v1/models and /v1beta/models discovery endpoints.
func ListedModels() []string {
	ids := make([]string, 0, len(thinkingSupportedModels))
	for id := range thinkingSupportedModels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
