// Package params implements the parameter normalizer: it collapses the
// three inbound generation-parameter shapes (OpenAI, Claude, Gemini)
// into one internal shape, then projects that shape back to the
// upstream antigravity generationConfig.
package params

import "strings"

// reasoningEffortBudgets maps OpenAI's coarse reasoning_effort enum to a
// concrete thinking-token budget.
var reasoningEffortBudgets = map[string]int{
	"low":    1024,
	"medium": 16000,
	"high":   32000,
}

// Normalized is the single internal generation-parameters shape shared
// across all three inbound dialects.
type Normalized struct {
	MaxTokens      int
	Temperature    float64
	TopP           float64
	TopK           int
	ThinkingBudget int // 0 means thinking disabled/unsupported
	HasThinking    bool

	HasMaxTokens   bool
	HasTemperature bool
	HasTopP        bool
	HasTopK        bool
}

// FromOpenAI reads an OpenAI-shaped request body (already gjson-parsed
// into plain values by the caller) into Normalized.
func FromOpenAI(maxTokens int, hasMaxTokens bool, temperature float64, hasTemperature bool, topP float64, hasTopP bool, topK int, hasTopK bool, thinkingBudget int, hasThinkingBudget bool, reasoningEffort string) Normalized {
	n := Normalized{
		MaxTokens: maxTokens, HasMaxTokens: hasMaxTokens,
		Temperature: temperature, HasTemperature: hasTemperature,
		TopP: topP, HasTopP: hasTopP,
		TopK: topK, HasTopK: hasTopK,
	}
	switch {
	case hasThinkingBudget:
		n.ThinkingBudget = thinkingBudget
		n.HasThinking = true
	case reasoningEffort != "":
		if budget, ok := reasoningEffortBudgets[reasoningEffort]; ok {
			n.ThinkingBudget = budget
			n.HasThinking = true
		}
	}
	return n
}

// FromClaude reads a Claude-shaped request body. thinkingType is "enabled"
// or "disabled"; budgetTokens only applies when thinkingType=="enabled".
func FromClaude(maxTokens int, hasMaxTokens bool, temperature float64, hasTemperature bool, topP float64, hasTopP bool, topK int, hasTopK bool, thinkingType string, budgetTokens int) Normalized {
	n := Normalized{
		MaxTokens: maxTokens, HasMaxTokens: hasMaxTokens,
		Temperature: temperature, HasTemperature: hasTemperature,
		TopP: topP, HasTopP: hasTopP,
		TopK: topK, HasTopK: hasTopK,
	}
	switch thinkingType {
	case "enabled":
		n.ThinkingBudget = budgetTokens
		n.HasThinking = true
	case "disabled":
		n.ThinkingBudget = 0
		n.HasThinking = true
	}
	return n
}

// FromGemini reads a Gemini-shaped request body. includeThoughts==false
// forces thinkingBudget to 0 regardless of the inbound budget value.
func FromGemini(maxOutputTokens int, hasMaxOutputTokens bool, temperature float64, hasTemperature bool, topP float64, hasTopP bool, topK int, hasTopK bool, thinkingBudget int, hasThinkingBudget bool, includeThoughts bool, hasIncludeThoughts bool) Normalized {
	n := Normalized{
		MaxTokens: maxOutputTokens, HasMaxTokens: hasMaxOutputTokens,
		Temperature: temperature, HasTemperature: hasTemperature,
		TopP: topP, HasTopP: hasTopP,
		TopK: topK, HasTopK: hasTopK,
	}
	if hasThinkingBudget {
		n.ThinkingBudget = thinkingBudget
		n.HasThinking = true
	}
	if hasIncludeThoughts && !includeThoughts {
		n.ThinkingBudget = 0
		n.HasThinking = true
	}
	return n
}

// GenerationConfig is the upstream antigravity projection.
type GenerationConfig struct {
	TopP            *float64        `json:"topP,omitempty"`
	TopK            *int            `json:"topK,omitempty"`
	Temperature     *float64        `json:"temperature,omitempty"`
	CandidateCount  int             `json:"candidateCount"`
	MaxOutputTokens *int            `json:"maxOutputTokens,omitempty"`
	ThinkingConfig  *ThinkingConfig `json:"thinkingConfig,omitempty"`
}

// ThinkingConfig is the upstream reasoning-control sub-object.
type ThinkingConfig struct {
	IncludeThoughts bool `json:"includeThoughts"`
	ThinkingBudget  int  `json:"thinkingBudget"`
}

// Project builds the upstream generationConfig for effectiveModel. If the
// model name contains "claude" and thinking is enabled, topP is omitted
// per the upstream constraint. includeThoughts is false whenever
// thinking_budget==0, regardless of what the caller originally asked for.
func Project(n Normalized, effectiveModel string) GenerationConfig {
	cfg := GenerationConfig{CandidateCount: 1}

	if n.HasMaxTokens {
		v := n.MaxTokens
		cfg.MaxOutputTokens = &v
	}
	if n.HasTemperature {
		v := n.Temperature
		cfg.Temperature = &v
	}
	if n.HasTopK {
		v := n.TopK
		cfg.TopK = &v
	}

	claudeThinking := isClaudeModel(effectiveModel) && n.HasThinking && n.ThinkingBudget > 0
	if n.HasTopP && !claudeThinking {
		v := n.TopP
		cfg.TopP = &v
	}

	if n.HasThinking {
		cfg.ThinkingConfig = &ThinkingConfig{
			IncludeThoughts: n.ThinkingBudget != 0,
			ThinkingBudget:  n.ThinkingBudget,
		}
	}

	return cfg
}

func isClaudeModel(model string) bool {
	return strings.Contains(strings.ToLower(model), "claude")
}
