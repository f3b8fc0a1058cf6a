package gateway

import (
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/antigravity-gateway/gateway/internal/params"
	"github.com/antigravity-gateway/gateway/internal/translator/request"
)

// parsedChat is the surface-agnostic shape every inbound body is reduced
// to before it reaches request.Build.
type parsedChat struct {
	Model      string
	Stream     bool
	Contents   []request.Content
	Tools      []request.Tool
	SystemText string
	Params     params.Normalized
	SessionID  string
}

func gjsonInt(v gjson.Result) (int, bool) {
	if !v.Exists() {
		return 0, false
	}
	return int(v.Int()), true
}

func gjsonFloat(v gjson.Result) (float64, bool) {
	if !v.Exists() {
		return 0, false
	}
	return v.Float(), true
}

func parseOpenAIChat(body gjson.Result) parsedChat {
	messages := body.Get("messages").Array()
	contents, systemText := request.ConvertOpenAIMessages(messages)

	maxTokens, hasMaxTokens := gjsonInt(body.Get("max_tokens"))
	if !hasMaxTokens {
		maxTokens, hasMaxTokens = gjsonInt(body.Get("max_completion_tokens"))
	}
	temperature, hasTemperature := gjsonFloat(body.Get("temperature"))
	topP, hasTopP := gjsonFloat(body.Get("top_p"))
	topK, hasTopK := gjsonInt(body.Get("top_k"))
	thinkingBudget, hasThinkingBudget := gjsonInt(body.Get("thinking_budget"))

	return parsedChat{
		Model:      request.ResolveModel(body.Get("model").String()),
		Stream:     body.Get("stream").Bool(),
		Contents:   contents,
		Tools:      request.ConvertOpenAITools(request.ObjectArray(body.Get("tools"))),
		SystemText: systemText,
		Params: params.FromOpenAI(
			maxTokens, hasMaxTokens,
			temperature, hasTemperature,
			topP, hasTopP,
			topK, hasTopK,
			thinkingBudget, hasThinkingBudget,
			body.Get("reasoning_effort").String(),
		),
		SessionID: uuid.NewString(),
	}
}

func parseClaudeChat(body gjson.Result) parsedChat {
	contents := request.ConvertClaudeMessages(body.Get("messages").Array())

	maxTokens, hasMaxTokens := gjsonInt(body.Get("max_tokens"))
	temperature, hasTemperature := gjsonFloat(body.Get("temperature"))
	topP, hasTopP := gjsonFloat(body.Get("top_p"))
	topK, hasTopK := gjsonInt(body.Get("top_k"))

	thinkingType := body.Get("thinking.type").String()
	budgetTokens := int(body.Get("thinking.budget_tokens").Int())

	return parsedChat{
		Model:      request.ResolveModel(body.Get("model").String()),
		Stream:     body.Get("stream").Bool(),
		Contents:   contents,
		Tools:      request.ConvertClaudeTools(request.ObjectArray(body.Get("tools"))),
		SystemText: body.Get("system").String(),
		Params: params.FromClaude(
			maxTokens, hasMaxTokens,
			temperature, hasTemperature,
			topP, hasTopP,
			topK, hasTopK,
			thinkingType, budgetTokens,
		),
		SessionID: uuid.NewString(),
	}
}

func parseGeminiChat(model, alt string, body gjson.Result) parsedChat {
	contents := request.ConvertGeminiContents(body.Get("contents"))

	gen := body.Get("generationConfig")
	maxTokens, hasMaxTokens := gjsonInt(gen.Get("maxOutputTokens"))
	temperature, hasTemperature := gjsonFloat(gen.Get("temperature"))
	topP, hasTopP := gjsonFloat(gen.Get("topP"))
	topK, hasTopK := gjsonInt(gen.Get("topK"))
	thinkingBudget, hasThinkingBudget := gjsonInt(gen.Get("thinkingConfig.thinkingBudget"))
	includeThoughts := gen.Get("thinkingConfig.includeThoughts").Bool()
	hasIncludeThoughts := gen.Get("thinkingConfig.includeThoughts").Exists()

	return parsedChat{
		Model:      request.ResolveModel(model),
		Stream:     alt == "sse",
		Contents:   contents,
		Tools:      request.ConvertGeminiTools(request.ObjectArray(body.Get("tools"))),
		SystemText: body.Get("systemInstruction.parts.0.text").String(),
		Params: params.FromGemini(
			maxTokens, hasMaxTokens,
			temperature, hasTemperature,
			topP, hasTopP,
			topK, hasTopK,
			thinkingBudget, hasThinkingBudget,
			includeThoughts, hasIncludeThoughts,
		),
		SessionID: uuid.NewString(),
	}
}
