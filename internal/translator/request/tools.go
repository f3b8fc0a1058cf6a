package request

// ConvertOpenAITools rewrites OpenAI's {type:"function", function:{name,
// description, parameters}} tool list into the upstream antigravity
// {functionDeclarations:[{name, description, parameters}]} shape.
func ConvertOpenAITools(openaiTools []map[string]any) []Tool {
	if len(openaiTools) == 0 {
		return nil
	}
	decls := make([]any, 0, len(openaiTools))
	for _, t := range openaiTools {
		fn, ok := t["function"].(map[string]any)
		if !ok {
			continue
		}
		decls = append(decls, map[string]any{
			"name":        fn["name"],
			"description": fn["description"],
			"parameters":  fn["parameters"],
		})
	}
	if len(decls) == 0 {
		return nil
	}
	return []Tool{{"functionDeclarations": decls}}
}

// ConvertClaudeTools rewrites Claude's {name, description, input_schema}
// tool list into the same functionDeclarations shape.
func ConvertClaudeTools(claudeTools []map[string]any) []Tool {
	if len(claudeTools) == 0 {
		return nil
	}
	decls := make([]any, 0, len(claudeTools))
	for _, t := range claudeTools {
		decls = append(decls, map[string]any{
			"name":        t["name"],
			"description": t["description"],
			"parameters":  t["input_schema"],
		})
	}
	if len(decls) == 0 {
		return nil
	}
	return []Tool{{"functionDeclarations": decls}}
}

// ConvertGeminiTools passes Gemini tool declarations through unchanged:
// they already use the upstream antigravity shape.
func ConvertGeminiTools(geminiTools []Tool) []Tool {
	return geminiTools
}
