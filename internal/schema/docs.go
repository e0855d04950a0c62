package schema

// JSON schema documents for the request surface. Served by `print-schema`
// and, per tool, by the MCP tools/list response.

func toolRequestProperties() map[string]any {
	return map[string]any{
		"host":             map[string]any{"type": "string"},
		"user":             map[string]any{"type": "string"},
		"tool":             map[string]any{"type": "string"},
		"args":             map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"timeout_sec":      map[string]any{"type": "integer", "minimum": 1},
		"max_output_bytes": map[string]any{"type": "integer", "minimum": 1},
		"correlation_id":   map[string]any{"type": "string"},
	}
}

// ToolRequestSchema describes one line of `serve` input.
func ToolRequestSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"required":   []string{"host", "user", "tool"},
		"properties": toolRequestProperties(),
	}
}

// ToolInputSchema describes tools/call arguments for one allowlisted tool.
// The tool name travels in params.name, so it is absent here.
func ToolInputSchema() map[string]any {
	props := toolRequestProperties()
	delete(props, "tool")
	return map[string]any{
		"type":       "object",
		"required":   []string{"host", "user"},
		"properties": props,
	}
}

// WorkflowRequestSchema describes one line of `workflow-serve` input.
func WorkflowRequestSchema() map[string]any {
	step := map[string]any{
		"type":     "object",
		"required": []string{"tool"},
		"properties": map[string]any{
			"tool":             map[string]any{"type": "string"},
			"args":             map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"timeout_sec":      map[string]any{"type": "integer", "minimum": 1},
			"max_output_bytes": map[string]any{"type": "integer", "minimum": 1},
		},
	}
	return map[string]any{
		"type":     "object",
		"required": []string{"host", "user", "steps"},
		"properties": map[string]any{
			"id":            map[string]any{"type": "string"},
			"host":          map[string]any{"type": "string"},
			"user":          map[string]any{"type": "string"},
			"stop_on_error": map[string]any{"type": "boolean"},
			"steps":         map[string]any{"type": "array", "items": step, "minItems": 1},
		},
	}
}
