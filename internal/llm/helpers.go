package llm

// chooseModel prefers the per-request model over the provider default.
func chooseModel(requested, fallback string) string {
	if requested != "" {
		return requested
	}
	return fallback
}

// SchemaRequired returns the "required" list of a JSON schema map.
func SchemaRequired(schema map[string]interface{}) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []interface{}:
		out := make([]string, 0, len(req))
		for _, v := range req {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
