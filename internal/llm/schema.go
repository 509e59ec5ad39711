package llm

// BuildReadingsJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. We pass this to the provider as a structured output constraint
// and also use it locally to validate the reply.
func BuildReadingsJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"startReading": readingProp(),
			"endReading":   readingProp(),
		},
		"required": []string{"startReading", "endReading"},
	}
}

func readingProp() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"date":  map[string]any{"type": "string", "minLength": 1},
			"value": map[string]any{"type": "number"},
		},
		"required": []string{"date", "value"},
	}
}
