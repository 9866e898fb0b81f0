package openai

import (
	"encoding/json"

	"github.com/openai/openai-go"
	"github.com/spetersoncode/tally"
)

func schemaFormat(rs *tally.ResponseSchema) openai.ChatCompletionNewParamsResponseFormatUnion {
	var schema map[string]any
	_ = json.Unmarshal(rs.Schema, &schema)
	closeObjects(schema)

	name := rs.Name
	if name == "" {
		name = "response"
	}

	return openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
			Type: "json_schema",
			JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:        name,
				Description: openai.String(rs.Description),
				Schema:      schema,
				Strict:      openai.Bool(true),
			},
		},
	}
}

// closeObjects sets additionalProperties: false on every object schema, which
// strict mode requires.
func closeObjects(schema map[string]any) {
	if schema == nil {
		return
	}
	if t, ok := schema["type"].(string); ok && t == "object" {
		schema["additionalProperties"] = false
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		for _, p := range props {
			if pm, ok := p.(map[string]any); ok {
				closeObjects(pm)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		closeObjects(items)
	}
}
