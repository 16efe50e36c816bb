package server

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

var mergeSchema = gojsonschema.NewGoLoader(map[string]any{
	"type": "object",
	"properties": map[string]any{
		"solicitacao_usuario": map[string]any{"type": "string", "minLength": 1},
		"grok_text":           map[string]any{"type": "string", "minLength": 1},
		"sonnet_text":         map[string]any{"type": "string", "minLength": 1},
		"gemini_text":         map[string]any{"type": "string", "minLength": 1},
		"min_chars":           map[string]any{"type": "integer", "minimum": 1},
		"max_chars":           map[string]any{"type": "integer", "minimum": 1},
		"output":              map[string]any{"type": "string", "enum": []any{"html", "raw"}},
	},
	"required": []any{"solicitacao_usuario", "grok_text", "sonnet_text", "gemini_text"},
})

var convertSchema = gojsonschema.NewGoLoader(map[string]any{
	"type": "object",
	"properties": map[string]any{
		"text": map[string]any{"type": "string"},
	},
	"required": []any{"text"},
})

// validateBody checks a JSON document against schema and joins every
// violation into one error.
func validateBody(schema gojsonschema.JSONLoader, body []byte) error {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if result.Valid() {
		return nil
	}
	var errs []string
	for _, desc := range result.Errors() {
		errs = append(errs, desc.String())
	}
	return fmt.Errorf("JSON validation failed: %s", strings.Join(errs, ", "))
}
