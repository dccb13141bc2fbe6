package halfmarathon

import (
	"fmt"

	"github.com/kaptinlin/jsonschema"
)

func must[T any](t T, err error) T {
	if err != nil {
		panic(err)
	}
	return t
}

var (
	compiler              = jsonschema.NewCompiler()
	extractedRunnerSchema = must(compiler.Compile([]byte(extractedRunnerSchemaDocument)))
)

// ValidateExtractedRunner checks the JSON the language model returned.
// Absent keys are allowed and reported as missing by Normalize. Gender is
// only checked to be a string here; Normalize decides which spellings are
// accepted.
func ValidateExtractedRunner(data []byte) error {
	result := extractedRunnerSchema.ValidateJSON(data)
	if !result.Valid {
		return fmt.Errorf("invalid extracted runner json: %w", result)
	}
	return nil
}

const extractedRunnerSchemaDocument = `{
	"$id": "extracted-runner.json",
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"title": "ExtractedRunner",
	"type": "object",
	"properties": {
		"age": { "type": ["integer", "null"] },
		"gender": { "type": ["string", "null"] },
		"time_5km": { "type": ["string", "null"] }
	}
}`

// runnerResponseFormat is the strict schema requested from the inference
// service. OpenAI's strict mode requires every property to be listed as
// required and forbids additional properties.
var runnerResponseFormat = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"age", "gender", "time_5km"},
	"properties": map[string]any{
		"age": map[string]any{
			"type":        []string{"integer", "null"},
			"description": "Wiek biegacza w latach",
		},
		"gender": map[string]any{
			"type":        []string{"string", "null"},
			"enum":        []any{"M", "K", nil},
			"description": "M dla mężczyzny, K dla kobiety",
		},
		"time_5km": map[string]any{
			"type":        []string{"string", "null"},
			"description": "Czas na 5 km w formacie HH:MM:SS",
		},
	},
}
