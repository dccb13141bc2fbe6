package model

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
	compiler       = jsonschema.NewCompiler()
	artifactSchema = must(compiler.Compile([]byte(artifactSchemaDocument)))
)

// ValidateArtifact checks the shape of a serialized artifact. Semantic
// checks (known feature names, child indices) happen when compiling.
func ValidateArtifact(data []byte) error {
	result := artifactSchema.ValidateJSON(data)
	if !result.Valid {
		return fmt.Errorf("invalid model artifact json: %w", result)
	}
	return nil
}

const artifactSchemaDocument = `{
	"$id": "model-artifact.json",
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"title": "ModelArtifact",
	"type": "object",
	"required": ["name", "features", "estimator"],
	"properties": {
		"name": { "type": "string", "minLength": 1 },
		"target": { "type": "string" },
		"features": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"additionalProperties": false,
				"required": ["name", "type"],
				"properties": {
					"name": { "type": "string", "minLength": 1 },
					"type": { "enum": ["numeric", "categorical"] },
					"categories": {
						"type": "array",
						"items": { "type": "string" }
					}
				}
			}
		},
		"estimator": {
			"type": "object",
			"required": ["kind"],
			"properties": {
				"kind": { "enum": ["linear", "trees"] },
				"intercept": { "type": "number" },
				"weights": {
					"type": "object",
					"additionalProperties": { "type": "number" }
				},
				"baseScore": { "type": "number" },
				"learningRate": { "type": "number" },
				"trees": {
					"type": "array",
					"items": {
						"type": "object",
						"required": ["nodes"],
						"properties": {
							"nodes": {
								"type": "array",
								"items": {
									"type": "object",
									"additionalProperties": false,
									"properties": {
										"feature": { "type": "string" },
										"threshold": { "type": "number" },
										"left": { "type": "integer" },
										"right": { "type": "integer" },
										"value": { "type": "number" }
									}
								}
							}
						}
					}
				}
			}
		}
	}
}`
