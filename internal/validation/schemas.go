package validation

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// tierLimitsSchema constrains admin tier-upsert payloads. Caps are either a
// non-negative integer or null for unlimited; nothing else.
const tierLimitsSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["tier"],
	"properties": {
		"tier": {
			"type": "string",
			"enum": ["community", "subscriber", "premium", "lifetime", "byok", "admin", "demo"]
		},
		"requests_per_minute": {"type": ["integer", "null"], "minimum": 0},
		"requests_per_hour": {"type": ["integer", "null"], "minimum": 0},
		"requests_per_day": {"type": ["integer", "null"], "minimum": 0},
		"max_tokens_per_request": {"type": ["integer", "null"], "minimum": 0},
		"max_tokens_per_day": {"type": ["integer", "null"], "minimum": 0},
		"max_documents": {"type": ["integer", "null"], "minimum": 0},
		"max_storage_mb": {"type": ["integer", "null"], "minimum": 0},
		"max_concurrent_requests": {"type": ["integer", "null"], "minimum": 0},
		"max_agents": {"type": ["integer", "null"], "minimum": 0},
		"memory_enabled": {"type": "boolean"},
		"updated_at": {"type": "string", "format": "date-time"}
	},
	"additionalProperties": false
}`

// SchemaValidator handles JSON schema validation for API requests
type SchemaValidator struct {
	schemas map[string]*gojsonschema.Schema
}

type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// NewSchemaValidator compiles the embedded schemas.
func NewSchemaValidator() (*SchemaValidator, error) {
	sources := map[string]string{
		"tier-limits": tierLimitsSchema,
	}

	sv := &SchemaValidator{
		schemas: make(map[string]*gojsonschema.Schema, len(sources)),
	}
	for name, source := range sources {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
		}
		sv.schemas[name] = schema
	}

	return sv, nil
}

// ValidateTierLimits validates a tier-upsert payload against its schema.
func (sv *SchemaValidator) ValidateTierLimits(raw []byte) *ValidationResult {
	return sv.validate("tier-limits", raw)
}

func (sv *SchemaValidator) validate(name string, raw []byte) *ValidationResult {
	schema, ok := sv.schemas[name]
	if !ok {
		return &ValidationResult{Valid: false, Errors: []string{"unknown schema: " + name}}
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return &ValidationResult{Valid: false, Errors: []string{err.Error()}}
	}
	if result.Valid() {
		return &ValidationResult{Valid: true}
	}

	out := &ValidationResult{Valid: false}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, desc.String())
	}
	return out
}
