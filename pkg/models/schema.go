package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

var (
	// ErrInvalidSchema is returned when a payload schema is not a valid JSON schema.
	ErrInvalidSchema = errors.New("invalid payload schema")

	// ErrSchemaMismatch is returned when a payload does not satisfy its schema.
	ErrSchemaMismatch = errors.New("payload does not match schema")
)

// CompileSchema checks that the payload schema of a trigger is a valid JSON schema.
func CompileSchema(schema map[string]any) error {
	if len(schema) == 0 {
		return nil
	}

	_, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}

	return nil
}

// ValidatePayload validates trigger payload data against the JSON schema. An empty schema accepts anything.
func ValidatePayload(schema map[string]any, payload map[string]any) error {
	if len(schema) == 0 {
		return nil
	}

	if payload == nil {
		payload = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(payload))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}

	if !result.Valid() {
		descriptions := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descriptions = append(descriptions, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrSchemaMismatch, strings.Join(descriptions, "; "))
	}

	return nil
}
