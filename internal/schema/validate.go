// Package schema validates suggestion payloads before they reach the reconciler.
//
// Two payload shapes are accepted: an analysis response
// ({"sectionDiffs": [{"section": ..., "suggestions": [...]}]}) and a bare
// array of suggestions.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"resumerecon/internal/types"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed suggestions.schema.json
var suggestionsSchema string

var schemaLoader = gojsonschema.NewStringLoader(suggestionsSchema)

// FieldError represents a single validation error at a specific field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError represents a schema validation error with field paths
type ValidationError struct {
	Errors []FieldError
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation failed:\n")
	for i, err := range ve.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

// Validate checks raw JSON against the suggestion payload schema. It returns
// a *ValidationError when the document does not conform and a plain error
// when it is not JSON at all.
func Validate(raw []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("failed to load suggestion payload: %w", err)
	}

	if result.Valid() {
		return nil
	}

	validationErr := &ValidationError{
		Errors: make([]FieldError, 0, len(result.Errors())),
	}
	for _, desc := range result.Errors() {
		// oneOf reports a summary error on top of the branch errors
		if desc.Type() == "number_one_of" {
			continue
		}
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		validationErr.Errors = append(validationErr.Errors, FieldError{
			Field:   field,
			Message: desc.Description(),
		})
	}
	if len(validationErr.Errors) == 0 {
		validationErr.Errors = append(validationErr.Errors, FieldError{
			Field:   "(root)",
			Message: "payload must be an analysis response or an array of suggestions",
		})
	}

	return validationErr
}

// Payload is a decoded suggestion payload with any schema violations that
// were tolerated
type Payload struct {
	Suggestions []types.Suggestion `json:"suggestions"`
	Violations  []FieldError       `json:"violations,omitempty"`
}

// Decode validates and decodes a suggestion payload. In strict mode any
// schema violation is returned as a *ValidationError; otherwise violations
// are recorded on the payload and decoding continues.
func Decode(raw []byte, strict bool) (*Payload, error) {
	payload := &Payload{}

	if err := Validate(raw); err != nil {
		validationErr, ok := err.(*ValidationError)
		if !ok || strict {
			return nil, err
		}
		payload.Violations = validationErr.Errors
	}

	suggestions, err := decodeSuggestions(raw)
	if err != nil {
		return nil, err
	}
	payload.Suggestions = suggestions
	return payload, nil
}

func decodeSuggestions(raw []byte) ([]types.Suggestion, error) {
	trimmed := bytes.TrimSpace(raw)
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []types.Suggestion
		if err := dec.Decode(&list); err != nil {
			return nil, fmt.Errorf("failed to decode suggestion list: %w", err)
		}
		return list, nil
	}

	var resp types.AnalysisResponse
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode analysis response: %w", err)
	}
	return resp.Flatten(), nil
}
