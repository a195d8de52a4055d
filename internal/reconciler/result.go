package reconciler

import "fmt"

// WarningCode identifies a kind of non-fatal degradation
type WarningCode string

const (
	WarnUnknownSection         WarningCode = "unknown_section"
	WarnUnknownType            WarningCode = "unknown_type"
	WarnEmptyPayload           WarningCode = "empty_payload"
	WarnEmptyRemoval           WarningCode = "empty_removal"
	WarnUnmatchedRemoval       WarningCode = "unmatched_removal"
	WarnFragmentsReconstructed WarningCode = "fragments_reconstructed"
	WarnFragmentsUnresolved    WarningCode = "fragments_unresolved"
	WarnCleanedJSON            WarningCode = "json_cleaned"
	WarnMalformedJSON          WarningCode = "malformed_json"
	WarnUnknownHeader          WarningCode = "unknown_header"
	WarnContentBeforeHeader    WarningCode = "content_before_header"
	WarnHeaderEscaped          WarningCode = "header_escaped"
	WarnFieldsFlattened        WarningCode = "fields_flattened"
)

// Warning reports content that was dropped, guessed at or repaired
type Warning struct {
	Code         WarningCode `json:"code"`
	Message      string      `json:"message"`
	SuggestionID string      `json:"suggestionId,omitempty"`
	Section      string      `json:"section,omitempty"`
}

func (w Warning) String() string {
	switch {
	case w.SuggestionID != "":
		return fmt.Sprintf("%s [%s]: %s", w.Code, w.SuggestionID, w.Message)
	case w.Section != "":
		return fmt.Sprintf("%s (%s): %s", w.Code, w.Section, w.Message)
	default:
		return fmt.Sprintf("%s: %s", w.Code, w.Message)
	}
}

// Result carries a best-effort value with the warnings collected while
// producing it
type Result[T any] struct {
	Value    T         `json:"value"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// HasWarnings reports whether anything degraded
func (r Result[T]) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// Codes returns the warning codes in order, mostly for tests and metrics
func (r Result[T]) Codes() []WarningCode {
	codes := make([]WarningCode, len(r.Warnings))
	for i, w := range r.Warnings {
		codes[i] = w.Code
	}
	return codes
}

type warnings []Warning

func (ws *warnings) add(code WarningCode, format string, args ...any) *Warning {
	*ws = append(*ws, Warning{Code: code, Message: fmt.Sprintf(format, args...)})
	return &(*ws)[len(*ws)-1]
}

func (ws *warnings) addFor(id, section string, code WarningCode, format string, args ...any) {
	w := ws.add(code, format, args...)
	w.SuggestionID = id
	w.Section = section
}

// tag stamps suggestion and section onto warnings that lack them
func tag(ws []Warning, id, section string) []Warning {
	for i := range ws {
		if ws[i].SuggestionID == "" {
			ws[i].SuggestionID = id
		}
		if ws[i].Section == "" {
			ws[i].Section = section
		}
	}
	return ws
}
