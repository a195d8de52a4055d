package common

import (
	"fmt"
	"slices"
	"strings"

	"resumerecon/internal/types"
)

// ValidateOutputFormat validates format against configured supported formats
func ValidateOutputFormat(format string, supportedFormats []string) error {
	if len(supportedFormats) == 0 {
		return nil // No restrictions configured
	}

	if slices.Contains(supportedFormats, format) {
		return nil
	}

	return fmt.Errorf("unsupported output format '%s'. Supported formats: %v",
		format, supportedFormats)
}

// GetSupportedFormats returns the list of supported formats
func GetSupportedFormats(supportedFormats []string) []string {
	return supportedFormats
}

// Selection is the reviewer's choice of suggestions on the command line
type Selection struct {
	AcceptIDs []string
	AcceptAll bool
	EditsFile string
}

// SplitIDs flattens repeated and comma separated id flags, dropping blanks
// and duplicates while keeping first-seen order
func SplitIDs(values []string) []string {
	var ids []string
	for _, v := range values {
		for _, id := range strings.Split(v, ",") {
			id = strings.TrimSpace(id)
			if id != "" && !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// AcceptedSet builds the accepted set for suggestions and reports ids that
// match no suggestion
func (s Selection) AcceptedSet(suggestions []types.Suggestion) (types.AcceptedSet, []string) {
	if s.AcceptAll {
		return types.AcceptAll(suggestions), nil
	}

	known := make(map[string]bool, len(suggestions))
	for _, sug := range suggestions {
		known[sug.ID] = true
	}

	ids := SplitIDs(s.AcceptIDs)
	var unknown []string
	for _, id := range ids {
		if !known[id] {
			unknown = append(unknown, id)
		}
	}
	return types.NewAcceptedSet(ids...), unknown
}
