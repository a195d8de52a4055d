package formatters

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"resumerecon/internal/reconciler"
	"resumerecon/internal/types"
)

// Formatter interface for different output formats
type Formatter interface {
	Format(data any) (string, error)
	SupportedType() string
}

// FormatterRegistry manages all available formatters
type FormatterRegistry struct {
	formatters map[string]map[string]Formatter // format -> type -> formatter
}

// NewFormatterRegistry creates a new formatter registry with default formatters
func NewFormatterRegistry() *FormatterRegistry {
	registry := &FormatterRegistry{
		formatters: make(map[string]map[string]Formatter),
	}

	// Register default formatters
	registry.RegisterFormatter("json", "any", &JSONFormatter{})
	registry.RegisterFormatter("text", "StructuredResult", &StructuredTextFormatter{})
	registry.RegisterFormatter("markdown", "StructuredResult", &StructuredMarkdownFormatter{})
	registry.RegisterFormatter("text", "TextResult", &TextResultFormatter{})
	registry.RegisterFormatter("markdown", "TextResult", &TextResultFormatter{markdown: true})
	registry.RegisterFormatter("text", "AcceptedResult", &AcceptedTextFormatter{})
	registry.RegisterFormatter("markdown", "AcceptedResult", &AcceptedMarkdownFormatter{})
	registry.RegisterFormatter("text", "Suggestions", &SuggestionsTextFormatter{})
	registry.RegisterFormatter("markdown", "Suggestions", &SuggestionsMarkdownFormatter{})
	registry.RegisterFormatter("text", "ItemsResult", &ItemsFormatter{})
	registry.RegisterFormatter("markdown", "ItemsResult", &ItemsFormatter{markdown: true})

	return registry
}

// RegisterFormatter registers a new formatter for a specific format and data type
func (fr *FormatterRegistry) RegisterFormatter(format, dataType string, formatter Formatter) {
	if fr.formatters[format] == nil {
		fr.formatters[format] = make(map[string]Formatter)
	}
	fr.formatters[format][dataType] = formatter
}

// Format formats data using the appropriate formatter
func (fr *FormatterRegistry) Format(data any, format string) (string, error) {
	dataType := getDataType(data)
	if dataType == "Suggestions" {
		if analysis, ok := data.(types.AnalysisResponse); ok {
			data = analysis.Flatten()
		}
	}

	// Try specific formatter first
	if formatters, exists := fr.formatters[format]; exists {
		if formatter, exists := formatters[dataType]; exists {
			return formatter.Format(data)
		}
		// Fall back to generic formatter
		if formatter, exists := formatters["any"]; exists {
			return formatter.Format(data)
		}
	}

	return "", fmt.Errorf("no formatter found for format '%s' and type '%s'", format, dataType)
}

// GetSupportedFormats returns all supported formats, sorted
func (fr *FormatterRegistry) GetSupportedFormats() []string {
	formats := make([]string, 0, len(fr.formatters))
	for format := range fr.formatters {
		formats = append(formats, format)
	}
	sort.Strings(formats)
	return formats
}

func getDataType(data any) string {
	switch data.(type) {
	case reconciler.Result[types.StructuredResumeSections]:
		return "StructuredResult"
	case reconciler.Result[string]:
		return "TextResult"
	case reconciler.Result[map[string]any]:
		return "AcceptedResult"
	case reconciler.Result[[]any]:
		return "ItemsResult"
	case []types.Suggestion, types.AnalysisResponse:
		return "Suggestions"
	default:
		return "any"
	}
}

// JSONFormatter handles JSON formatting for any data type
type JSONFormatter struct{}

func (jf *JSONFormatter) Format(data any) (string, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(jsonData), nil
}

func (jf *JSONFormatter) SupportedType() string {
	return "any"
}

// StructuredTextFormatter prints structured sections in the flattened header format
type StructuredTextFormatter struct{}

func (stf *StructuredTextFormatter) Format(data any) (string, error) {
	result, ok := data.(reconciler.Result[types.StructuredResumeSections])
	if !ok {
		return "", fmt.Errorf("expected StructuredResult, got %T", data)
	}

	var output strings.Builder
	output.WriteString(reconciler.Render(result.Value))
	writeTextWarnings(&output, result.Warnings)
	return output.String(), nil
}

func (stf *StructuredTextFormatter) SupportedType() string {
	return "StructuredResult"
}

// StructuredMarkdownFormatter prints one markdown heading per non-empty section
type StructuredMarkdownFormatter struct{}

func (smf *StructuredMarkdownFormatter) Format(data any) (string, error) {
	result, ok := data.(reconciler.Result[types.StructuredResumeSections])
	if !ok {
		return "", fmt.Errorf("expected StructuredResult, got %T", data)
	}

	var output strings.Builder
	output.WriteString("# Improved Resume\n\n")
	output.WriteString(sectionsMarkdown(result.Value))
	writeMarkdownWarnings(&output, result.Warnings)
	return output.String(), nil
}

func (smf *StructuredMarkdownFormatter) SupportedType() string {
	return "StructuredResult"
}

func sectionsMarkdown(s types.StructuredResumeSections) string {
	var output strings.Builder
	for _, section := range reconciler.Sections {
		body := reconciler.RenderSection(s, section)
		if body == "" {
			continue
		}
		output.WriteString(fmt.Sprintf("## %s\n\n", title(string(section))))
		if section == reconciler.SectionSkills {
			for _, line := range strings.Split(body, "\n") {
				output.WriteString(fmt.Sprintf("- %s\n", line))
			}
			output.WriteString("\n")
			continue
		}
		output.WriteString(body)
		output.WriteString("\n\n")
	}
	return output.String()
}

// TextResultFormatter prints generated resume text as-is
type TextResultFormatter struct {
	markdown bool
}

func (trf *TextResultFormatter) Format(data any) (string, error) {
	result, ok := data.(reconciler.Result[string])
	if !ok {
		return "", fmt.Errorf("expected TextResult, got %T", data)
	}

	var output strings.Builder
	if trf.markdown {
		output.WriteString("```text\n")
		output.WriteString(result.Value)
		output.WriteString("\n```\n")
		writeMarkdownWarnings(&output, result.Warnings)
		return output.String(), nil
	}

	output.WriteString(result.Value)
	writeTextWarnings(&output, result.Warnings)
	return output.String(), nil
}

func (trf *TextResultFormatter) SupportedType() string {
	return "TextResult"
}

// AcceptedTextFormatter lists accepted data per section
type AcceptedTextFormatter struct{}

func (atf *AcceptedTextFormatter) Format(data any) (string, error) {
	result, ok := data.(reconciler.Result[map[string]any])
	if !ok {
		return "", fmt.Errorf("expected AcceptedResult, got %T", data)
	}

	var output strings.Builder
	output.WriteString("=== ACCEPTED DATA ===\n")
	if len(result.Value) == 0 {
		output.WriteString("(none)\n")
	}
	for _, key := range sortedKeys(result.Value) {
		output.WriteString(fmt.Sprintf("\n%s:\n", strings.ToUpper(key)))
		output.WriteString(indentJSON(result.Value[key]))
		output.WriteString("\n")
	}
	writeTextWarnings(&output, result.Warnings)
	return output.String(), nil
}

func (atf *AcceptedTextFormatter) SupportedType() string {
	return "AcceptedResult"
}

// AcceptedMarkdownFormatter lists accepted data per section as fenced JSON
type AcceptedMarkdownFormatter struct{}

func (amf *AcceptedMarkdownFormatter) Format(data any) (string, error) {
	result, ok := data.(reconciler.Result[map[string]any])
	if !ok {
		return "", fmt.Errorf("expected AcceptedResult, got %T", data)
	}

	var output strings.Builder
	output.WriteString("# Accepted Suggestions\n\n")
	if len(result.Value) == 0 {
		output.WriteString("_No sections accepted._\n\n")
	}
	for _, key := range sortedKeys(result.Value) {
		output.WriteString(fmt.Sprintf("## %s\n\n```json\n", title(key)))
		output.WriteString(indentJSON(result.Value[key]))
		output.WriteString("\n```\n\n")
	}
	writeMarkdownWarnings(&output, result.Warnings)
	return output.String(), nil
}

func (amf *AcceptedMarkdownFormatter) SupportedType() string {
	return "AcceptedResult"
}

// SuggestionsTextFormatter prints a review list of suggestions
type SuggestionsTextFormatter struct{}

func (stf *SuggestionsTextFormatter) Format(data any) (string, error) {
	suggestions, ok := data.([]types.Suggestion)
	if !ok {
		return "", fmt.Errorf("expected Suggestions, got %T", data)
	}

	var output strings.Builder
	output.WriteString(fmt.Sprintf("=== SUGGESTIONS (%d) ===\n", len(suggestions)))
	for _, s := range suggestions {
		output.WriteString(fmt.Sprintf("\n[%s] %s / %s", s.ID, s.Section, s.Type))
		if s.Severity != "" {
			output.WriteString(fmt.Sprintf(" (%s)", s.Severity))
		}
		output.WriteString("\n")
		if s.Original != nil {
			output.WriteString(fmt.Sprintf("  Original:  %s\n", inline(s.Original)))
		}
		if s.Suggested != nil {
			output.WriteString(fmt.Sprintf("  Suggested: %s\n", inline(s.Suggested)))
		}
		if s.Reason != "" {
			output.WriteString(fmt.Sprintf("  Reason:    %s\n", s.Reason))
		}
	}
	return output.String(), nil
}

func (stf *SuggestionsTextFormatter) SupportedType() string {
	return "Suggestions"
}

// SuggestionsMarkdownFormatter prints suggestions as a table
type SuggestionsMarkdownFormatter struct{}

func (smf *SuggestionsMarkdownFormatter) Format(data any) (string, error) {
	suggestions, ok := data.([]types.Suggestion)
	if !ok {
		return "", fmt.Errorf("expected Suggestions, got %T", data)
	}

	var output strings.Builder
	output.WriteString("# Suggestions\n\n")
	output.WriteString("| ID | Section | Type | Severity | Suggested | Reason |\n")
	output.WriteString("|----|---------|------|----------|-----------|--------|\n")
	for _, s := range suggestions {
		output.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s |\n",
			cell(s.ID), cell(s.Section), s.Type, s.Severity, cell(inline(s.Suggested)), cell(s.Reason)))
	}
	return output.String(), nil
}

func (smf *SuggestionsMarkdownFormatter) SupportedType() string {
	return "Suggestions"
}

func writeTextWarnings(output *strings.Builder, warnings []reconciler.Warning) {
	if len(warnings) == 0 {
		return
	}
	output.WriteString("\n\n=== WARNINGS ===\n")
	for _, w := range warnings {
		output.WriteString(fmt.Sprintf("- %s\n", w))
	}
}

func writeMarkdownWarnings(output *strings.Builder, warnings []reconciler.Warning) {
	if len(warnings) == 0 {
		return
	}
	output.WriteString("\n## Warnings\n\n")
	for _, w := range warnings {
		output.WriteString(fmt.Sprintf("- `%s` %s\n", w.Code, w.Message))
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func indentJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// ItemsFormatter lists normalized section items, one per line
type ItemsFormatter struct {
	markdown bool
}

func (f *ItemsFormatter) Format(data any) (string, error) {
	result, ok := data.(reconciler.Result[[]any])
	if !ok {
		return "", fmt.Errorf("invalid data type for items formatter")
	}

	var output strings.Builder
	if len(result.Value) == 0 {
		output.WriteString("(no items)")
	}
	for i, item := range result.Value {
		if i > 0 {
			output.WriteString("\n")
		}
		if f.markdown {
			output.WriteString("- ")
		}
		output.WriteString(inline(item))
	}

	if f.markdown {
		output.WriteString("\n")
		writeMarkdownWarnings(&output, result.Warnings)
	} else {
		writeTextWarnings(&output, result.Warnings)
	}
	return output.String(), nil
}

func (f *ItemsFormatter) SupportedType() string {
	return "ItemsResult"
}

func inline(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", "\\|")
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Global formatter registry
var GlobalRegistry = NewFormatterRegistry()
