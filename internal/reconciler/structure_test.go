package reconciler

import (
	"strings"
	"testing"

	"resumerecon/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructure_SummaryImprovementAndSkillsAddition(t *testing.T) {
	r := Default()
	suggestions := []types.Suggestion{
		{ID: "s1", Section: "Summary", Type: types.SuggestionImprovement,
			Original: "Engineer", Suggested: "Senior engineer with 10 years experience", Severity: types.SeverityHigh},
		{ID: "s2", Section: "Skills", Type: types.SuggestionAddition, Suggested: "TypeScript, Go"},
	}

	res := r.Structure(suggestions, types.NewAcceptedSet("s1", "s2"), nil)

	assert.Equal(t, "Senior engineer with 10 years experience", res.Value.Summary)
	assert.Equal(t, []any{"TypeScript, Go"}, res.Value.Skills)
	assert.Empty(t, res.Value.Experience)
	assert.Empty(t, res.Warnings)

	text := r.GenerateText(suggestions, types.NewAcceptedSet("s1", "s2"), nil).Value
	assert.Contains(t, text, "SUMMARY:\nSenior engineer with 10 years experience")
	assert.Contains(t, text, "SKILLS:\nTypeScript, Go")
	assert.Less(t, strings.Index(text, "SUMMARY:"), strings.Index(text, "SKILLS:"))
}

func TestStructure_EmptyAcceptedSet(t *testing.T) {
	r := Default()
	suggestions := []types.Suggestion{
		{ID: "s1", Section: "summary", Type: types.SuggestionReplace, Suggested: "Hello"},
		{ID: "s2", Section: "experience", Type: types.SuggestionAddition, Suggested: "Built things"},
	}

	res := r.Structure(suggestions, types.NewAcceptedSet(), nil)
	assert.Equal(t, types.EmptySections(), res.Value)
	assert.True(t, res.Value.IsEmpty())

	text := r.GenerateText(suggestions, types.AcceptedSet{}, nil)
	assert.Equal(t, "", text.Value)
}

func TestStructure_RemovalFiltersMatchingEntry(t *testing.T) {
	r := Default()
	suggestions := []types.Suggestion{
		{ID: "r1", Section: "experience", Type: types.SuggestionReplace,
			Suggested: []any{"Managed a team of 5 engineers", "Shipped the payments platform"}},
		{ID: "d1", Section: "experience", Type: types.SuggestionRemoval, Original: "Managed a team"},
	}

	res := r.Structure(suggestions, types.NewAcceptedSet("r1", "d1"), nil)
	assert.Equal(t, []any{"Shipped the payments platform"}, res.Value.Experience)
	assert.Empty(t, res.Warnings)
}

func TestStructure_MergeOrder(t *testing.T) {
	r := Default()
	// additions listed first still land after the replacement base
	suggestions := []types.Suggestion{
		{ID: "a1", Section: "projects", Type: types.SuggestionAddition, Suggested: "CLI tool"},
		{ID: "r1", Section: "projects", Type: types.SuggestionReplace, Suggested: `["Web app", "Old thing"]`},
		{ID: "d1", Section: "projects", Type: types.SuggestionRemoval, Original: "Old"},
	}

	res := r.Structure(suggestions, types.AcceptAll(suggestions), nil)
	assert.Equal(t, []any{"Web app", "CLI tool"}, res.Value.Projects)
}

func TestStructure_OnlyAcceptedSuggestionsContribute(t *testing.T) {
	r := Default()
	suggestions := []types.Suggestion{
		{ID: "yes", Section: "skills", Type: types.SuggestionAddition, Suggested: "Go"},
		{ID: "no", Section: "skills", Type: types.SuggestionAddition, Suggested: "COBOL"},
		{ID: "no-removal", Section: "skills", Type: types.SuggestionRemoval, Original: "Go"},
	}

	res := r.Structure(suggestions, types.NewAcceptedSet("yes"), nil)
	assert.Equal(t, []any{"Go"}, res.Value.Skills)
	assert.NotContains(t, Render(res.Value), "COBOL")
}

func TestStructure_SectionAliases(t *testing.T) {
	tests := []struct {
		label string
		check func(t *testing.T, s types.StructuredResumeSections)
	}{
		{"Work Experience", func(t *testing.T, s types.StructuredResumeSections) { assert.Len(t, s.Experience, 1) }},
		{"employment", func(t *testing.T, s types.StructuredResumeSections) { assert.Len(t, s.Experience, 1) }},
		{"EXPERIENCE", func(t *testing.T, s types.StructuredResumeSections) { assert.Len(t, s.Experience, 1) }},
		{"Profile", func(t *testing.T, s types.StructuredResumeSections) { assert.Equal(t, "item", s.Summary) }},
		{"about", func(t *testing.T, s types.StructuredResumeSections) { assert.Equal(t, "item", s.Summary) }},
		{"Objective", func(t *testing.T, s types.StructuredResumeSections) { assert.Equal(t, "item", s.Summary) }},
		{"certificates", func(t *testing.T, s types.StructuredResumeSections) { assert.Len(t, s.Certifications, 1) }},
		{"Technical Skills", func(t *testing.T, s types.StructuredResumeSections) { assert.Len(t, s.Skills, 1) }},
	}

	r := Default()
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			suggestions := []types.Suggestion{{ID: "x", Section: tt.label, Type: types.SuggestionAddition, Suggested: "item"}}
			res := r.Structure(suggestions, types.NewAcceptedSet("x"), nil)
			assert.Empty(t, res.Warnings)
			tt.check(t, res.Value)
		})
	}
}

func TestStructure_UnknownSectionDroppedWithWarning(t *testing.T) {
	r := Default()
	suggestions := []types.Suggestion{
		{ID: "h1", Section: "Hobbies", Type: types.SuggestionAddition, Suggested: "Chess"},
		{ID: "s1", Section: "skills", Type: types.SuggestionAddition, Suggested: "Go"},
	}

	res := r.Structure(suggestions, types.AcceptAll(suggestions), nil)
	assert.Equal(t, []any{"Go"}, res.Value.Skills)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, WarnUnknownSection, res.Warnings[0].Code)
	assert.Equal(t, "h1", res.Warnings[0].SuggestionID)
}

func TestStructure_EditedTextOverridesSuggested(t *testing.T) {
	r := Default()
	suggestions := []types.Suggestion{
		{ID: "s1", Section: "summary", Type: types.SuggestionImprovement, Suggested: "Generated summary"},
	}
	edited := types.EditedText{"s1": "Hand-tuned summary"}

	res := r.Structure(suggestions, types.NewAcceptedSet("s1"), edited)
	assert.Equal(t, "Hand-tuned summary", res.Value.Summary)
}

func TestStructure_MultipleSummaryCandidatesJoined(t *testing.T) {
	r := Default()
	suggestions := []types.Suggestion{
		{ID: "s1", Section: "summary", Type: types.SuggestionReplace, Suggested: "First paragraph."},
		{ID: "s2", Section: "about me", Type: types.SuggestionAddition, Suggested: "Second paragraph."},
	}

	res := r.Structure(suggestions, types.AcceptAll(suggestions), nil)
	assert.Equal(t, "First paragraph.\n\nSecond paragraph.", res.Value.Summary)
}

func TestStructure_StructuredExperience(t *testing.T) {
	r := Default()
	suggestions := []types.Suggestion{
		{ID: "e1", Section: "experience", Type: types.SuggestionAddition,
			Suggested: `{"title":"Staff Engineer","company":"Acme","dates":"2021 - Present","description":"Owns the billing platform"}`},
	}

	text := r.GenerateText(suggestions, types.AcceptAll(suggestions), nil)
	assert.Equal(t, "EXPERIENCE:\nStaff Engineer at Acme (2021 - Present)\nOwns the billing platform", text.Value)
}

func TestStructure_DegradationWarnings(t *testing.T) {
	r := Default()
	suggestions := []types.Suggestion{
		{ID: "t1", Section: "skills", Type: "rewrite", Suggested: "Go"},
		{ID: "d1", Section: "skills", Type: types.SuggestionRemoval},
		{ID: "d2", Section: "skills", Type: types.SuggestionRemoval, Original: "Fortran"},
		{ID: "a1", Section: "skills", Type: types.SuggestionAddition},
	}

	res := r.Structure(suggestions, types.AcceptAll(suggestions), nil)
	assert.ElementsMatch(t,
		[]WarningCode{WarnUnknownType, WarnEmptyPayload, WarnEmptyRemoval, WarnUnmatchedRemoval},
		res.Codes())
	assert.Empty(t, res.Value.Skills)
}

func TestAcceptedData(t *testing.T) {
	r := Default()
	suggestions := []types.Suggestion{
		{ID: "s1", Section: "Profile", Type: types.SuggestionImprovement, Suggested: "Better summary"},
		{ID: "k1", Section: "skills", Type: types.SuggestionAddition, Suggested: "Go"},
		{ID: "k2", Section: "skills", Type: types.SuggestionReplace, Suggested: []any{"Rust"}},
		{ID: "k3", Section: "skills", Type: types.SuggestionRemoval, Original: "Perl"},
		{ID: "p1", Section: "projects", Type: types.SuggestionAddition, Suggested: "Ignored"},
	}

	res := r.AcceptedData(suggestions, types.NewAcceptedSet("s1", "k1", "k2", "k3"), types.EditedText{"k1": "Go, gRPC"})

	assert.Equal(t, map[string]any{
		"summary": "Better summary",
		"skills":  []any{"Go, gRPC", []any{"Rust"}},
	}, res.Value)
}

func TestStructure_SummaryPayloadShapes(t *testing.T) {
	tests := []struct {
		name     string
		payload  any
		want     string
		warnings []WarningCode
	}{
		{"array value", []any{"First.", "Second."}, "First.\n\nSecond.", nil},
		{"array as JSON string", `["First.", "Second."]`, "First.\n\nSecond.", nil},
		{"JSON string scalar", `"Quoted summary."`, "Quoted summary.", nil},
		{"plain multi-line text stays verbatim", "CORE FOCUS:\nAPIs; tooling", "CORE FOCUS:\nAPIs; tooling", nil},
		{"JSON null", "null", "", []WarningCode{WarnEmptyPayload}},
	}

	r := Default()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			suggestions := []types.Suggestion{{ID: "s", Section: "summary", Type: types.SuggestionReplace, Suggested: tt.payload}}
			res := r.Structure(suggestions, types.AcceptAll(suggestions), nil)
			assert.Equal(t, tt.want, res.Value.Summary)
			if tt.warnings == nil {
				assert.Empty(t, res.Warnings)
			} else {
				assert.Equal(t, tt.warnings, res.Codes())
			}
		})
	}
}
