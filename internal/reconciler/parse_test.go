package reconciler

import (
	"testing"

	"resumerecon/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleResume = `SUMMARY:
Seasoned platform engineer.

EXPERIENCE:
Senior Engineer at Acme (2020 - 2023)
Led the platform team
Ran the on-call rotation

Intern
Wrote tests

EDUCATION:
MIT - BSc Computer Science - 2016

SKILLS:
Languages: Go, Python
Cloud: AWS
Leadership

PROJECTS:
resumerecon - Suggestion reconciler
Written in Go

CERTIFICATIONS:
CKA - CNCF - 2022`

func TestParse_AllSections(t *testing.T) {
	res := Default().Parse(sampleResume)
	require.Empty(t, res.Warnings)
	s := res.Value

	assert.Equal(t, "Seasoned platform engineer.", s.Summary)
	assert.Equal(t, []any{
		map[string]any{
			"title":       "Senior Engineer",
			"company":     "Acme",
			"dates":       "2020 - 2023",
			"description": "Led the platform team\nRan the on-call rotation",
		},
		map[string]any{"title": "Intern", "description": "Wrote tests"},
	}, s.Experience)
	assert.Equal(t, []any{
		map[string]any{"school": "MIT", "degree": "BSc Computer Science", "duration": "2016"},
	}, s.Education)
	assert.Equal(t, []any{
		map[string]any{
			"languages": []any{"Go", "Python"},
			"cloud":     []any{"AWS"},
		},
		"Leadership",
	}, s.Skills)
	assert.Equal(t, []any{
		map[string]any{"title": "resumerecon", "description": "Suggestion reconciler\nWritten in Go"},
	}, s.Projects)
	assert.Equal(t, []any{
		map[string]any{"title": "CKA", "issuer": "CNCF", "year": "2022"},
	}, s.Certifications)
}

func TestParse_Empty(t *testing.T) {
	for _, input := range []string{"", "  \n\n "} {
		res := Default().Parse(input)
		assert.Equal(t, types.EmptySections(), res.Value)
		assert.Empty(t, res.Warnings)
	}
}

func TestParse_UnknownHeaderAndPreamble(t *testing.T) {
	text := "Jane Doe\njane@example.com\n\nHOBBIES:\nChess\n\nWORK EXPERIENCE:\nEngineer\nBuilt things"

	res := Default().Parse(text)
	assert.Equal(t, []WarningCode{WarnContentBeforeHeader, WarnUnknownHeader}, res.Codes())
	assert.Equal(t, []any{map[string]any{"title": "Engineer", "description": "Built things"}}, res.Value.Experience)
	assert.Empty(t, res.Value.Skills)
}

func TestParse_RepeatedHeaderAppends(t *testing.T) {
	text := "SKILLS:\nGo\n\nSUMMARY:\nHi\n\nSKILLS:\nRust"

	res := Default().Parse(text)
	assert.Equal(t, []any{"Go", "Rust"}, res.Value.Skills)
	assert.Equal(t, "Hi", res.Value.Summary)
}

func TestRender_ParseIsStable(t *testing.T) {
	r := Default()
	first := r.Parse(sampleResume).Value
	second := r.Parse(Render(first)).Value
	assert.Equal(t, first, second)
}

func TestGenerateThenParse_RecoversSections(t *testing.T) {
	r := Default()
	suggestions := []types.Suggestion{
		{ID: "1", Section: "Profile", Type: types.SuggestionImprovement, Suggested: "Backend engineer."},
		{ID: "2", Section: "Work Experience", Type: types.SuggestionAddition,
			Suggested: map[string]any{"title": "Engineer", "company": "Globex", "description": "Scaled APIs"}},
		{ID: "3", Section: "education", Type: types.SuggestionAddition, Suggested: "State University - BSc"},
		{ID: "4", Section: "skills", Type: types.SuggestionReplace, Suggested: `{"languages": ["Go", "SQL"]}`},
		{ID: "5", Section: "projects", Type: types.SuggestionAddition, Suggested: []any{"Side project"}},
		{ID: "6", Section: "certificates", Type: types.SuggestionAddition,
			Suggested: map[string]any{"title": "CKAD", "issuer": "CNCF"}},
	}
	acceptedIDs := types.AcceptAll(suggestions)

	structured := r.Structure(suggestions, acceptedIDs, nil).Value
	text := r.GenerateText(suggestions, acceptedIDs, nil).Value
	parsed := r.Parse(text)

	assert.Empty(t, parsed.Warnings)
	assert.Equal(t, structured.NonEmptyKeys(), parsed.Value.NonEmptyKeys())
	assert.Equal(t, structured.Summary, parsed.Value.Summary)
	assert.Equal(t, []any{map[string]any{"title": "Engineer", "company": "Globex", "description": "Scaled APIs"}},
		parsed.Value.Experience)
	assert.Equal(t, []any{map[string]any{"languages": []any{"Go", "SQL"}}}, parsed.Value.Skills)
}

func TestRender_Fallbacks(t *testing.T) {
	s := types.EmptySections()
	s.Experience = []any{map[string]any{"employer": "Initech"}, 7}
	s.Skills = []any{[]any{"Go", "Rust"}}

	text := Render(s)
	assert.Equal(t, "EXPERIENCE:\n{\"employer\":\"Initech\"}\n\n7\n\nSKILLS:\n[\"Go\",\"Rust\"]", text)
}

func TestParse_HeaderShapedBodyLines(t *testing.T) {
	text := "SUMMARY:\nCORE FOCUS:\nDistributed systems and APIs\n\n" +
		"EXPERIENCE:\nEngineer at Acme\nKEY ACHIEVEMENTS:\nCut infra costs by 30%"

	res := Default().Parse(text)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, "CORE FOCUS:\nDistributed systems and APIs", res.Value.Summary)
	assert.Equal(t, []any{map[string]any{
		"title":       "Engineer",
		"company":     "Acme",
		"description": "KEY ACHIEVEMENTS:\nCut infra costs by 30%",
	}}, res.Value.Experience)
}

func TestRender_EscapesKnownHeadersInBodies(t *testing.T) {
	r := Default()
	s := types.EmptySections()
	s.Summary = "Backend engineer.\nSKILLS:\nGo, Kubernetes"
	s.Experience = []any{map[string]any{"title": "Engineer", "description": "EDUCATION:\nmentored juniors"}}

	res := r.Render(s)
	assert.Equal(t, "SUMMARY:\nBackend engineer.\nSkills:\nGo, Kubernetes\n\n"+
		"EXPERIENCE:\nEngineer\nEducation:\nmentored juniors", res.Value)
	assert.Equal(t, []WarningCode{WarnHeaderEscaped, WarnHeaderEscaped}, res.Codes())
	assert.Equal(t, "summary", res.Warnings[0].Section)

	parsed := r.Parse(res.Value).Value
	assert.Equal(t, []string{"summary", "experience"}, parsed.NonEmptyKeys())
	assert.Equal(t, "Backend engineer.\nSkills:\nGo, Kubernetes", parsed.Summary)
}

func TestRender_UnslottedFieldsBecomeLines(t *testing.T) {
	r := Default()
	s := types.EmptySections()
	s.Experience = []any{map[string]any{
		"title":      "Engineer",
		"company":    "Acme",
		"highlights": []any{"Cut costs", "Led migration"},
		"location":   "Berlin",
		"remote":     "",
	}}
	s.Projects = []any{map[string]any{"name": "resumerecon", "technologies": []any{"Go", "OTel"}}}

	res := r.Render(s)
	assert.Equal(t, "EXPERIENCE:\nEngineer at Acme\nhighlights: Cut costs, Led migration\nlocation: Berlin\n\n"+
		"PROJECTS:\nresumerecon\ntechnologies: Go, OTel", res.Value)
	require.Equal(t, []WarningCode{WarnFieldsFlattened, WarnFieldsFlattened}, res.Codes())
	assert.Contains(t, res.Warnings[0].Message, "highlights, location")
	assert.Equal(t, "projects", res.Warnings[1].Section)

	parsed := r.Parse(res.Value).Value
	assert.Equal(t, []any{map[string]any{
		"title":       "Engineer",
		"company":     "Acme",
		"description": "highlights: Cut costs, Led migration\nlocation: Berlin",
	}}, parsed.Experience)
	assert.Equal(t, []any{map[string]any{"title": "resumerecon", "description": "technologies: Go, OTel"}}, parsed.Projects)
}

func TestGenerateThenParse_AwkwardPayloads(t *testing.T) {
	tests := []struct {
		name        string
		suggestions []types.Suggestion
		warnings    []WarningCode
	}{
		{
			name: "uppercase colon lines in text payloads",
			suggestions: []types.Suggestion{
				{ID: "s", Section: "summary", Type: types.SuggestionImprovement, Suggested: "CORE FOCUS:\nDistributed systems and APIs"},
				{ID: "e", Section: "experience", Type: types.SuggestionAddition, Suggested: "KEY ACHIEVEMENTS:\nCut infra costs by 30%"},
			},
		},
		{
			name: "known header inside a summary",
			suggestions: []types.Suggestion{
				{ID: "s", Section: "summary", Type: types.SuggestionReplace, Suggested: "Generalist.\nPROJECTS:\nmany"},
			},
			warnings: []WarningCode{WarnHeaderEscaped},
		},
		{
			name: "maps with unknown keys",
			suggestions: []types.Suggestion{
				{ID: "e", Section: "experience", Type: types.SuggestionAddition,
					Suggested: map[string]any{"title": "Engineer", "company": "Acme", "location": "Berlin"}},
				{ID: "c", Section: "certifications", Type: types.SuggestionAddition,
					Suggested: map[string]any{"title": "CKA", "url": "https://example.com/cka"}},
			},
			warnings: []WarningCode{WarnFieldsFlattened, WarnFieldsFlattened},
		},
		{
			name: "experience description with blank lines",
			suggestions: []types.Suggestion{
				{ID: "e", Section: "experience", Type: types.SuggestionAddition,
					Suggested: map[string]any{"title": "Engineer", "company": "Acme", "description": "Led the team\n\n\nShipped v2"}},
				{ID: "k", Section: "skills", Type: types.SuggestionAddition, Suggested: []any{"Go"}},
			},
		},
	}

	r := Default()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accepted := types.AcceptAll(tt.suggestions)
			structured := r.Structure(tt.suggestions, accepted, nil)
			generated := r.GenerateText(tt.suggestions, accepted, nil)
			parsed := r.Parse(generated.Value)

			assert.Equal(t, tt.warnings, warningCodesOrNil(generated.Codes()))
			assert.Empty(t, parsed.Warnings)
			assert.Equal(t, structured.Value.NonEmptyKeys(), parsed.Value.NonEmptyKeys())
		})
	}

	t.Run("blank lines keep one entry", func(t *testing.T) {
		suggestions := tests[3].suggestions
		parsed := r.Parse(r.GenerateText(suggestions, types.AcceptAll(suggestions), nil).Value)
		assert.Equal(t, []any{map[string]any{
			"title": "Engineer", "company": "Acme", "description": "Led the team\nShipped v2",
		}}, parsed.Value.Experience)
	})
}

func warningCodesOrNil(codes []WarningCode) []WarningCode {
	if len(codes) == 0 {
		return nil
	}
	return codes
}
