package types

import "strings"

// SuggestionType classifies how a suggestion changes a resume section
type SuggestionType string

const (
	SuggestionAddition    SuggestionType = "addition"
	SuggestionRemoval     SuggestionType = "removal"
	SuggestionImprovement SuggestionType = "improvement"
	SuggestionReplace     SuggestionType = "replace"
)

// Severity is an advisory priority attached to a suggestion
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Suggestion is a single AI-proposed edit to one resume section.
// Original and Suggested hold either plain text or a decoded JSON value.
type Suggestion struct {
	ID        string         `json:"id" validate:"required"`
	Section   string         `json:"section" validate:"required"`
	Type      SuggestionType `json:"type" validate:"required,oneof=addition removal improvement replace"`
	Original  any            `json:"original,omitempty"`
	Suggested any            `json:"suggested,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Severity  Severity       `json:"severity,omitempty" validate:"omitempty,oneof=low medium high"`
}

// SectionDiff groups suggestions under the section label the analyzer produced
type SectionDiff struct {
	Section     string       `json:"section"`
	Suggestions []Suggestion `json:"suggestions" validate:"dive"`
}

// AnalysisResponse is the upstream analysis payload
type AnalysisResponse struct {
	SectionDiffs []SectionDiff `json:"sectionDiffs" validate:"dive"`
}

// Flatten returns every suggestion in diff order. Suggestions without a
// section label inherit the label of their diff.
func (a AnalysisResponse) Flatten() []Suggestion {
	var out []Suggestion
	for _, diff := range a.SectionDiffs {
		for _, s := range diff.Suggestions {
			if strings.TrimSpace(s.Section) == "" {
				s.Section = diff.Section
			}
			out = append(out, s)
		}
	}
	return out
}

// AcceptedSet holds the ids of suggestions a reviewer approved
type AcceptedSet map[string]struct{}

// NewAcceptedSet builds a set from ids
func NewAcceptedSet(ids ...string) AcceptedSet {
	set := make(AcceptedSet, len(ids))
	for _, id := range ids {
		set.Add(id)
	}
	return set
}

// AcceptAll builds a set containing every suggestion id
func AcceptAll(suggestions []Suggestion) AcceptedSet {
	set := make(AcceptedSet, len(suggestions))
	for _, s := range suggestions {
		set.Add(s.ID)
	}
	return set
}

func (a AcceptedSet) Add(id string) {
	id = strings.TrimSpace(id)
	if id != "" {
		a[id] = struct{}{}
	}
}

func (a AcceptedSet) Remove(id string) {
	delete(a, id)
}

func (a AcceptedSet) Has(id string) bool {
	_, ok := a[id]
	return ok
}

// IDs returns the accepted ids in no particular order
func (a AcceptedSet) IDs() []string {
	ids := make([]string, 0, len(a))
	for id := range a {
		ids = append(ids, id)
	}
	return ids
}

// EditedText maps suggestion id to a reviewer override of its suggested value
type EditedText map[string]string

// Lookup returns the override for id if one exists
func (e EditedText) Lookup(id string) (string, bool) {
	if e == nil {
		return "", false
	}
	v, ok := e[id]
	return v, ok
}

// StructuredResumeSections is the persisted shape of a reconciled resume
type StructuredResumeSections struct {
	Summary        string `json:"summary"`
	Experience     []any  `json:"experience"`
	Education      []any  `json:"education"`
	Skills         []any  `json:"skills"`
	Projects       []any  `json:"projects"`
	Certifications []any  `json:"certifications"`
}

// EmptySections returns the all-empty shape with non-nil arrays so it
// encodes as [] rather than null
func EmptySections() StructuredResumeSections {
	return StructuredResumeSections{
		Experience:     []any{},
		Education:      []any{},
		Skills:         []any{},
		Projects:       []any{},
		Certifications: []any{},
	}
}

// IsEmpty reports whether no section carries content
func (s StructuredResumeSections) IsEmpty() bool {
	return len(s.NonEmptyKeys()) == 0
}

// NonEmptyKeys returns the JSON keys of sections with content, in render order
func (s StructuredResumeSections) NonEmptyKeys() []string {
	var keys []string
	if strings.TrimSpace(s.Summary) != "" {
		keys = append(keys, "summary")
	}
	if len(s.Experience) > 0 {
		keys = append(keys, "experience")
	}
	if len(s.Education) > 0 {
		keys = append(keys, "education")
	}
	if len(s.Skills) > 0 {
		keys = append(keys, "skills")
	}
	if len(s.Projects) > 0 {
		keys = append(keys, "projects")
	}
	if len(s.Certifications) > 0 {
		keys = append(keys, "certifications")
	}
	return keys
}

// ImprovedResumeRequest is the body persisted by the backend's improved resume endpoint
type ImprovedResumeRequest struct {
	AcceptedSuggestions map[string]any `json:"acceptedSuggestions"`
	FinalResumeText     string         `json:"finalResumeText"`
	OriginalResumeID    string         `json:"originalResumeId" validate:"required"`
	Title               string         `json:"title" validate:"required"`
	Metadata            map[string]any `json:"metadata,omitempty"`
	ImprovementScore    float64        `json:"improvementScore" validate:"gte=0,lte=100"`
}

// ImprovedResumeResponse is what the backend returns after persisting
type ImprovedResumeResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// RenderRequest asks the rendering backend for a PDF
type RenderRequest struct {
	FinalResumeText string                    `json:"finalResumeText,omitempty"`
	Structured      *StructuredResumeSections `json:"structured,omitempty"`
	Template        string                    `json:"template,omitempty"`
}

// SuggestInput is the input for AI suggestion generation
type SuggestInput struct {
	ResumeText     string `json:"resumeText" validate:"required"`
	JobDescription string `json:"jobDescription,omitempty"`
}
