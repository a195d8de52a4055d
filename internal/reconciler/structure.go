package reconciler

import (
	"strings"

	"resumerecon/internal/types"
)

// accepted is a suggestion that passed the accepted-set filter, resolved
// to its canonical section with its effective payload
type accepted struct {
	types.Suggestion
	section Section
	payload any
}

// group filters suggestions down to accepted ones and buckets them by
// canonical section, preserving input order inside each bucket
func (r *Reconciler) group(suggestions []types.Suggestion, acceptedIDs types.AcceptedSet, edited types.EditedText, ws *warnings) map[Section][]accepted {
	groups := make(map[Section][]accepted)
	for _, s := range suggestions {
		if !acceptedIDs.Has(s.ID) {
			continue
		}
		section, ok := r.aliases.Resolve(s.Section)
		if !ok {
			ws.addFor(s.ID, s.Section, WarnUnknownSection, "section %q is not recognized; suggestion dropped", s.Section)
			continue
		}
		switch s.Type {
		case types.SuggestionAddition, types.SuggestionRemoval,
			types.SuggestionImprovement, types.SuggestionReplace:
		default:
			ws.addFor(s.ID, string(section), WarnUnknownType, "suggestion type %q is not recognized; suggestion dropped", s.Type)
			continue
		}

		payload := s.Suggested
		if override, ok := edited.Lookup(s.ID); ok {
			payload = override
		}
		groups[section] = append(groups[section], accepted{Suggestion: s, section: section, payload: payload})
	}
	return groups
}

// Structure merges accepted suggestions into resume sections.
// Per section, replace and improvement payloads form the base, additions
// are appended after it, and removals then filter out every item whose
// text contains the removal's original text.
func (r *Reconciler) Structure(suggestions []types.Suggestion, acceptedIDs types.AcceptedSet, edited types.EditedText) Result[types.StructuredResumeSections] {
	var ws warnings
	out := types.EmptySections()

	groups := r.group(suggestions, acceptedIDs, edited, &ws)
	for _, section := range Sections {
		group := groups[section]
		if len(group) == 0 {
			continue
		}
		items := r.mergeSection(section, group, &ws)
		if section == SectionSummary {
			out.Summary = joinSummary(items)
			continue
		}
		setSection(&out, section, items)
	}

	return Result[types.StructuredResumeSections]{Value: out, Warnings: ws}
}

func (r *Reconciler) mergeSection(section Section, group []accepted, ws *warnings) []any {
	var base, added []any
	var removals []accepted

	for _, a := range group {
		switch a.Type {
		case types.SuggestionReplace, types.SuggestionImprovement:
			base = append(base, r.payloadItems(a, ws)...)
		case types.SuggestionAddition:
			added = append(added, r.payloadItems(a, ws)...)
		case types.SuggestionRemoval:
			removals = append(removals, a)
		}
	}

	items := make([]any, 0, len(base)+len(added))
	items = append(items, base...)
	items = append(items, added...)

	for _, rm := range removals {
		needle := strings.TrimSpace(stringify(rm.Original))
		if needle == "" {
			ws.addFor(rm.ID, string(section), WarnEmptyRemoval, "removal has no original text to match")
			continue
		}
		kept := make([]any, 0, len(items))
		for _, item := range items {
			if !strings.Contains(stringify(item), needle) {
				kept = append(kept, item)
			}
		}
		if len(kept) == len(items) {
			ws.addFor(rm.ID, string(section), WarnUnmatchedRemoval, "no item contains %q", needle)
		}
		items = kept
	}
	return items
}

// payloadItems decodes one suggestion's payload into section items
func (r *Reconciler) payloadItems(a accepted, ws *warnings) []any {
	if isBlank(a.payload) {
		ws.addFor(a.ID, string(a.section), WarnEmptyPayload, "%s suggestion has no content", a.Type)
		return nil
	}
	if a.section == SectionSummary {
		return r.summaryCandidates(a, ws)
	}
	decoded, dws := r.Decode(a.payload)
	*ws = append(*ws, tag(dws, a.ID, string(a.section))...)
	return decoded.Items
}

// summaryCandidates splits a summary payload into paragraphs. Strings
// holding JSON are decoded first; plain text is kept verbatim.
func (r *Reconciler) summaryCandidates(a accepted, ws *warnings) []any {
	v := a.payload
	if s, ok := v.(string); ok {
		decoded, dws := r.Decode(s)
		if decoded.Kind == KindJSON || decoded.Kind == KindCleanedJSON {
			*ws = append(*ws, tag(dws, a.ID, string(a.section))...)
			v = decoded.Items
		}
	}

	var out []any
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if s := strings.TrimSpace(stringify(item)); s != "" {
				out = append(out, s)
			}
		}
	default:
		if s := strings.TrimSpace(stringify(t)); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		ws.addFor(a.ID, string(a.section), WarnEmptyPayload, "%s suggestion has no content", a.Type)
	}
	return out
}

func joinSummary(items []any) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if s := strings.TrimSpace(stringify(item)); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}

func setSection(s *types.StructuredResumeSections, section Section, items []any) {
	if items == nil {
		items = []any{}
	}
	switch section {
	case SectionSummary:
		s.Summary = joinSummary(items)
	case SectionExperience:
		s.Experience = items
	case SectionEducation:
		s.Education = items
	case SectionSkills:
		s.Skills = items
	case SectionProjects:
		s.Projects = items
	case SectionCertifications:
		s.Certifications = items
	}
}

func sectionItems(s types.StructuredResumeSections, section Section) []any {
	switch section {
	case SectionExperience:
		return s.Experience
	case SectionEducation:
		return s.Education
	case SectionSkills:
		return s.Skills
	case SectionProjects:
		return s.Projects
	case SectionCertifications:
		return s.Certifications
	}
	return nil
}
