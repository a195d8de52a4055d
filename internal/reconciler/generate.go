package reconciler

import (
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"resumerecon/internal/types"
)

var defaultReconciler = sync.OnceValue(Default)

// GenerateText structures the accepted suggestions and flattens the result
func (r *Reconciler) GenerateText(suggestions []types.Suggestion, acceptedIDs types.AcceptedSet, edited types.EditedText) Result[string] {
	structured := r.Structure(suggestions, acceptedIDs, edited)
	rendered := r.Render(structured.Value)
	return Result[string]{
		Value:    rendered.Value,
		Warnings: append(structured.Warnings, rendered.Warnings...),
	}
}

// Render flattens sections with the built-in aliases, discarding warnings
func Render(s types.StructuredResumeSections) string {
	return defaultReconciler().Render(s).Value
}

// RenderSection flattens one section's body without its header
func RenderSection(s types.StructuredResumeSections, section Section) string {
	var ws warnings
	return defaultReconciler().renderSection(s, section, &ws)
}

// Render flattens sections into the header-delimited text format. Empty
// sections are omitted; sections are separated by one blank line.
//
// Body lines that would read back as a section header are rewritten in
// sentence case, and map fields without a slot in an entry's layout are
// appended as "key: value" lines. Both are reported as warnings.
func (r *Reconciler) Render(s types.StructuredResumeSections) Result[string] {
	var ws warnings
	var blocks []string
	for _, section := range Sections {
		body := r.renderSection(s, section, &ws)
		if body == "" {
			continue
		}
		blocks = append(blocks, section.Header()+"\n"+body)
	}
	return Result[string]{Value: strings.Join(blocks, "\n\n"), Warnings: ws}
}

func (r *Reconciler) renderSection(s types.StructuredResumeSections, section Section, ws *warnings) string {
	if section == SectionSummary {
		return r.escapeHeaders(strings.TrimSpace(s.Summary), section, ws)
	}

	sep := "\n\n"
	if section == SectionSkills {
		sep = "\n"
	}

	var entries []string
	for _, item := range sectionItems(s, section) {
		entry := strings.TrimSpace(renderItem(section, item, ws))
		if entry == "" {
			continue
		}
		// a blank line inside an entry would split it in two on parse
		entry = entrySeparator.ReplaceAllString(entry, "\n")
		entries = append(entries, r.escapeHeaders(entry, section, ws))
	}
	return strings.Join(entries, sep)
}

// escapeHeaders rewrites body lines that Parse would take for a known
// section header
func (r *Reconciler) escapeHeaders(body string, section Section, ws *warnings) string {
	if !strings.Contains(body, ":") {
		return body
	}
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		m := headerLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		if _, ok := r.aliases.Resolve(m[1]); !ok {
			continue
		}
		lines[i] = sentenceCase(strings.TrimSpace(line))
		ws.addFor("", string(section), WarnHeaderEscaped, "body line %q reads as a section header; rewritten as %q", line, lines[i])
	}
	return strings.Join(lines, "\n")
}

func sentenceCase(s string) string {
	lower := strings.ToLower(s)
	first, size := utf8.DecodeRuneInString(lower)
	return string(unicode.ToUpper(first)) + lower[size:]
}

func renderItem(section Section, item any, ws *warnings) string {
	m, ok := item.(map[string]any)
	if !ok {
		return stringify(item)
	}
	if section == SectionSkills {
		if out := renderSkillGroups(m); out != "" {
			return out
		}
		return stringify(m)
	}

	f := &fields{m: m, used: make(map[string]bool, len(m))}
	var out string
	switch section {
	case SectionExperience:
		out = renderExperience(f)
	case SectionProjects:
		out = renderProject(f)
	case SectionEducation:
		out = withDescription(f, joinFields(f.get("school", "institution", "university"),
			f.get("degree", "program", "qualification"),
			f.get("duration", "dates", "year", "graduationYear")))
	case SectionCertifications:
		out = withDescription(f, joinFields(f.get("title", "name", "certification"),
			f.get("issuer", "organization", "authority"),
			f.get("year", "date", "issued")))
	}
	if out == "" {
		return stringify(m)
	}

	keys, lines := f.leftovers()
	if len(keys) == 0 {
		return out
	}
	ws.addFor("", string(section), WarnFieldsFlattened, "fields %s have no slot in the %s layout; rendered as description lines",
		strings.Join(keys, ", "), section)
	return out + "\n" + strings.Join(lines, "\n")
}

// fields reads an entry map and remembers which keys were rendered
type fields struct {
	m    map[string]any
	used map[string]bool
}

// get returns the first non-empty value among keys
func (f *fields) get(keys ...string) string {
	for _, k := range keys {
		v, ok := f.m[k]
		if !ok || v == nil {
			continue
		}
		if s := strings.TrimSpace(stringify(v)); s != "" {
			f.used[k] = true
			return s
		}
	}
	return ""
}

// leftovers renders every unused non-empty field as "key: value"
func (f *fields) leftovers() ([]string, []string) {
	var keys []string
	for k, v := range f.m {
		if !f.used[k] && valueText(v) != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = k + ": " + valueText(f.m[k])
	}
	return keys, lines
}

// valueText joins lists of scalars with commas and stringifies the rest
func valueText(v any) string {
	list, ok := v.([]any)
	if !ok {
		return strings.TrimSpace(stringify(v))
	}
	parts := make([]string, 0, len(list))
	for _, item := range list {
		if _, nested := item.(map[string]any); nested {
			return strings.TrimSpace(stringify(v))
		}
		if s := strings.TrimSpace(stringify(item)); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

func renderExperience(f *fields) string {
	title := f.get("title", "position", "role")
	if title == "" {
		return ""
	}
	head := title
	if company := f.get("company", "employer", "organization"); company != "" {
		head += " at " + company
		if dates := f.get("dates", "duration", "period"); dates != "" {
			head += " (" + dates + ")"
		}
	}
	if description := f.get("description", "summary", "details"); description != "" {
		return head + "\n" + description
	}
	return head
}

func renderProject(f *fields) string {
	title := f.get("title", "name")
	if title == "" {
		return ""
	}
	if description := f.get("description", "summary"); description != "" {
		return title + " - " + description
	}
	return title
}

// renderSkillGroups renders {"category": [values]} as "category: a, b" lines
func renderSkillGroups(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var lines []string
	for _, k := range keys {
		var values []string
		switch v := m[k].(type) {
		case []any:
			for _, item := range v {
				if s := strings.TrimSpace(stringify(item)); s != "" {
					values = append(values, s)
				}
			}
		case []string:
			values = v
		default:
			if s := strings.TrimSpace(stringify(v)); s != "" {
				values = append(values, s)
			}
		}
		if len(values) > 0 {
			lines = append(lines, k+": "+strings.Join(values, ", "))
		}
	}
	return strings.Join(lines, "\n")
}

func withDescription(f *fields, head string) string {
	if head == "" {
		return ""
	}
	if description := f.get("description", "details"); description != "" {
		return head + "\n" + description
	}
	return head
}

func joinFields(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return ""
	}
	return strings.Join(kept, " - ")
}
