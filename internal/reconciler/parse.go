package reconciler

import (
	"regexp"
	"strings"

	"resumerecon/internal/types"
)

var (
	headerLine     = regexp.MustCompile(`^([A-Z][A-Z0-9 &/_-]*):$`)
	entrySeparator = regexp.MustCompile(`\n[ \t]*\n+`)
	experienceHead = regexp.MustCompile(`^(.+?) at (.+?)(?: \(([^()]*)\))?$`)
)

type parseState int

const (
	stateBeforeHeader parseState = iota
	stateInSection
	stateIgnored
)

// Parse reads flattened resume text back into sections. Once a known
// section has started, header-shaped lines that name no known section are
// body content. Before that, content under them is skipped with a warning.
func (r *Reconciler) Parse(text string) Result[types.StructuredResumeSections] {
	var ws warnings
	out := types.EmptySections()
	if strings.TrimSpace(text) == "" {
		return Result[types.StructuredResumeSections]{Value: out}
	}

	bodies := make(map[Section][]string)
	state := stateBeforeHeader
	var current Section
	orphanReported := false

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if m := headerLine.FindStringSubmatch(trimmed); m != nil {
			section, ok := r.aliases.Resolve(m[1])
			if !ok && state == stateInSection {
				bodies[current] = append(bodies[current], line)
				continue
			}
			if !ok {
				ws.add(WarnUnknownHeader, "header %q is not a known section; content skipped", trimmed)
				state = stateIgnored
				continue
			}
			if len(bodies[section]) > 0 {
				bodies[section] = append(bodies[section], "")
			}
			current, state = section, stateInSection
			continue
		}

		switch state {
		case stateInSection:
			bodies[current] = append(bodies[current], line)
		case stateBeforeHeader:
			if trimmed != "" && !orphanReported {
				ws.add(WarnContentBeforeHeader, "text before the first section header was skipped")
				orphanReported = true
			}
		}
	}

	for _, section := range Sections {
		body := strings.TrimSpace(strings.Join(bodies[section], "\n"))
		if body == "" {
			continue
		}
		if section == SectionSummary {
			out.Summary = body
			continue
		}

		var items []any
		if section == SectionSkills {
			items = parseSkills(body)
		} else {
			for _, entry := range splitEntries(body) {
				items = append(items, parseEntry(section, entry))
			}
		}
		if len(items) == 0 {
			ws.addFor("", string(section), WarnEmptyPayload, "section body produced no entries")
			continue
		}
		setSection(&out, section, items)
	}

	return Result[types.StructuredResumeSections]{Value: out, Warnings: ws}
}

func splitEntries(body string) []string {
	var entries []string
	for _, e := range entrySeparator.Split(body, -1) {
		if e = strings.TrimSpace(e); e != "" {
			entries = append(entries, e)
		}
	}
	return entries
}

func parseEntry(section Section, entry string) map[string]any {
	lines := strings.Split(entry, "\n")
	first := strings.TrimSpace(lines[0])
	rest := trimLines(lines[1:])

	switch section {
	case SectionExperience:
		item := map[string]any{"title": first, "description": rest}
		if m := experienceHead.FindStringSubmatch(first); m != nil {
			item["title"] = strings.TrimSpace(m[1])
			item["company"] = strings.TrimSpace(m[2])
			if dates := strings.TrimSpace(m[3]); dates != "" {
				item["dates"] = dates
			}
		}
		return item

	case SectionProjects:
		title, description, _ := strings.Cut(first, " - ")
		description = strings.TrimSpace(description)
		if rest != "" {
			if description != "" {
				description += "\n"
			}
			description += rest
		}
		return map[string]any{"title": strings.TrimSpace(title), "description": description}

	case SectionEducation:
		return splitDashed(first, rest, "school", "degree", "duration")

	case SectionCertifications:
		return splitDashed(first, rest, "title", "issuer", "year")
	}
	return map[string]any{"title": first, "description": rest}
}

// splitDashed maps "a - b - c" onto keys; trailing lines become a description
func splitDashed(first, rest string, keys ...string) map[string]any {
	parts := strings.SplitN(first, " - ", len(keys))
	item := make(map[string]any, len(keys)+1)
	for i, key := range keys {
		if i < len(parts) {
			if v := strings.TrimSpace(parts[i]); v != "" || i == 0 {
				item[key] = v
			}
		}
	}
	if rest != "" {
		item["description"] = rest
	}
	return item
}

// parseSkills turns "category: a, b" lines into one category map placed
// first; lines without a category stay plain strings
func parseSkills(body string) []any {
	groups := make(map[string]any)
	var plain []any
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(listMarker.ReplaceAllString(strings.TrimSpace(line), ""))
		if line == "" {
			continue
		}
		category, values, found := strings.Cut(line, ":")
		category = strings.ToLower(strings.TrimSpace(category))
		if !found || category == "" || strings.TrimSpace(values) == "" {
			plain = append(plain, line)
			continue
		}
		existing, _ := groups[category].([]any)
		for _, v := range strings.Split(values, ",") {
			if v = strings.TrimSpace(v); v != "" {
				existing = append(existing, v)
			}
		}
		groups[category] = existing
	}

	var items []any
	if len(groups) > 0 {
		items = append(items, groups)
	}
	return append(items, plain...)
}

func trimLines(lines []string) string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, strings.TrimSpace(l))
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
