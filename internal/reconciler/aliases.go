package reconciler

import (
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
)

// Section is a canonical resume section
type Section string

const (
	SectionSummary        Section = "summary"
	SectionExperience     Section = "experience"
	SectionEducation      Section = "education"
	SectionSkills         Section = "skills"
	SectionProjects       Section = "projects"
	SectionCertifications Section = "certifications"
)

// Sections lists the canonical sections in render order
var Sections = []Section{
	SectionSummary,
	SectionExperience,
	SectionEducation,
	SectionSkills,
	SectionProjects,
	SectionCertifications,
}

// Header returns the flattened text header for the section, e.g. "SKILLS:"
func (s Section) Header() string {
	return strings.ToUpper(string(s)) + ":"
}

// ParseSection returns the canonical section with the given name
func ParseSection(name string) (Section, bool) {
	for _, s := range Sections {
		if string(s) == name {
			return s, true
		}
	}
	return "", false
}

// DefaultAliases is the built-in label table. Keys are canonical sections,
// values are labels already in normalized form.
var DefaultAliases = map[Section][]string{
	SectionSummary: {
		"summary", "profile", "about", "about me", "objective", "career objective",
		"professional summary", "professional profile", "overview",
	},
	SectionExperience: {
		"experience", "work experience", "employment", "employment history",
		"work history", "professional experience", "career history",
	},
	SectionEducation: {
		"education", "academic background", "academics", "education and training",
	},
	SectionSkills: {
		"skills", "technical skills", "core competencies", "competencies", "expertise",
	},
	SectionProjects: {
		"projects", "personal projects", "key projects", "portfolio",
	},
	SectionCertifications: {
		"certifications", "certificates", "certification", "licenses",
		"licenses and certifications",
	},
}

// AliasTable resolves free-text section labels to canonical sections.
// It is safe for concurrent use; Replace swaps the whole table.
type AliasTable struct {
	mu      sync.RWMutex
	lookup  map[string]Section
	extra   map[string][]string
	version int
}

// NewAliasTable builds a table from DefaultAliases plus extra entries keyed
// by canonical section name
func NewAliasTable(extra map[string][]string) (*AliasTable, error) {
	lookup, err := buildLookup(extra)
	if err != nil {
		return nil, err
	}
	return &AliasTable{lookup: lookup, extra: maps.Clone(extra), version: 1}, nil
}

// MustAliasTable is NewAliasTable for tables known to be valid
func MustAliasTable(extra map[string][]string) *AliasTable {
	t, err := NewAliasTable(extra)
	if err != nil {
		panic(err)
	}
	return t
}

func buildLookup(extra map[string][]string) (map[string]Section, error) {
	lookup := make(map[string]Section)
	for section, labels := range DefaultAliases {
		for _, label := range labels {
			lookup[NormalizeLabel(label)] = section
		}
	}

	// Sorted so that a label listed under two sections fails deterministically
	names := make([]string, 0, len(extra))
	for name := range extra {
		names = append(names, name)
	}
	sort.Strings(names)

	seen := make(map[string]Section)
	for _, name := range names {
		section, ok := ParseSection(NormalizeLabel(name))
		if !ok {
			return nil, fmt.Errorf("unknown section %q in alias table", name)
		}
		for _, label := range extra[name] {
			key := NormalizeLabel(label)
			if key == "" {
				continue
			}
			if prev, dup := seen[key]; dup && prev != section {
				return nil, fmt.Errorf("alias %q maps to both %s and %s", label, prev, section)
			}
			seen[key] = section
			lookup[key] = section
		}
	}
	return lookup, nil
}

// Replace rebuilds the table with new extra aliases. On error the current
// table is left untouched.
func (t *AliasTable) Replace(extra map[string][]string) error {
	lookup, err := buildLookup(extra)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.lookup = lookup
	t.extra = maps.Clone(extra)
	t.version++
	t.mu.Unlock()
	return nil
}

// Resolve maps a label to its canonical section. An exact alias wins;
// otherwise a label naming exactly one canonical section as a word
// ("Technical Skills & Tools") resolves to that section.
func (t *AliasTable) Resolve(label string) (Section, bool) {
	key := NormalizeLabel(label)
	if key == "" {
		return "", false
	}

	t.mu.RLock()
	section, ok := t.lookup[key]
	t.mu.RUnlock()
	if ok {
		return section, true
	}

	var found []Section
	for _, s := range Sections {
		name := string(s)
		singular := strings.TrimSuffix(name, "s")
		for _, word := range strings.Fields(key) {
			if word == name || word == singular {
				found = append(found, s)
				break
			}
		}
	}
	if len(found) == 1 {
		return found[0], true
	}
	return "", false
}

// AliasStats describes the table for the stats endpoint
type AliasStats struct {
	Labels  int `json:"labels"`
	Custom  int `json:"custom"`
	Version int `json:"version"`
}

func (t *AliasTable) Stats() AliasStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	custom := 0
	for _, labels := range t.extra {
		custom += len(labels)
	}
	return AliasStats{Labels: len(t.lookup), Custom: custom, Version: t.version}
}

// NormalizeLabel lowercases a label, drops a trailing colon, maps "_", "-"
// and "&" to words and collapses whitespace
func NormalizeLabel(label string) string {
	s := strings.ToLower(strings.TrimSpace(label))
	s = strings.TrimSuffix(s, ":")
	s = strings.NewReplacer("_", " ", "-", " ", "&", " and ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
