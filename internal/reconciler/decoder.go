package reconciler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"regexp"
	"strings"
)

// Kind tags which decoding stage produced a normalized array
type Kind int

const (
	KindNull Kind = iota
	KindArray
	KindFragments
	KindJSON
	KindCleanedJSON
	KindRawText
	KindScalar
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindArray:
		return "array"
	case KindFragments:
		return "fragments"
	case KindJSON:
		return "json"
	case KindCleanedJSON:
		return "cleaned_json"
	case KindRawText:
		return "raw_text"
	case KindScalar:
		return "scalar"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Decoded is the output of the normalizing decoder
type Decoded struct {
	Kind  Kind  `json:"kind"`
	Items []any `json:"items"`
}

var (
	itemDelimiters  = regexp.MustCompile(`\r?\n|;|[•●▪◦‣]`)
	listMarker      = regexp.MustCompile(`^(?:[-*+]|\d+[.)])\s+`)
	bareNumber      = regexp.MustCompile(`^\d+[.)]?$`)
	codeFenceOpen   = regexp.MustCompile("^```[a-zA-Z]*\\s*")
	codeFenceClose  = regexp.MustCompile("\\s*```$")
	smartQuoteFixer = strings.NewReplacer(
		"“", `"`, "”", `"`, "„", `"`, "«", `"`, "»", `"`,
		"‘", "'", "’", "'", "‚", "'",
	)
)

// Normalize coerces arbitrary suggestion content into an array of items
func (r *Reconciler) Normalize(content any) Result[[]any] {
	decoded, ws := r.Decode(content)
	return Result[[]any]{Value: decoded.Items, Warnings: ws}
}

// Decode runs content through the staged decoder. Every stage is total:
// whatever the input, a non-nil item slice comes back.
func (r *Reconciler) Decode(content any) (Decoded, []Warning) {
	var ws warnings

	switch v := content.(type) {
	case nil:
		return Decoded{Kind: KindNull, Items: []any{}}, nil
	case string:
		d := r.decodeString(v, &ws)
		return d, ws
	case json.RawMessage:
		d := r.decodeString(string(v), &ws)
		return d, ws
	case []byte:
		d := r.decodeString(string(v), &ws)
		return d, ws
	case []any:
		d := r.decodeArray(v, &ws)
		return d, ws
	case []string:
		items := make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
		d := r.decodeArray(items, &ws)
		return d, ws
	}

	rv := reflect.ValueOf(content)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		d := r.decodeArray(items, &ws)
		return d, ws
	}

	return Decoded{Kind: KindScalar, Items: []any{content}}, nil
}

// decodeArray returns arrays unchanged unless they look like a JSON object
// that was split into string pieces upstream.
//
// The fragment heuristic is provisional: it reconstructs a known upstream
// defect and goes away once payloads are validated at the source.
func (r *Reconciler) decodeArray(items []any, ws *warnings) Decoded {
	if items == nil {
		items = []any{}
	}
	if !looksFragmented(items) {
		return Decoded{Kind: KindArray, Items: items}
	}
	if !r.opts.ReconstructFragments {
		ws.add(WarnFragmentsUnresolved, "array of %d items looks like split JSON; reconstruction disabled", len(items))
		return Decoded{Kind: KindArray, Items: items}
	}

	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = stringify(item)
	}
	for _, sep := range []string{"", " "} {
		if obj, ok := parseObject(strings.Join(parts, sep)); ok {
			ws.add(WarnFragmentsReconstructed, "rejoined %d fragments into one object", len(items))
			return Decoded{Kind: KindFragments, Items: []any{obj}}
		}
	}

	ws.add(WarnFragmentsUnresolved, "array of %d items looks like split JSON but could not be rejoined", len(items))
	return Decoded{Kind: KindArray, Items: items}
}

func looksFragmented(items []any) bool {
	if len(items) == 0 {
		return false
	}
	first, ok := items[0].(string)
	return ok && strings.Contains(first, "{")
}

func parseObject(s string) (map[string]any, bool) {
	v, err := decodeJSON(s)
	if err != nil {
		return nil, false
	}
	obj, ok := v.(map[string]any)
	return obj, ok
}

func (r *Reconciler) decodeString(s string, ws *warnings) Decoded {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Decoded{Kind: KindNull, Items: []any{}}
	}

	if v, err := decodeJSON(trimmed); err == nil {
		return Decoded{Kind: KindJSON, Items: jsonItems(v)}
	}

	cleaned := cleanJSONText(trimmed)
	if v, err := decodeJSON(cleaned); err == nil {
		ws.add(WarnCleanedJSON, "content parsed as JSON after cleanup")
		return Decoded{Kind: KindCleanedJSON, Items: jsonItems(v)}
	}

	if strings.HasPrefix(cleaned, "{") || strings.HasPrefix(cleaned, "[") {
		ws.add(WarnMalformedJSON, "content looks like JSON but does not parse; treated as text")
	}

	return Decoded{Kind: KindRawText, Items: r.splitText(trimmed)}
}

func jsonItems(v any) []any {
	switch t := v.(type) {
	case nil:
		return []any{}
	case []any:
		return t
	default:
		return []any{t}
	}
}

// splitText breaks free text into list items on line, bullet and semicolon
// boundaries
func (r *Reconciler) splitText(s string) []any {
	items := []any{}
	for _, part := range itemDelimiters.Split(s, -1) {
		part = strings.TrimSpace(part)
		if part == "" || bareNumber.MatchString(part) {
			continue
		}
		part = strings.TrimSpace(listMarker.ReplaceAllString(part, ""))
		if part == "" || r.isHeaderEcho(part) {
			continue
		}
		items = append(items, part)
	}
	return items
}

// isHeaderEcho reports whether a line only repeats a section header
func (r *Reconciler) isHeaderEcho(line string) bool {
	if !strings.HasSuffix(line, ":") {
		return false
	}
	_, ok := r.aliases.Resolve(line)
	return ok
}

// cleanJSONText strips markdown fences, line breaks and typographic quotes
// that commonly wrap model output
func cleanJSONText(s string) string {
	s = codeFenceOpen.ReplaceAllString(s, "")
	s = codeFenceClose.ReplaceAllString(s, "")
	s = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ").Replace(s)
	s = smartQuoteFixer.Replace(s)
	return strings.TrimSpace(s)
}

// decodeJSON parses a single JSON document keeping numbers as json.Number
func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if err := dec.Decode(new(json.RawMessage)); err != io.EOF {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return v, nil
}

// stringify renders any value as text: strings as-is, everything else as
// compact JSON with a fmt fallback
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case fmt.Stringer:
		return t.String()
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimSpace(buf.String())
}
