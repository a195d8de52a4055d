package reconciler

import "resumerecon/internal/types"

// AcceptedData collects the raw accepted payloads per canonical section
// for persistence metadata. Removals are not included. A section with one
// payload maps to that value, a section with several to an array.
func (r *Reconciler) AcceptedData(suggestions []types.Suggestion, acceptedIDs types.AcceptedSet, edited types.EditedText) Result[map[string]any] {
	var ws warnings
	groups := r.group(suggestions, acceptedIDs, edited, &ws)

	out := make(map[string]any)
	for _, section := range Sections {
		var payloads []any
		for _, a := range groups[section] {
			if a.Type == types.SuggestionRemoval || a.payload == nil {
				continue
			}
			payloads = append(payloads, a.payload)
		}
		switch len(payloads) {
		case 0:
		case 1:
			out[string(section)] = payloads[0]
		default:
			out[string(section)] = payloads
		}
	}
	return Result[map[string]any]{Value: out, Warnings: ws}
}
