// Package reconciler merges accepted resume suggestions into structured
// sections, flattens them to the text interchange format and parses that
// format back.
//
// Nothing in this package returns an error for malformed input. Every
// operation returns a Result whose Warnings describe what was dropped,
// repaired or guessed.
package reconciler

// Options tune decoder heuristics
type Options struct {
	// ReconstructFragments enables rejoining arrays of string pieces that
	// together form one JSON object
	ReconstructFragments bool
}

// DefaultOptions returns the options used when none are configured
func DefaultOptions() Options {
	return Options{ReconstructFragments: true}
}

// Reconciler is safe for concurrent use
type Reconciler struct {
	aliases *AliasTable
	opts    Options
}

// New creates a reconciler. A nil alias table means the built-in aliases.
func New(aliases *AliasTable, opts Options) *Reconciler {
	if aliases == nil {
		aliases = MustAliasTable(nil)
	}
	return &Reconciler{aliases: aliases, opts: opts}
}

// Default returns a reconciler with built-in aliases and default options
func Default() *Reconciler {
	return New(nil, DefaultOptions())
}

// Aliases exposes the alias table so callers can reload it
func (r *Reconciler) Aliases() *AliasTable {
	return r.aliases
}
