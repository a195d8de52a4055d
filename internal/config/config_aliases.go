package config

import (
	"fmt"
	"maps"
	"slices"

	"resumerecon/internal/reconciler"

	"github.com/spf13/viper"
)

// aliasFile is the on-disk alias format (YAML or JSON):
//
//	aliases:
//	  experience: ["military service", "volunteering"]
type aliasFile struct {
	Aliases map[string][]string `mapstructure:"aliases"`
}

// LoadAliasFile reads extra section aliases from a YAML or JSON file
func LoadAliasFile(path string) (map[string][]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read alias file %s: %w", path, err)
	}

	var f aliasFile
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("failed to parse alias file %s: %w", path, err)
	}
	return f.Aliases, nil
}

// ResolveAliases merges inline aliases with those from the alias file.
// File entries are appended to inline entries for the same section.
func (r ReconcilerConfig) ResolveAliases() (map[string][]string, error) {
	merged := maps.Clone(r.Aliases)
	if merged == nil {
		merged = make(map[string][]string)
	}
	if r.AliasFile == "" {
		return merged, nil
	}

	fromFile, err := LoadAliasFile(r.AliasFile)
	if err != nil {
		return nil, err
	}
	for section, labels := range fromFile {
		merged[section] = append(slices.Clip(merged[section]), labels...)
	}
	return merged, nil
}

// NewReconciler builds a reconciler from configuration
func (r ReconcilerConfig) NewReconciler() (*reconciler.Reconciler, error) {
	aliases, err := r.ResolveAliases()
	if err != nil {
		return nil, err
	}
	table, err := reconciler.NewAliasTable(aliases)
	if err != nil {
		return nil, err
	}
	return reconciler.New(table, reconciler.Options{
		ReconstructFragments: r.ReconstructFragments,
	}), nil
}

func (r ReconcilerConfig) validate() error {
	if r.DebounceDelay < 0 {
		return fmt.Errorf("debounceDelay must not be negative")
	}
	_, err := r.NewReconciler()
	return err
}
