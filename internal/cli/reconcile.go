package cli

import (
	"fmt"

	"resumerecon/internal/common"
	"resumerecon/internal/config"
	"resumerecon/internal/errors"
	"resumerecon/internal/reconciler"
	"resumerecon/internal/types"

	"github.com/spf13/cobra"
)

// reconcileFlags are shared by every command that reconciles a suggestion file
type reconcileFlags struct {
	common.CommandConfig
	accept    []string
	acceptAll bool
	edits     string
	strict    bool
}

func (f *reconcileFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.OutputFile, "output", "o", "", "Output file path (default: stdout)")
	cmd.Flags().StringVar(&f.OutputFormat, "format", "", "Output format: json, text, or markdown")
	f.registerSelection(cmd)
	registerFormatCompletion(cmd)
}

// registerSelection adds the flags choosing and editing suggestions
func (f *reconcileFlags) registerSelection(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.accept, "accept", nil, "Accepted suggestion ids (repeatable or comma separated)")
	cmd.Flags().BoolVar(&f.acceptAll, "accept-all", false, "Accept every suggestion")
	cmd.Flags().StringVar(&f.edits, "edits", "", "JSON file mapping suggestion ids to reviewer-edited text")
	cmd.Flags().BoolVar(&f.strict, "strict", false, "Reject suggestion files that do not match the schema (overrides config)")
	cmd.MarkFlagsMutuallyExclusive("accept", "accept-all")
}

func (f *reconcileFlags) selection() common.Selection {
	return common.Selection{AcceptIDs: f.accept, AcceptAll: f.acceptAll, EditsFile: f.edits}
}

// resolve applies config defaults the flags left unset
func (f *reconcileFlags) resolve(cmd *cobra.Command, cfg *config.Config) error {
	f.MaxFileSize = cfg.App.MaxFileSize
	if !cmd.Flags().Changed("strict") {
		f.strict = cfg.Reconciler.StrictSchema
	}
	f.StrictSchema = f.strict
	return applyDefaultFormat(&f.CommandConfig, cfg)
}

// applyDefaultFormat fills in the configured default format and validates it
func applyDefaultFormat(cmdConfig *common.CommandConfig, cfg *config.Config) error {
	if cmdConfig.OutputFormat == "" {
		cmdConfig.OutputFormat = cfg.App.DefaultFormat
	}
	return common.ValidateOutputFormat(cmdConfig.OutputFormat, cfg.App.SupportedFormats)
}

func registerFormatCompletion(cmd *cobra.Command) {
	_ = cmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		cfg := getConfigFromContext(cmd.Context())
		return common.GetSupportedFormats(cfg.App.SupportedFormats), cobra.ShellCompDirectiveNoFileComp
	})
}

// newReconciler builds the configured reconciler for one CLI run
func newReconciler(cfg *config.Config, logger *errors.Logger) (*reconciler.Reconciler, error) {
	r, err := cfg.Reconciler.NewReconciler()
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "Invalid section alias configuration", err)
	}
	stats := r.Aliases().Stats()
	logger.Debug("Reconciler ready", "alias_labels", stats.Labels, "custom_aliases", stats.Custom,
		"reconstruct_fragments", cfg.Reconciler.ReconstructFragments)
	return r, nil
}

// newReconcileCommand builds a command running one reconciler operation
// over a suggestion file
func newReconcileCommand[T any](use, short, long, operation string, flags *reconcileFlags,
	pick func(r *reconciler.Reconciler) common.ReconcileFunc[T],
) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " [suggestions-file]",
		Short: short,
		Long:  long,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return flags.resolve(cmd, getConfigFromContext(cmd.Context()))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getConfigFromContext(cmd.Context())
			logger := getLoggerFromContext(cmd.Context())

			r, err := newReconciler(cfg, logger)
			if err != nil {
				return err
			}
			if err := common.RunReconcileCommand(logger, flags.CommandConfig, operation, args[0], flags.selection(), pick(r)); err != nil {
				return fmt.Errorf("failed to %s suggestions: %w", operation, err)
			}
			logger.Info("Reconcile completed successfully", "operation", operation)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

const suggestionFileHelp = `
The suggestions file is JSON: either an analysis object with "sectionDiffs"
or a flat array of suggestions. Select suggestions with --accept or
--accept-all, and override a suggestion's text with --edits.`

var (
	structureConfig reconcileFlags
	generateConfig  reconcileFlags
	acceptedConfig  reconcileFlags
)

var structureCmd = newReconcileCommand("structure",
	"Merge accepted suggestions into structured resume sections",
	`Merge the accepted suggestions into the six canonical resume sections.
Per section, replace and improvement payloads form the base, additions are
appended and removals filter out matching items.`+suggestionFileHelp,
	"structure", &structureConfig,
	func(r *reconciler.Reconciler) common.ReconcileFunc[types.StructuredResumeSections] { return r.Structure })

var generateCmd = newReconcileCommand("generate",
	"Generate final resume text from accepted suggestions",
	`Generate the final resume text in the header-delimited format
("SUMMARY:", "EXPERIENCE:", ...) from the accepted suggestions.`+suggestionFileHelp,
	"generate", &generateConfig,
	func(r *reconciler.Reconciler) common.ReconcileFunc[string] { return r.GenerateText })

var acceptedCmd = newReconcileCommand("accepted",
	"Collect the raw accepted payloads per section",
	`Collect the raw payloads of the accepted suggestions per canonical
section, as stored alongside a persisted improved resume.`+suggestionFileHelp,
	"collect", &acceptedConfig,
	func(r *reconciler.Reconciler) common.ReconcileFunc[map[string]any] { return r.AcceptedData })
