package cli

import (
	"fmt"

	"resumerecon/internal/common"

	"github.com/spf13/cobra"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize [content-file]",
	Short: "Normalize free-form section content into a list of items",
	Long: `Normalize section content as an AI model might return it: JSON with
smart quotes or code fences, JSON split across lines, bulleted or numbered
text. The output is the list of items the reconciler would use, plus
warnings for anything it had to repair.`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfigFromContext(cmd.Context())
		normalizeConfig.MaxFileSize = cfg.App.MaxFileSize
		return applyDefaultFormat(&normalizeConfig, cfg)
	},
	RunE: runNormalize,
}

var normalizeConfig common.CommandConfig

func init() {
	normalizeCmd.Flags().StringVarP(&normalizeConfig.OutputFile, "output", "o", "", "Output file path (default: stdout)")
	normalizeCmd.Flags().StringVar(&normalizeConfig.OutputFormat, "format", "", "Output format: json, text, or markdown")
	registerFormatCompletion(normalizeCmd)
}

func runNormalize(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())

	r, err := newReconciler(cfg, logger)
	if err != nil {
		return err
	}

	content, err := common.NewFileProcessor(logger, normalizeConfig.MaxFileSize).ReadFile(args[0])
	if err != nil {
		return err
	}

	result := r.Normalize(content)
	for _, w := range result.Warnings {
		logger.Warn("Normalize warning", "code", w.Code, "message", w.Message)
	}

	if err := common.NewOutputHandler(logger).HandleOutput(result, normalizeConfig); err != nil {
		return fmt.Errorf("failed to write normalized content: %w", err)
	}
	logger.Info("Content normalized", "items", len(result.Value), "warnings", len(result.Warnings))
	return nil
}
