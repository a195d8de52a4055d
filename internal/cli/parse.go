package cli

import (
	"fmt"

	"resumerecon/internal/common"

	"github.com/spf13/cobra"
)

var parseCmd = &cobra.Command{
	Use:   "parse [resume-file]",
	Short: "Parse flattened resume text back into structured sections",
	Long: `Parse a resume in the header-delimited text format ("SUMMARY:",
"EXPERIENCE:", ...) into structured sections. Headers are matched through
the section alias table, so "Work History:" lands in experience.
PDF and Word documents are converted to text first.`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfigFromContext(cmd.Context())
		parseConfig.MaxFileSize = cfg.App.MaxFileSize
		return applyDefaultFormat(&parseConfig, cfg)
	},
	RunE: runParse,
}

var parseConfig common.CommandConfig

func init() {
	parseCmd.Flags().StringVarP(&parseConfig.OutputFile, "output", "o", "", "Output file path (default: stdout)")
	parseCmd.Flags().StringVar(&parseConfig.OutputFormat, "format", "", "Output format: json, text, or markdown")
	registerFormatCompletion(parseCmd)
}

func runParse(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())

	r, err := newReconciler(cfg, logger)
	if err != nil {
		return err
	}

	text, err := common.NewFileProcessor(logger, parseConfig.MaxFileSize).ReadResume(args[0])
	if err != nil {
		return err
	}
	logger.Info("Parsing resume text", "file", args[0], "chars", len(text))

	result := r.Parse(text)
	for _, w := range result.Warnings {
		logger.Warn("Parse warning", "code", w.Code, "section", w.Section, "message", w.Message)
	}

	if err := common.NewOutputHandler(logger).HandleOutput(result, parseConfig); err != nil {
		return fmt.Errorf("failed to write parsed resume: %w", err)
	}
	logger.Info("Resume parsed successfully", "sections", result.Value.NonEmptyKeys())
	return nil
}
