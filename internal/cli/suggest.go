package cli

import (
	"context"
	"fmt"

	"resumerecon/internal/ai"
	"resumerecon/internal/common"
	"resumerecon/internal/types"

	"github.com/spf13/cobra"
)

var suggestCmd = &cobra.Command{
	Use:   "suggest [resume-file] [job-description-file]",
	Short: "Ask the AI provider for resume improvement suggestions",
	Long: `Analyze a resume, optionally against a job description, and print
suggestions grouped by section. The JSON output can be fed straight into
structure, generate and accepted. PDF and Word resumes are converted to
text first.`,
	Args: cobra.RangeArgs(1, 2),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfigFromContext(cmd.Context())
		suggestConfig.MaxFileSize = cfg.App.MaxFileSize
		return applyDefaultFormat(&suggestConfig, cfg)
	},
	RunE: runSuggest,
}

var suggestConfig common.CommandConfig

func init() {
	suggestCmd.Flags().StringVarP(&suggestConfig.OutputFile, "output", "o", "", "Output file path (default: stdout)")
	suggestCmd.Flags().StringVar(&suggestConfig.OutputFormat, "format", "", "Output format: json, text, or markdown")
	registerFormatCompletion(suggestCmd)
}

func runSuggest(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())

	aiService, err := ai.NewService(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create AI service: %w", err)
	}
	defer func() {
		if err := aiService.Close(); err != nil {
			logger.LogError(err, "Failed to close AI service")
		}
	}()

	createInput := func(contents []string) (types.SuggestInput, error) {
		input := types.SuggestInput{ResumeText: contents[0]}
		if len(contents) > 1 {
			input.JobDescription = contents[1]
		}
		return input, nil
	}

	logDetails := func(input types.SuggestInput, cfg common.CommandConfig) {
		logger.Info("Starting suggestion generation",
			"model", aiService.Model(),
			"resume_chars", len(input.ResumeText),
			"job_chars", len(input.JobDescription),
			"output_format", cfg.OutputFormat)
	}

	suggestOperation := func(ctx context.Context, input types.SuggestInput) (types.AnalysisResponse, *ai.TokenUsage, error) {
		return aiService.Suggest(ctx, input)
	}

	err = common.RunAICommand(
		cmd.Context(),
		logger,
		suggestConfig,
		args,
		createInput,
		suggestOperation,
		logDetails,
	)
	if err != nil {
		return fmt.Errorf("failed to generate suggestions: %w", err)
	}
	logger.Info("Suggestion generation completed successfully")
	return nil
}
