package cli

import (
	"context"

	"resumerecon/internal/config"
	"resumerecon/internal/errors"

	"github.com/spf13/cobra"
)

// Define custom private types for context keys.
type configKeyType struct{}
type loggerKeyType struct{}

var configKey = configKeyType{}
var loggerKey = loggerKeyType{}

var rootCmd = &cobra.Command{
	Use:   "resumerecon",
	Short: "Reconcile reviewed AI resume suggestions into a final resume",
	Long: `Resumerecon turns the suggestions an AI analyzer produced for a resume,
together with the reviewer's accept/reject decisions and edits, into
structured resume sections and final resume text. It can also parse
flattened resume text back into sections, ask an AI provider for new
suggestions, render the result through the resume backend and serve
all of this over HTTP with review sessions.`,
	SilenceUsage: true,
}

func Execute(ctx context.Context, cfg *config.Config, logger *errors.Logger) error {
	// Attach the config and logger to the context, making them available to all subcommands
	ctx = context.WithValue(ctx, configKey, cfg)
	ctx = context.WithValue(ctx, loggerKey, logger)
	rootCmd.SetContext(ctx)
	return rootCmd.Execute()
}

// getConfigFromContext is a helper function to get config from context
func getConfigFromContext(ctx context.Context) *config.Config {
	if cfg, ok := ctx.Value(configKey).(*config.Config); ok {
		return cfg
	}
	panic("config not found in context") // Should not happen if properly initialized
}

// getLoggerFromContext is a helper function to get logger from context
func getLoggerFromContext(ctx context.Context) *errors.Logger {
	if logger, ok := ctx.Value(loggerKey).(*errors.Logger); ok {
		return logger
	}
	panic("logger not found in context") // Should not happen if properly initialized
}

func init() {
	rootCmd.AddCommand(structureCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(acceptedCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(normalizeCmd)
	rootCmd.AddCommand(suggestCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
}
