package common

import (
	"context"
	"fmt"
	"os"
	"time"

	"resumerecon/internal/ai"
	"resumerecon/internal/errors"
	"resumerecon/internal/reconciler"
	"resumerecon/internal/types"
)

// CreateInputFunc defines how to create the specific AI input from file contents.
type CreateInputFunc[Input any] func(contents []string) (Input, error)

// LogDetailsFunc defines how to log the start of an operation.
type LogDetailsFunc[Input any] func(input Input, cfg CommandConfig)

// AIOperationFunc is a generic function signature for any AI operation with context and token usage.
type AIOperationFunc[Input, Output any] func(context.Context, Input) (Output, *ai.TokenUsage, error)

// ReconcileFunc is any reconciler operation over a reviewed suggestion list
type ReconcileFunc[T any] func(suggestions []types.Suggestion, accepted types.AcceptedSet, edited types.EditedText) reconciler.Result[T]

// RunAICommand encapsulates the common logic for file-based CLI commands with token usage reporting.
// The first file is read as a resume, so documents are converted to text.
func RunAICommand[Input, Output any](
	ctx context.Context,
	logger *errors.Logger,
	cmdConfig CommandConfig,
	args []string,
	createInput CreateInputFunc[Input],
	aiOperation AIOperationFunc[Input, Output],
	logDetails LogDetailsFunc[Input],
) error {
	fileProcessor := NewFileProcessor(logger, cmdConfig.MaxFileSize)
	outputHandler := NewOutputHandler(logger)

	contents := make([]string, len(args))
	for i, filename := range args {
		content, err := fileProcessor.ReadResume(filename)
		if err != nil {
			return err
		}
		contents[i] = content
	}

	input, err := createInput(contents)
	if err != nil {
		return fmt.Errorf("failed to create input from file contents: %w", err)
	}

	logDetails(input, cmdConfig)

	result, tokenUsage, err := aiOperation(ctx, input)
	if err != nil {
		return err
	}

	// Report token usage
	if tokenUsage != nil {
		if logger != nil {
			logger.Info("AI token usage", "input_tokens", tokenUsage.InputTokens, "output_tokens", tokenUsage.OutputTokens, "total_tokens", tokenUsage.TotalTokens)
		} else {
			fmt.Fprintf(os.Stderr, "AI token usage: input=%d, output=%d, total=%d\n", tokenUsage.InputTokens, tokenUsage.OutputTokens, tokenUsage.TotalTokens)
		}
	}

	return outputHandler.HandleOutput(result, cmdConfig)
}

// RunReconcileCommand reads a suggestion file and optional edits, applies
// the selection, runs the reconciler operation and writes its result.
// Warnings are logged and kept in the output; they never fail the command.
func RunReconcileCommand[T any](
	logger *errors.Logger,
	cmdConfig CommandConfig,
	operation string,
	suggestionsFile string,
	selection Selection,
	reconcile ReconcileFunc[T],
) error {
	result, err := Reconcile(logger, cmdConfig, operation, suggestionsFile, selection, reconcile)
	if err != nil {
		return err
	}
	return NewOutputHandler(logger).HandleOutput(result, cmdConfig)
}

// Reconcile is RunReconcileCommand without the output step
func Reconcile[T any](
	logger *errors.Logger,
	cmdConfig CommandConfig,
	operation string,
	suggestionsFile string,
	selection Selection,
	reconcile ReconcileFunc[T],
) (reconciler.Result[T], error) {
	fileProcessor := NewFileProcessor(logger, cmdConfig.MaxFileSize)

	suggestions, err := fileProcessor.ReadSuggestions(suggestionsFile, cmdConfig.StrictSchema)
	if err != nil {
		return reconciler.Result[T]{}, err
	}
	edited, err := fileProcessor.ReadEdits(selection.EditsFile)
	if err != nil {
		return reconciler.Result[T]{}, err
	}

	accepted, unknown := selection.AcceptedSet(suggestions)
	if len(unknown) > 0 && logger != nil {
		logger.Warn("Accepted ids match no suggestion", "ids", unknown)
	}

	if logger != nil {
		logger.Info("Starting reconcile",
			"operation", operation,
			"suggestions", len(suggestions),
			"accepted", len(accepted),
			"edits", len(edited),
			"output_format", cmdConfig.OutputFormat)
	}

	start := time.Now()
	result := reconcile(suggestions, accepted, edited)

	if logger != nil {
		for _, w := range result.Warnings {
			logger.Warn("Reconcile warning", "operation", operation, "code", w.Code,
				"suggestion_id", w.SuggestionID, "section", w.Section, "message", w.Message)
		}
		logger.Debug("Reconcile finished", "operation", operation,
			"duration", time.Since(start), "warnings", len(result.Warnings))
	}
	return result, nil
}
