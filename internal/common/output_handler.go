package common

import (
	"fmt"
	"io"
	"os"

	"resumerecon/internal/errors"
	"resumerecon/internal/formatters"
)

// CommandConfig holds common configuration for commands
type CommandConfig struct {
	OutputFile   string
	OutputFormat string
	MaxFileSize  int64
	StrictSchema bool
}

// OutputHandler handles formatting and writing output
type OutputHandler struct {
	fileProcessor *FileProcessor
	registry      *formatters.FormatterRegistry
	logger        *errors.Logger
	stdout        io.Writer
}

// NewOutputHandler creates a new output handler
func NewOutputHandler(logger *errors.Logger) *OutputHandler {
	return &OutputHandler{
		fileProcessor: NewFileProcessor(logger, 0),
		registry:      formatters.GlobalRegistry,
		logger:        logger,
		stdout:        os.Stdout,
	}
}

// HandleOutput formats data and writes it to the specified output
func (oh *OutputHandler) HandleOutput(data any, config CommandConfig) error {
	// Validate output file
	if err := oh.fileProcessor.ValidateOutputFile(config.OutputFile); err != nil {
		return err
	}

	// Format output using the registry
	output, err := oh.registry.Format(data, config.OutputFormat)
	if err != nil {
		return errors.NewValidationError(errors.ErrCodeInvalidFormat,
			fmt.Sprintf("Failed to format output as %s", config.OutputFormat), err)
	}

	if config.OutputFile == "" {
		_, err = fmt.Fprintln(oh.stdout, output)
		return err
	}
	return oh.write(config, []byte(output))
}

// HandleBinary writes raw bytes such as a rendered PDF. Binary output
// requires a file; it is never written to a terminal.
func (oh *OutputHandler) HandleBinary(data []byte, config CommandConfig) error {
	if config.OutputFile == "" {
		return errors.NewValidationError("INVALID_OUTPUT_FILE",
			"Binary output requires an output file (-o)", nil)
	}
	if err := oh.fileProcessor.ValidateOutputFile(config.OutputFile); err != nil {
		return err
	}
	return oh.write(config, data)
}

func (oh *OutputHandler) write(config CommandConfig, data []byte) error {
	if err := oh.fileProcessor.WriteFile(config.OutputFile, data); err != nil {
		return err // Error already wrapped by WriteFile
	}

	// Log success
	if oh.logger != nil {
		oh.logger.Info("Output written successfully",
			"file", config.OutputFile, "format", config.OutputFormat, "bytes", len(data))
	}
	return nil
}

// GetSupportedFormats returns all supported output formats
func (oh *OutputHandler) GetSupportedFormats() []string {
	return oh.registry.GetSupportedFormats()
}
