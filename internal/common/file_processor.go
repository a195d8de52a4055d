package common

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"code.sajari.com/docconv"

	"resumerecon/internal/errors"
	"resumerecon/internal/schema"
	"resumerecon/internal/types"
	"resumerecon/internal/utils"
)

// FileProcessor handles common file operations
type FileProcessor struct {
	logger      *errors.Logger
	maxFileSize int64
}

// NewFileProcessor creates a new file processor instance. maxFileSize of
// zero means no size limit.
func NewFileProcessor(logger *errors.Logger, maxFileSize int64) *FileProcessor {
	return &FileProcessor{logger: logger, maxFileSize: maxFileSize}
}

// ReadFile reads content from a file with proper error handling
func (fp *FileProcessor) ReadFile(filename string) (string, error) {
	file, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NewIOError(errors.ErrCodeFileNotFound,
				fmt.Sprintf("File not found: %s", filename), err)
		}
		return "", errors.NewIOError(errors.ErrCodeFileNotReadable,
			fmt.Sprintf("Cannot read file: %s", filename), err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			// Log the error but don't override the main operation result
			if fp.logger != nil {
				fp.logger.Warn("Failed to close file", "filename", filename, "error", err)
			}
		}
	}()

	content, err := io.ReadAll(file)
	if err != nil {
		return "", errors.NewIOError(errors.ErrCodeFileNotReadable,
			fmt.Sprintf("Failed to read file content: %s", filename), err)
	}

	return string(content), nil
}

// ReadResume validates a resume file and returns its text. PDF and office
// documents are converted to plain text first.
func (fp *FileProcessor) ReadResume(filename string) (string, error) {
	if err := fp.validateInput(filename); err != nil {
		return "", err
	}

	if !utils.IsDocumentFile(filename) {
		if !utils.IsTextFile(filename) {
			fp.warn("File may not be a text file", filename)
		}
		return fp.ReadFile(filename)
	}

	res, err := docconv.ConvertPath(filename)
	if err != nil {
		return "", errors.NewIOError(errors.ErrCodeFileNotReadable,
			fmt.Sprintf("Failed to extract text from document: %s", filename), err)
	}
	text := strings.TrimSpace(res.Body)
	if text == "" {
		return "", errors.NewValidationError(errors.ErrCodeInvalidPayload,
			fmt.Sprintf("No text could be extracted from %s", filename), nil)
	}
	if fp.logger != nil {
		fp.logger.Debug("Extracted document text", "filename", filename, "chars", len(text))
	}
	return text, nil
}

// ReadSuggestions reads a suggestion payload, either an analysis response
// with sectionDiffs or a bare suggestion array, and validates it against
// the suggestion schema
func (fp *FileProcessor) ReadSuggestions(filename string, strict bool) ([]types.Suggestion, error) {
	if err := fp.validateInput(filename); err != nil {
		return nil, err
	}
	content, err := fp.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	payload, err := schema.Decode([]byte(content), strict)
	if err != nil {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidPayload,
			fmt.Sprintf("Invalid suggestion payload in %s", filename), err)
	}
	for _, v := range payload.Violations {
		if fp.logger != nil {
			fp.logger.Warn("Suggestion payload violates schema", "filename", filename,
				"field", v.Field, "message", v.Message)
		}
	}
	return payload.Suggestions, nil
}

// ReadEdits reads a JSON object mapping suggestion id to override text. An
// empty filename yields no edits.
func (fp *FileProcessor) ReadEdits(filename string) (types.EditedText, error) {
	if filename == "" {
		return nil, nil
	}
	if err := fp.validateInput(filename); err != nil {
		return nil, err
	}
	content, err := fp.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var edits types.EditedText
	if err := json.Unmarshal([]byte(content), &edits); err != nil {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidPayload,
			fmt.Sprintf("Edits file %s must be a JSON object of id to text", filename), err)
	}
	return edits, nil
}

// WriteFile writes content to a file with directory creation
func (fp *FileProcessor) WriteFile(filename string, content []byte) error {
	dir := filepath.Dir(filename)
	if dir != "." {
		err := os.MkdirAll(dir, 0750)
		if err != nil {
			return errors.NewIOError("DIRECTORY_CREATE_FAILED",
				fmt.Sprintf("Cannot create directory: %s", dir), err)
		}
	}

	err := os.WriteFile(filename, content, 0600)
	if err != nil {
		return errors.NewIOError("FILE_WRITE_FAILED",
			fmt.Sprintf("Cannot write file: %s", filename), err)
	}

	return nil
}

// ValidateOutputFile validates output file path
func (fp *FileProcessor) ValidateOutputFile(filename string) error {
	if filename == "" {
		return nil // stdout is valid
	}

	if err := utils.ValidateOutputFile(filename); err != nil {
		return errors.NewValidationError("INVALID_OUTPUT_FILE",
			fmt.Sprintf("Invalid output file: %s", filename), err)
	}

	return nil
}

func (fp *FileProcessor) validateInput(filename string) error {
	if err := utils.ValidateInputFile(filename, fp.maxFileSize); err != nil {
		return errors.NewValidationError("INVALID_INPUT_FILE",
			fmt.Sprintf("Invalid file %s", filename), err)
	}
	return nil
}

func (fp *FileProcessor) warn(msg, filename string) {
	if fp.logger != nil {
		fp.logger.Warn(msg, "filename", filename)
		return
	}
	fmt.Fprintf(os.Stderr, "Warning: %s: %s\n", msg, filename)
}
