package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// LoadedPrompts holds prompt content read from files
type LoadedPrompts struct {
	SystemPrompt string
	UserPrompt   string
}

// loadedPrompts is filled by loadPromptsFromFiles; global file prompts are
// overridden by operation file prompts
var loadedPrompts struct {
	global  LoadedPrompts
	suggest LoadedPrompts
}

// GetLoadedSuggestPrompts returns the file-loaded prompts for suggestion
// generation, falling back to global prompt files
func (c *Config) GetLoadedSuggestPrompts() LoadedPrompts {
	out := loadedPrompts.suggest
	if out.SystemPrompt == "" {
		out.SystemPrompt = loadedPrompts.global.SystemPrompt
	}
	if out.UserPrompt == "" {
		out.UserPrompt = loadedPrompts.global.UserPrompt
	}
	return out
}

// loadPromptsFromFiles loads custom prompts from external files if file paths are specified
func (c *Config) loadPromptsFromFiles() error {
	log.Println("[CONFIG] Starting custom prompt loading from files")

	if err := c.validatePromptFiles(); err != nil {
		return err
	}

	global, err := loadPromptPair(c.AI.CustomPrompts, "global")
	if err != nil {
		return err
	}
	suggest, err := loadPromptPair(c.AI.Suggest.CustomPrompts, "suggest")
	if err != nil {
		return err
	}
	loadedPrompts.global = global
	loadedPrompts.suggest = suggest

	count := 0
	for _, p := range []string{global.SystemPrompt, global.UserPrompt, suggest.SystemPrompt, suggest.UserPrompt} {
		if p != "" {
			count++
		}
	}
	if count == 0 {
		log.Println("[CONFIG] No custom prompt files loaded - using built-in defaults")
	} else {
		log.Printf("[CONFIG] Total custom prompt files loaded: %d", count)
	}
	return nil
}

func loadPromptPair(cfg PromptConfig, operation string) (LoadedPrompts, error) {
	var out LoadedPrompts
	if cfg.SystemPromptFile != "" {
		content, err := loadPromptFromFile(cfg.SystemPromptFile, "system", operation)
		if err != nil {
			return out, err
		}
		out.SystemPrompt = content
	}
	if cfg.UserPromptFile != "" {
		content, err := loadPromptFromFile(cfg.UserPromptFile, "user", operation)
		if err != nil {
			return out, err
		}
		out.UserPrompt = content
	}
	return out, nil
}

// loadPromptFromFile loads a prompt from a file with proper error handling and logging
func loadPromptFromFile(filePath, promptType, operation string) (string, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path for %s %s prompt file '%s': %w", promptType, operation, filePath, err)
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return "", fmt.Errorf("failed to read %s %s prompt file '%s': %w", promptType, operation, absPath, err)
	}

	trimmedContent := strings.TrimSpace(string(content))
	if trimmedContent == "" {
		return "", fmt.Errorf("%s %s prompt file '%s' is empty", promptType, operation, absPath)
	}

	log.Printf("[CONFIG] Successfully loaded %s %s prompt from file: %s (%d characters)",
		promptType, operation, absPath, len(trimmedContent))

	return trimmedContent, nil
}

// validatePromptFiles checks every configured prompt file exists before any is read
func (c *Config) validatePromptFiles() error {
	var validationErrors []string

	validateFile := func(filePath, promptType, operation string) {
		if filePath == "" {
			return
		}

		absPath, err := filepath.Abs(filePath)
		if err != nil {
			validationErrors = append(validationErrors, fmt.Sprintf("invalid path for %s %s prompt: %s", promptType, operation, filePath))
			return
		}

		if _, err := os.Stat(absPath); os.IsNotExist(err) {
			validationErrors = append(validationErrors, fmt.Sprintf("%s %s prompt file not found: %s", promptType, operation, absPath))
		}
	}

	validateFile(c.AI.CustomPrompts.SystemPromptFile, "system", "global")
	validateFile(c.AI.CustomPrompts.UserPromptFile, "user", "global")
	validateFile(c.AI.Suggest.CustomPrompts.SystemPromptFile, "system", "suggest")
	validateFile(c.AI.Suggest.CustomPrompts.UserPromptFile, "user", "suggest")

	if len(validationErrors) > 0 {
		return fmt.Errorf("prompt file validation failed:\n%s", strings.Join(validationErrors, "\n"))
	}

	return nil
}
