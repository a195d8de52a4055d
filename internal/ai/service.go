package ai

import (
	"context"
	"fmt"

	"resumerecon/internal/config"
	"resumerecon/internal/errors"
	"resumerecon/internal/types"
)

// Service generates resume suggestions through the configured provider
type Service struct {
	Provider SuggestionProvider // Exported for access from server package
	config   config.OperationAIConfig
	logger   *errors.Logger
}

// NewService creates the suggestion service from application configuration
func NewService(cfg *config.Config, logger *errors.Logger) (*Service, error) {
	opCfg := cfg.GetSuggestConfig()

	logger.Debug("Initializing AI service",
		"provider", opCfg.Provider,
		"model", opCfg.Model,
		"temperature", *opCfg.Temperature,
		"timeout", *opCfg.Timeout,
		"max_retries", *opCfg.MaxRetries,
		"use_system_prompts", *opCfg.UseSystemPrompts)

	var provider SuggestionProvider
	var err error
	switch opCfg.Provider {
	case "gemini":
		provider, err = NewGeminiProvider(&opCfg, cfg.GetLoadedSuggestPrompts(),
			cfg.Observability.HealthCheck.AIModelCheckTimeout, logger)
	default:
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("Unsupported AI provider: %s", opCfg.Provider), nil)
	}
	if err != nil {
		return nil, err
	}

	return NewServiceWithProvider(provider, opCfg, logger), nil
}

// NewServiceWithProvider wraps an existing provider
func NewServiceWithProvider(provider SuggestionProvider, opCfg config.OperationAIConfig, logger *errors.Logger) *Service {
	return &Service{
		Provider: provider,
		config:   opCfg,
		logger:   logger,
	}
}

// Suggest validates the input and asks the provider for suggestions
func (s *Service) Suggest(ctx context.Context, input types.SuggestInput) (types.AnalysisResponse, *TokenUsage, error) {
	if input.ResumeText == "" {
		return types.AnalysisResponse{}, nil, errors.NewValidationError(errors.ErrCodeInvalidRequest,
			"resume text is required", nil)
	}
	return s.Provider.SuggestImprovements(ctx, input)
}

// Model returns the configured model name
func (s *Service) Model() string {
	return s.config.Model
}

// GetModelInfo returns information about the AI model for health checks
func (s *Service) GetModelInfo(ctx context.Context) *ModelInfo {
	return s.Provider.GetModelInfo(ctx)
}

// Close releases provider resources
func (s *Service) Close() error {
	return s.Provider.Close()
}

// CircuitBreakerStats reports the provider's circuit breaker state
func (s *Service) CircuitBreakerStats() map[string]any {
	return s.Provider.CircuitBreakerStats()
}
