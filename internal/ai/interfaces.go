package ai

import (
	"context"

	"resumerecon/internal/types"
)

// SuggestionProvider generates resume improvement suggestions.
// Token usage may be nil when the provider does not report it.
type SuggestionProvider interface {
	SuggestImprovements(ctx context.Context, input types.SuggestInput) (types.AnalysisResponse, *TokenUsage, error)
	GetModelInfo(ctx context.Context) *ModelInfo
	CircuitBreakerStats() map[string]any
	Close() error
}

// TokenUsage represents token usage information from AI responses
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

// ModelInfo represents information about the AI model
type ModelInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	Version     string `json:"version,omitempty"`
	Available   bool   `json:"available"`
	Error       string `json:"error,omitempty"`
}
