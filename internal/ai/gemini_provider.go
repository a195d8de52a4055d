package ai

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net"
	"net/http"
	"strings"
	"time"

	"resumerecon/internal/breaker"
	"resumerecon/internal/config"
	appErrors "resumerecon/internal/errors"
	"resumerecon/internal/types"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
)

// GeminiProvider implements SuggestionProvider for Google Gemini
type GeminiProvider struct {
	client            *genai.Client
	config            *config.OperationAIConfig
	prompts           config.LoadedPrompts
	circuitBreaker    *breaker.Breaker[*genai.GenerateContentResponse]
	modelBreaker      *breaker.Breaker[*genai.Model]
	modelCheckTimeout time.Duration
	logger            *appErrors.Logger
}

// Ensure GeminiProvider implements SuggestionProvider
var _ SuggestionProvider = (*GeminiProvider)(nil)

// NewGeminiProvider creates a Gemini provider for suggestion generation
func NewGeminiProvider(cfg *config.OperationAIConfig, prompts config.LoadedPrompts, modelCheckTimeout time.Duration, logger *appErrors.Logger) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, appErrors.NewConfigError(appErrors.ErrCodeMissingAPIKey,
			"Gemini API key is not configured (set RESUMERECON_AI_APIKEY or GEMINI_API_KEY)", nil)
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
		HTTPClient: &http.Client{
			Timeout:   *cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	})
	if err != nil {
		return nil, appErrors.NewAIError(appErrors.ErrCodeAIServiceFailed,
			"Failed to create Gemini client", err)
	}

	if modelCheckTimeout <= 0 {
		modelCheckTimeout = 10 * time.Second
	}

	// Model lookups only back the health check, so they trip later
	modelTrip := breaker.RatioTrip(5, 0.8)

	return &GeminiProvider{
		client:            client,
		config:            cfg,
		prompts:           prompts,
		circuitBreaker:    breaker.New[*genai.GenerateContentResponse]("AI-Suggest", cfg.CircuitBreaker, nil, logger),
		modelBreaker:      breaker.New[*genai.Model]("AI-Model-Suggest", cfg.CircuitBreaker, modelTrip, logger),
		modelCheckTimeout: modelCheckTimeout,
		logger:            logger,
	}, nil
}

// GetModelInfo checks the readiness and availability of the configured model
func (g *GeminiProvider) GetModelInfo(ctx context.Context) *ModelInfo {
	modelInfo := &ModelInfo{
		Name:      g.config.Model,
		Available: false,
	}

	checkCtx, cancel := context.WithTimeout(ctx, g.modelCheckTimeout)
	defer cancel()

	model, err := g.modelBreaker.Execute(func() (*genai.Model, error) {
		return g.client.Models.Get(checkCtx, g.config.Model, &genai.GetModelConfig{})
	})
	if err != nil {
		modelInfo.Error = fmt.Sprintf("Failed to get model info: %v", err)
		g.logger.Warn("Model availability check failed",
			"model", g.config.Model,
			"provider", g.config.Provider,
			"error", err.Error())
		return modelInfo
	}

	modelInfo.Available = true
	modelInfo.DisplayName = model.DisplayName
	modelInfo.Version = model.Version

	g.logger.Debug("Model availability check successful",
		"model", g.config.Model,
		"display_name", modelInfo.DisplayName,
		"version", modelInfo.Version)

	return modelInfo
}

// SuggestImprovements asks the model for section-grouped suggestions
func (g *GeminiProvider) SuggestImprovements(ctx context.Context, input types.SuggestInput) (types.AnalysisResponse, *TokenUsage, error) {
	tracer := otel.Tracer("resumerecon.ai.gemini")
	ctx, span := tracer.Start(ctx, "gemini.suggest_improvements")
	defer span.End()

	span.SetAttributes(
		attribute.String("ai.provider", "gemini"),
		attribute.String("ai.model", g.config.Model),
		attribute.Float64("ai.temperature", float64(*g.config.Temperature)),
		attribute.Int("input.resume_length", len(input.ResumeText)),
		attribute.Int("input.job_length", len(input.JobDescription)),
	)

	systemPrompt, userPrompt := g.buildPrompts(input)
	genaiConfig := g.buildSuggestSchema()
	if *g.config.UseSystemPrompts && systemPrompt != "" {
		genaiConfig.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	result, err := g.circuitBreaker.Execute(func() (*genai.GenerateContentResponse, error) {
		return g.executeWithRetry(ctx, "suggest_improvements", func() (*genai.GenerateContentResponse, error) {
			return g.client.Models.GenerateContent(ctx, g.config.Model, genai.Text(userPrompt), genaiConfig)
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("success", false))
		return types.AnalysisResponse{}, nil, appErrors.NewAIError(appErrors.ErrCodeAIServiceFailed,
			"Failed to generate suggestions", err)
	}

	var output types.AnalysisResponse
	if err := json.Unmarshal([]byte(result.Text()), &output); err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("success", false))
		return types.AnalysisResponse{}, nil, appErrors.NewAIError(appErrors.ErrCodeAIResponseParse,
			"Failed to parse AI response for suggest_improvements", err)
	}
	filled := normalizeResponse(&output)

	tokenUsage := extractTokenUsage(result)
	if tokenUsage != nil {
		span.SetAttributes(
			attribute.Int64("ai.tokens.input", tokenUsage.InputTokens),
			attribute.Int64("ai.tokens.output", tokenUsage.OutputTokens),
			attribute.Int64("ai.tokens.total", tokenUsage.TotalTokens),
		)
	}

	span.SetAttributes(
		attribute.Bool("success", true),
		attribute.Int("output.section_diffs", len(output.SectionDiffs)),
		attribute.Int("output.generated_ids", filled),
	)
	return output, tokenUsage, nil
}

// normalizeResponse trims labels, fills missing ids with UUIDs and makes
// ids unique. It returns how many ids were generated.
func normalizeResponse(resp *types.AnalysisResponse) int {
	seen := make(map[string]bool)
	generated := 0
	for i := range resp.SectionDiffs {
		diff := &resp.SectionDiffs[i]
		diff.Section = strings.TrimSpace(diff.Section)
		for j := range diff.Suggestions {
			s := &diff.Suggestions[j]
			s.ID = strings.TrimSpace(s.ID)
			s.Section = strings.TrimSpace(s.Section)
			if s.Section == "" {
				s.Section = diff.Section
			}
			s.Type = types.SuggestionType(strings.ToLower(strings.TrimSpace(string(s.Type))))
			if s.ID == "" || seen[s.ID] {
				s.ID = uuid.NewString()
				generated++
			}
			seen[s.ID] = true
		}
	}
	return generated
}

// executeWithRetry executes an AI operation with retry logic and exponential backoff
func (g *GeminiProvider) executeWithRetry(ctx context.Context, operation string, fn func() (*genai.GenerateContentResponse, error)) (*genai.GenerateContentResponse, error) {
	var lastErr error
	maxRetries := *g.config.MaxRetries

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			g.logger.Warn("Retrying AI operation",
				"operation", operation,
				"attempt", attempt,
				"max_retries", maxRetries,
				"error", lastErr.Error())

			select {
			case <-time.After(backoffDelay(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, err := fn()
		if err == nil {
			if attempt > 0 {
				g.logger.Info("AI operation succeeded after retry",
					"operation", operation,
					"total_attempts", attempt+1)
			}
			return result, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			g.logger.Debug("Error is not retryable, stopping retry attempts",
				"operation", operation,
				"error", err.Error())
			break
		}
	}

	g.logger.LogError(lastErr, "AI operation failed after all retry attempts",
		"operation", operation,
		"total_attempts", maxRetries+1)

	return nil, fmt.Errorf("operation '%s' failed after %d retries: %w", operation, maxRetries, lastErr)
}

// backoffDelay is 2^(attempt-1) seconds plus up to 10% jitter, capped at 30s
func backoffDelay(attempt int) time.Duration {
	baseDelay := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
	jitterMax := big.NewInt(int64(float64(baseDelay) * 0.1))
	var jitter time.Duration
	if jitterMax.Sign() > 0 {
		if n, err := rand.Int(rand.Reader, jitterMax); err == nil {
			jitter = time.Duration(n.Int64())
		}
	}
	return min(baseDelay+jitter, 30*time.Second)
}

// isRetryableError reports whether err is a network error or a transient
// Google API status
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
	}

	return false
}

// CircuitBreakerStats returns circuit breaker statistics
func (g *GeminiProvider) CircuitBreakerStats() map[string]any {
	return map[string]any{
		"ai_operations":    g.circuitBreaker.Stats(),
		"model_operations": g.modelBreaker.Stats(),
		"overall_healthy":  g.circuitBreaker.IsHealthy() && g.modelBreaker.IsHealthy(),
	}
}

// Close implements SuggestionProvider
func (g *GeminiProvider) Close() error {
	return nil
}

func (g *GeminiProvider) buildPrompts(input types.SuggestInput) (string, string) {
	systemPrompt := resolvePrompt(g.prompts.SystemPrompt, g.config.CustomPrompts.SystemPrompt, DefaultSystemPrompt)
	userPrompt := resolvePrompt(g.prompts.UserPrompt, g.config.CustomPrompts.UserPrompt, DefaultUserPrompt)

	jobDescription := strings.TrimSpace(input.JobDescription)
	if jobDescription == "" {
		jobDescription = noJobDescription
	}
	return systemPrompt, fmt.Sprintf(userPrompt, input.ResumeText, jobDescription)
}

// buildSuggestSchema creates the response schema for suggestion requests.
// original and suggested are strings; structured values arrive as JSON text
// and are decoded by the reconciler.
func (g *GeminiProvider) buildSuggestSchema() *genai.GenerateContentConfig {
	suggestion := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"id":        {Type: genai.TypeString},
			"section":   {Type: genai.TypeString},
			"type":      {Type: genai.TypeString, Enum: []string{"addition", "removal", "improvement", "replace"}},
			"original":  {Type: genai.TypeString},
			"suggested": {Type: genai.TypeString},
			"reason":    {Type: genai.TypeString},
			"severity":  {Type: genai.TypeString, Enum: []string{"low", "medium", "high"}},
		},
		Required: []string{"id", "type", "suggested", "reason"},
	}

	genaiConfig := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"sectionDiffs": {
					Type: genai.TypeArray,
					Items: &genai.Schema{
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							"section":     {Type: genai.TypeString},
							"suggestions": {Type: genai.TypeArray, Items: suggestion},
						},
						Required: []string{"section", "suggestions"},
					},
				},
			},
			Required: []string{"sectionDiffs"},
		},
	}

	if *g.config.Temperature > 0 {
		genaiConfig.Temperature = g.config.Temperature
	}

	return genaiConfig
}

// extractTokenUsage extracts token usage information from Gemini API response
func extractTokenUsage(result *genai.GenerateContentResponse) *TokenUsage {
	if result == nil || result.UsageMetadata == nil {
		return nil
	}

	usage := result.UsageMetadata
	return &TokenUsage{
		InputTokens:  int64(usage.PromptTokenCount),
		OutputTokens: int64(usage.CandidatesTokenCount),
		TotalTokens:  int64(usage.TotalTokenCount),
	}
}
