package ai

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"resumerecon/internal/config"
	"resumerecon/internal/errors"
	"resumerecon/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func timePtr(d time.Duration) *time.Duration { return &d }
func intPtr(i int) *int                      { return &i }
func float32Ptr(f float32) *float32          { return &f }
func boolPtr(b bool) *bool                   { return &b }

var testLogger = errors.NewLogger(slog.LevelDebug)

type fakeProvider struct {
	resp  types.AnalysisResponse
	err   error
	calls int
}

func (f *fakeProvider) SuggestImprovements(ctx context.Context, input types.SuggestInput) (types.AnalysisResponse, *TokenUsage, error) {
	f.calls++
	return f.resp, &TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}, f.err
}

func (f *fakeProvider) GetModelInfo(ctx context.Context) *ModelInfo {
	return &ModelInfo{Name: "fake", Available: true}
}

func (f *fakeProvider) CircuitBreakerStats() map[string]any { return map[string]any{} }
func (f *fakeProvider) Close() error                        { return nil }

func testOpConfig() config.OperationAIConfig {
	return config.OperationAIConfig{
		Provider:         "gemini",
		Model:            "test-model",
		Timeout:          timePtr(30 * time.Second),
		APIKey:           "test-key",
		MaxRetries:       intPtr(1),
		Temperature:      float32Ptr(0.3),
		UseSystemPrompts: boolPtr(true),
		CircuitBreaker: config.CircuitBreakerConfig{
			Enabled:          true,
			MaxRequests:      5,
			Interval:         30 * time.Second,
			Timeout:          45 * time.Second,
			MinRequests:      2,
			FailureThreshold: 0.8,
		},
	}
}

func TestService_Suggest(t *testing.T) {
	provider := &fakeProvider{resp: types.AnalysisResponse{SectionDiffs: []types.SectionDiff{{Section: "Skills"}}}}
	service := NewServiceWithProvider(provider, testOpConfig(), testLogger)

	resp, usage, err := service.Suggest(context.Background(), types.SuggestInput{ResumeText: "SKILLS:\nGo"})
	require.NoError(t, err)
	assert.Len(t, resp.SectionDiffs, 1)
	assert.Equal(t, int64(15), usage.TotalTokens)
	assert.Equal(t, "test-model", service.Model())

	_, _, err = service.Suggest(context.Background(), types.SuggestInput{})
	appErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorTypeValidation, appErr.Type)
	assert.Equal(t, 1, provider.calls)
}

func TestNewService_SuggestConfigDerivation(t *testing.T) {
	cfg := &config.Config{
		AI: config.AIConfig{
			Provider:         "gemini",
			Model:            "global-model",
			Timeout:          60 * time.Second,
			APIKey:           "global-api-key",
			MaxRetries:       5,
			Temperature:      0.9,
			UseSystemPrompts: true,
			Suggest: config.OperationAIConfig{
				Model:       "suggest-model",
				Temperature: float32Ptr(0.2),
				CircuitBreaker: config.CircuitBreakerConfig{
					Enabled:          true,
					MaxRequests:      3,
					MinRequests:      2,
					FailureThreshold: 0.5,
				},
			},
		},
	}

	service, err := NewService(cfg, testLogger)
	require.NoError(t, err)
	assert.Equal(t, "suggest-model", service.Model())
	assert.Equal(t, "global-api-key", service.config.APIKey)
	assert.Equal(t, 5, *service.config.MaxRetries)
	assert.Equal(t, float32(0.2), *service.config.Temperature)

	stats := service.Provider.CircuitBreakerStats()
	aiStats, ok := stats["ai_operations"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "AI-Suggest", aiStats["name"])
	modelStats, ok := stats["model_operations"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "AI-Model-Suggest", modelStats["name"])
	assert.Equal(t, true, stats["overall_healthy"])
}

func TestNewService_Errors(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		cfg := &config.Config{AI: config.AIConfig{Provider: "gemini", Model: "m", Timeout: time.Second}}
		_, err := NewService(cfg, testLogger)
		appErr, ok := errors.As(err)
		require.True(t, ok)
		assert.Equal(t, errors.ErrCodeMissingAPIKey, appErr.Code)
	})

	t.Run("unsupported provider", func(t *testing.T) {
		cfg := &config.Config{AI: config.AIConfig{Provider: "openai", Model: "m", APIKey: "k", Timeout: time.Second}}
		_, err := NewService(cfg, testLogger)
		assert.ErrorContains(t, err, "Unsupported AI provider")
	})
}

func TestNormalizeResponse(t *testing.T) {
	resp := types.AnalysisResponse{SectionDiffs: []types.SectionDiff{
		{
			Section: " Experience ",
			Suggestions: []types.Suggestion{
				{ID: "e1", Type: "Addition"},
				{ID: "", Type: "removal", Section: "Work History"},
				{ID: "e1", Type: "replace"},
			},
		},
	}}

	generated := normalizeResponse(&resp)
	assert.Equal(t, 2, generated)

	got := resp.SectionDiffs[0].Suggestions
	assert.Equal(t, "e1", got[0].ID)
	assert.Equal(t, types.SuggestionAddition, got[0].Type)
	assert.Equal(t, "Experience", got[0].Section)
	assert.Equal(t, "Work History", got[1].Section)
	assert.NotEmpty(t, got[1].ID)
	assert.NotEqual(t, "e1", got[2].ID)
	assert.NotEqual(t, got[1].ID, got[2].ID)
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network", &net.OpError{Op: "dial", Err: fmt.Errorf("refused")}, true},
		{"rate limited", &googleapi.Error{Code: http.StatusTooManyRequests}, true},
		{"unavailable", fmt.Errorf("wrapped: %w", &googleapi.Error{Code: http.StatusServiceUnavailable}), true},
		{"bad request", &googleapi.Error{Code: http.StatusBadRequest}, false},
		{"plain", fmt.Errorf("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableError(tt.err))
		})
	}
}

func TestBackoffDelay(t *testing.T) {
	assert.GreaterOrEqual(t, backoffDelay(1), time.Second)
	assert.Less(t, backoffDelay(1), 1100*time.Millisecond+time.Millisecond)
	assert.GreaterOrEqual(t, backoffDelay(3), 4*time.Second)
	assert.Equal(t, 30*time.Second, backoffDelay(10))
}

func TestBuildPrompts(t *testing.T) {
	opCfg := testOpConfig()
	g := &GeminiProvider{config: &opCfg}

	system, user := g.buildPrompts(types.SuggestInput{ResumeText: "SUMMARY:\nEngineer"})
	assert.Equal(t, DefaultSystemPrompt, system)
	assert.Contains(t, user, "SUMMARY:\nEngineer")
	assert.Contains(t, user, noJobDescription)

	opCfg.CustomPrompts.UserPrompt = "R=%s J=%s"
	g.prompts = config.LoadedPrompts{SystemPrompt: "from file"}
	system, user = g.buildPrompts(types.SuggestInput{ResumeText: "cv", JobDescription: " Go dev "})
	assert.Equal(t, "from file", system)
	assert.Equal(t, "R=cv J=Go dev", user)
}

func TestBuildSuggestSchema(t *testing.T) {
	opCfg := testOpConfig()
	g := &GeminiProvider{config: &opCfg}

	genaiConfig := g.buildSuggestSchema()
	assert.Equal(t, "application/json", genaiConfig.ResponseMIMEType)
	require.NotNil(t, genaiConfig.Temperature)
	assert.Equal(t, float32(0.3), *genaiConfig.Temperature)

	diffs := genaiConfig.ResponseSchema.Properties["sectionDiffs"]
	require.NotNil(t, diffs)
	suggestion := diffs.Items.Properties["suggestions"].Items
	assert.Equal(t, []string{"addition", "removal", "improvement", "replace"}, suggestion.Properties["type"].Enum)
	assert.True(t, strings.Contains(strings.Join(suggestion.Required, ","), "id"))
}
