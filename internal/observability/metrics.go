package observability

import (
	"context"
	"fmt"
	"time"

	"resumerecon/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the custom resumerecon instruments. The zero value records
// nothing, so callers never need to check whether metrics are enabled.
type Metrics struct {
	cfg config.CustomMetricsConfig

	// AI operation metrics
	AIProcessingTime metric.Float64Histogram
	AIRequestCount   metric.Int64Counter
	AIErrorCount     metric.Int64Counter
	AITokenUsage     metric.Int64Histogram

	// Reconciler metrics
	ReconcileCount       metric.Int64Counter
	ReconcileDuration    metric.Float64Histogram
	ReconcileWarnings    metric.Int64Counter
	SuggestionsProcessed metric.Int64Counter

	// Review session metrics
	SessionEvents metric.Int64Counter

	// Infrastructure metrics
	BackendRequests metric.Int64Counter
	BackendDuration metric.Float64Histogram
	RateLimitHits   metric.Int64Counter
	AliasReloads    metric.Int64Counter
	KeyReloads      metric.Int64Counter
}

// TokenUsage represents token usage information from AI responses
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

// AIOperationResult holds the result of an AI operation including token usage
type AIOperationResult struct {
	Error      error
	TokenUsage *TokenUsage
}

// NewMetrics creates every instrument on meter
func NewMetrics(meter metric.Meter, cfg config.CustomMetricsConfig) (*Metrics, error) {
	m := &Metrics{cfg: cfg}
	var err error

	counters := []struct {
		target *metric.Int64Counter
		name   string
		desc   string
	}{
		{&m.AIRequestCount, "resumerecon_ai_requests_total", "Total number of AI requests"},
		{&m.AIErrorCount, "resumerecon_ai_errors_total", "Total number of AI request errors"},
		{&m.ReconcileCount, "resumerecon_reconcile_operations_total", "Total number of reconcile operations"},
		{&m.ReconcileWarnings, "resumerecon_reconcile_warnings_total", "Reconcile warnings by code"},
		{&m.SuggestionsProcessed, "resumerecon_suggestions_processed_total", "Suggestions seen by the reconciler, split by accepted"},
		{&m.SessionEvents, "resumerecon_review_session_events_total", "Review session lifecycle events"},
		{&m.BackendRequests, "resumerecon_backend_requests_total", "Requests sent to the persistence and rendering backend"},
		{&m.RateLimitHits, "resumerecon_rate_limit_hits_total", "Total number of rate limit hits"},
		{&m.AliasReloads, "resumerecon_alias_reloads_total", "Section alias table reloads"},
		{&m.KeyReloads, "resumerecon_api_key_reloads_total", "API key set reloads from Vault"},
	}
	for _, c := range counters {
		*c.target, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s metric: %w", c.name, err)
		}
	}

	m.AIProcessingTime, err = meter.Float64Histogram(
		"resumerecon_ai_processing_duration_seconds",
		metric.WithDescription("Time spent processing AI requests"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AI processing time metric: %w", err)
	}

	m.AITokenUsage, err = meter.Int64Histogram(
		"resumerecon_ai_token_usage",
		metric.WithDescription("Token usage for AI requests (input, output, total)"),
		metric.WithUnit("tokens"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AI token usage metric: %w", err)
	}

	m.ReconcileDuration, err = meter.Float64Histogram(
		"resumerecon_reconcile_duration_seconds",
		metric.WithDescription("Time spent in reconcile operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reconcile duration metric: %w", err)
	}

	m.BackendDuration, err = meter.Float64Histogram(
		"resumerecon_backend_request_duration_seconds",
		metric.WithDescription("Latency of backend requests"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend duration metric: %w", err)
	}

	return m, nil
}

// TrackAIOperationWithTokens instruments an AI operation with tracing, metrics, and token usage
func (m *Metrics) TrackAIOperationWithTokens(ctx context.Context, operation string, fn func(context.Context) *AIOperationResult) error {
	tracer := otel.Tracer("resumerecon.ai")
	ctx, span := tracer.Start(ctx, "ai."+operation)
	defer span.End()

	start := time.Now()
	result := fn(ctx)
	duration := time.Since(start).Seconds()

	var err error
	if result != nil {
		err = result.Error
	}

	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
		attribute.Bool("success", err == nil),
	}
	span.SetAttributes(attrs...)

	if m.AIRequestCount != nil && m.cfg.AIOperations.Enabled {
		opt := metric.WithAttributes(attrs...)
		if m.cfg.AIOperations.TrackDuration {
			m.AIProcessingTime.Record(ctx, duration, opt)
		}
		m.AIRequestCount.Add(ctx, 1, opt)
		if err != nil {
			m.AIErrorCount.Add(ctx, 1, opt)
		}
		if result != nil && result.TokenUsage != nil && m.cfg.AIOperations.TrackTokenUsage {
			m.recordTokenMetrics(ctx, operation, result.TokenUsage)
		}
	}

	if result != nil && result.TokenUsage != nil {
		span.SetAttributes(
			attribute.Int64("ai.tokens.input", result.TokenUsage.InputTokens),
			attribute.Int64("ai.tokens.output", result.TokenUsage.OutputTokens),
			attribute.Int64("ai.tokens.total", result.TokenUsage.TotalTokens),
		)
	}

	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("error", true))
	}

	return err
}

func (m *Metrics) recordTokenMetrics(ctx context.Context, operation string, usage *TokenUsage) {
	for tokenType, value := range map[string]int64{
		"input":  usage.InputTokens,
		"output": usage.OutputTokens,
		"total":  usage.TotalTokens,
	} {
		m.AITokenUsage.Record(ctx, value, metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("token_type", tokenType),
		))
	}
}

// RecordReconcile records one reconcile operation and the codes of the
// warnings it produced
func (m *Metrics) RecordReconcile(ctx context.Context, operation string, duration time.Duration, warningCodes []string) {
	if m.ReconcileCount == nil || !m.cfg.Reconcile.Enabled {
		return
	}

	opAttr := attribute.String("operation", operation)
	m.ReconcileCount.Add(ctx, 1, metric.WithAttributes(opAttr, attribute.Bool("degraded", len(warningCodes) > 0)))
	m.ReconcileDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(opAttr))

	if !m.cfg.Reconcile.TrackWarnings {
		return
	}
	for _, code := range warningCodes {
		m.ReconcileWarnings.Add(ctx, 1, metric.WithAttributes(opAttr, attribute.String("code", code)))
	}
}

// RecordSuggestions records how many suggestions were accepted out of total
func (m *Metrics) RecordSuggestions(ctx context.Context, total, accepted int) {
	if m.SuggestionsProcessed == nil || !m.cfg.Reconcile.Enabled {
		return
	}
	m.SuggestionsProcessed.Add(ctx, int64(accepted), metric.WithAttributes(attribute.Bool("accepted", true)))
	m.SuggestionsProcessed.Add(ctx, int64(total-accepted), metric.WithAttributes(attribute.Bool("accepted", false)))
}

// RecordSessionEvent records a review session event such as opened,
// applied or expired
func (m *Metrics) RecordSessionEvent(ctx context.Context, event string) {
	if m.SessionEvents == nil || !m.cfg.Reconcile.Enabled || !m.cfg.Reconcile.TrackSessions {
		return
	}
	m.SessionEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}

// RecordBackendRequest records a backend call. status is 0 for transport errors.
func (m *Metrics) RecordBackendRequest(ctx context.Context, operation string, status int, duration time.Duration, cached bool) {
	if m.BackendRequests == nil || !m.cfg.Infrastructure.Enabled || !m.cfg.Infrastructure.TrackBackend {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Int("status", status),
		attribute.Bool("cached", cached),
	)
	m.BackendRequests.Add(ctx, 1, attrs)
	if !cached {
		m.BackendDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("operation", operation)))
	}
}

// RecordRateLimitHit records a rejected request
func (m *Metrics) RecordRateLimitHit(ctx context.Context, keyType string) {
	if m.RateLimitHits == nil || !m.cfg.Infrastructure.Enabled || !m.cfg.Infrastructure.TrackRateLimits {
		return
	}
	m.RateLimitHits.Add(ctx, 1, metric.WithAttributes(attribute.String("key_type", keyType)))
}

// RecordAliasReload records an alias file reload attempt
func (m *Metrics) RecordAliasReload(ctx context.Context, success bool) {
	if m.AliasReloads == nil || !m.cfg.Infrastructure.Enabled {
		return
	}
	m.AliasReloads.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

// RecordKeyReload records an API key reload from Vault
func (m *Metrics) RecordKeyReload(ctx context.Context, success bool) {
	if m.KeyReloads == nil || !m.cfg.Infrastructure.Enabled {
		return
	}
	m.KeyReloads.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}
