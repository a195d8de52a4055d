// Package backend talks to the REST service that persists improved resumes
// and renders them to PDF.
package backend

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"resumerecon/internal/breaker"
	"resumerecon/internal/config"
	appErrors "resumerecon/internal/errors"
	"resumerecon/internal/observability"
	"resumerecon/internal/types"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// maxResponseSize bounds backend response bodies, rendered PDFs included
const maxResponseSize = 20 << 20

// response is what a single round trip produced
type response struct {
	status int
	body   []byte
}

// Client is the backend REST client
type Client struct {
	cfg        config.BackendConfig
	httpClient *http.Client
	breaker    *breaker.Breaker[*response]
	renders    *cache.Cache
	metrics    *observability.Metrics
	logger     *appErrors.Logger

	// retryBaseDelay is the first backoff step; doubled per attempt
	retryBaseDelay time.Duration
}

// NewClient creates a backend client from configuration. metrics may be nil.
func NewClient(cfg config.BackendConfig, metrics *observability.Metrics, logger *appErrors.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, appErrors.NewConfigError(appErrors.ErrCodeInvalidConfig,
			"backend baseURL is not configured (set RESUMERECON_BACKEND_BASEURL)", nil)
	}
	if metrics == nil {
		metrics = &observability.Metrics{}
	}

	c := &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker:        breaker.New[*response]("Backend", cfg.CircuitBreaker, nil, logger),
		metrics:        metrics,
		logger:         logger,
		retryBaseDelay: 250 * time.Millisecond,
	}
	if cfg.RenderCacheTTL > 0 {
		c.renders = cache.New(cfg.RenderCacheTTL, 2*cfg.RenderCacheTTL)
	}
	return c, nil
}

// SaveImprovedResume persists an improved resume
func (c *Client) SaveImprovedResume(ctx context.Context, req types.ImprovedResumeRequest) (*types.ImprovedResumeResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, appErrors.NewInternalError(appErrors.ErrCodeInvalidRequest, "failed to encode improved resume", err)
	}

	resp, err := c.call(ctx, "save_improved_resume", c.cfg.ImprovedResumePath, body, "application/json")
	if err != nil {
		return nil, err
	}

	var out types.ImprovedResumeResponse
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return nil, appErrors.NewBackendError(appErrors.ErrCodeBackendFailed,
			"backend returned an unreadable improved resume response", err)
	}
	c.logger.Info("Improved resume saved", "id", out.ID, "original_resume_id", req.OriginalResumeID)
	return &out, nil
}

// RenderPDF renders resume text or structured sections to a PDF. Identical
// requests are served from the render cache while it is warm.
func (c *Client) RenderPDF(ctx context.Context, req types.RenderRequest) ([]byte, error) {
	if strings.TrimSpace(req.FinalResumeText) == "" && (req.Structured == nil || req.Structured.IsEmpty()) {
		return nil, appErrors.NewValidationError(appErrors.ErrCodeInvalidRequest,
			"render request has no resume content", nil)
	}
	if req.Template == "" {
		req.Template = c.cfg.DefaultTemplate
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, appErrors.NewInternalError(appErrors.ErrCodeInvalidRequest, "failed to encode render request", err)
	}

	key := renderKey(body)
	if c.renders != nil {
		if pdf, found := c.renders.Get(key); found {
			c.metrics.RecordBackendRequest(ctx, "render_pdf", http.StatusOK, 0, true)
			c.logger.Debug("Render cache hit", "key", key[:12])
			return pdf.([]byte), nil
		}
	}

	resp, err := c.call(ctx, "render_pdf", c.cfg.RenderPath, body, "application/pdf")
	if err != nil {
		return nil, err
	}
	if len(resp.body) == 0 {
		return nil, appErrors.NewBackendError(appErrors.ErrCodeBackendFailed, "backend returned an empty PDF", nil)
	}

	if c.renders != nil {
		c.renders.Set(key, resp.body, cache.DefaultExpiration)
	}
	return resp.body, nil
}

// renderKey hashes the encoded request so equal content shares a cache entry
func renderKey(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// call posts body to path through the breaker and retry loop and maps
// non-2xx statuses to backend errors
func (c *Client) call(ctx context.Context, operation, path string, body []byte, accept string) (*response, error) {
	ctx, span := otel.Tracer("resumerecon.backend").Start(ctx, "backend."+operation)
	defer span.End()
	span.SetAttributes(attribute.String("backend.path", path), attribute.Int("request.size", len(body)))

	resp, err := c.breaker.Execute(func() (*response, error) {
		return c.postWithRetry(ctx, operation, path, body, accept)
	})
	if err != nil {
		span.RecordError(err)
		if breaker.IsOpen(err) {
			return nil, appErrors.NewBackendError(appErrors.ErrCodeBackendFailed,
				"backend circuit breaker is open", err)
		}
		return nil, appErrors.NewBackendError(appErrors.ErrCodeBackendFailed,
			fmt.Sprintf("backend %s failed", operation), err)
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.status))
	if resp.status < 200 || resp.status >= 300 {
		return nil, appErrors.NewBackendError(appErrors.ErrCodeBackendRejected,
			fmt.Sprintf("backend rejected %s: %s", operation, describe(resp)), nil).
			WithContext("status", resp.status)
	}
	return resp, nil
}

// postWithRetry retries network errors, 429 and 5xx. Other statuses are
// returned to the caller without an error so the breaker does not count
// client mistakes as backend failures.
func (c *Client) postWithRetry(ctx context.Context, operation, path string, body []byte, accept string) (*response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("Retrying backend request",
				"operation", operation,
				"attempt", attempt,
				"error", lastErr.Error())

			select {
			case <-time.After(c.retryBaseDelay << (attempt - 1)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		start := time.Now()
		resp, err := c.post(ctx, path, body, accept)
		status := 0
		if resp != nil {
			status = resp.status
		}
		c.metrics.RecordBackendRequest(ctx, operation, status, time.Since(start), false)

		switch {
		case err != nil:
			lastErr = err
			if !isRetryable(err) {
				return nil, err
			}
		case resp.status == http.StatusTooManyRequests || resp.status >= 500:
			lastErr = fmt.Errorf("status %s", describe(resp))
		default:
			return resp, nil
		}
	}

	return nil, fmt.Errorf("%s failed after %d retries: %w", operation, c.cfg.MaxRetries, lastErr)
}

func (c *Client) post(ctx context.Context, path string, body []byte, accept string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read backend response: %w", err)
	}
	return &response{status: httpResp.StatusCode, body: data}, nil
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// describe renders a status and a short, single-line body excerpt
func describe(resp *response) string {
	excerpt := strings.Join(strings.Fields(string(resp.body)), " ")
	if runes := []rune(excerpt); len(runes) > 200 {
		excerpt = string(runes[:200]) + "..."
	}
	if excerpt == "" {
		return fmt.Sprintf("%d %s", resp.status, http.StatusText(resp.status))
	}
	return fmt.Sprintf("%d %s", resp.status, excerpt)
}

// IsHealthy reports whether the backend breaker is closed
func (c *Client) IsHealthy() bool {
	return c.breaker.IsHealthy()
}

// Stats returns breaker and render cache statistics
func (c *Client) Stats() map[string]any {
	cached := 0
	if c.renders != nil {
		cached = c.renders.ItemCount()
	}
	return map[string]any{
		"base_url":        c.cfg.BaseURL,
		"circuit_breaker": c.breaker.Stats(),
		"cached_renders":  cached,
	}
}
