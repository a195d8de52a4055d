package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"resumerecon/internal/ai"
	"resumerecon/internal/config"
	appErrors "resumerecon/internal/errors"
	"resumerecon/internal/reconciler"
	"resumerecon/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reconcileBody = `{
  "sectionDiffs": [
    {"section": "Summary", "suggestions": [
      {"id": "s1", "type": "replace", "original": "Dev", "suggested": "Senior engineer"}
    ]},
    {"section": "Skills", "suggestions": [
      {"id": "k1", "type": "addition", "suggested": ["Go", "SQL"]}
    ]}
  ],
  "acceptAll": true
}`

type fakeSuggester struct {
	analysis types.AnalysisResponse
	err      error
}

func (f *fakeSuggester) Suggest(ctx context.Context, input types.SuggestInput) (types.AnalysisResponse, *ai.TokenUsage, error) {
	return f.analysis, &ai.TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}, f.err
}

func (f *fakeSuggester) GetModelInfo(ctx context.Context) *ai.ModelInfo {
	return &ai.ModelInfo{Name: "fake-model", Available: true}
}

func (f *fakeSuggester) CircuitBreakerStats() map[string]any { return map[string]any{"state": "closed"} }
func (f *fakeSuggester) Model() string                       { return "fake-model" }

type fakeBackend struct {
	mu      sync.Mutex
	saved   []types.ImprovedResumeRequest
	renders []types.RenderRequest
	err     error
}

func (f *fakeBackend) SaveImprovedResume(ctx context.Context, req types.ImprovedResumeRequest) (*types.ImprovedResumeResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.saved = append(f.saved, req)
	return &types.ImprovedResumeResponse{ID: "resume-1", Title: req.Title}, nil
}

func (f *fakeBackend) RenderPDF(ctx context.Context, req types.RenderRequest) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.renders = append(f.renders, req)
	return []byte("%PDF-1.7 fake"), nil
}

func (f *fakeBackend) IsHealthy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err == nil
}

func (f *fakeBackend) Stats() map[string]any { return map[string]any{"healthy": f.IsHealthy()} }

func (f *fakeBackend) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type testServer struct {
	*Server
	url string
}

func newTestServer(t *testing.T, mutate ...func(*Server, *ServerConfig)) *testServer {
	t.Helper()

	cfg := ServerConfig{
		Host:           "127.0.0.1",
		Port:           "0",
		Version:        "test",
		MaxRequestSize: 1 << 20,
		Sessions:       config.SessionConfig{TTL: time.Hour, MaxSuggestions: 50},
	}
	probe := &Server{}
	for _, m := range mutate {
		m(probe, &cfg)
	}

	s := NewServer(&config.Config{}, cfg, appErrors.NewLogger(slog.LevelError))
	s.Reconciler = reconciler.Default()
	if probe.Suggester != nil {
		s.Suggester = probe.Suggester
	}
	if probe.Backend != nil {
		s.Backend = probe.Backend
	}
	if s.RateLimiter != nil {
		t.Cleanup(s.RateLimiter.Close)
	}

	ts := httptest.NewServer(s.Handler(nil))
	t.Cleanup(ts.Close)
	return &testServer{Server: s, url: ts.URL}
}

func (ts *testServer) do(t *testing.T, method, path, body string, headers ...string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.url+path, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestReconcileEndpoints(t *testing.T) {
	ts := newTestServer(t)

	t.Run("structured", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, "/reconcile/structured", reconcileBody)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		result := decode[reconciler.Result[types.StructuredResumeSections]](t, resp)
		assert.Equal(t, "Senior engineer", result.Value.Summary)
		assert.Equal(t, []any{"Go", "SQL"}, result.Value.Skills)
		assert.Empty(t, result.Warnings)
	})

	t.Run("text", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, "/reconcile/text", reconcileBody)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		result := decode[reconciler.Result[string]](t, resp)
		assert.Contains(t, result.Value, "SUMMARY:\nSenior engineer")
		assert.Contains(t, result.Value, "SKILLS:\nGo\nSQL")
	})

	t.Run("text as plain output", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, "/reconcile/text?format=text", reconcileBody)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "SKILLS:\nGo\nSQL")
	})

	t.Run("accepted", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, "/reconcile/accepted", reconcileBody)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		result := decode[reconciler.Result[map[string]any]](t, resp)
		assert.Contains(t, result.Value, "summary")
		assert.Contains(t, result.Value, "skills")
	})

	t.Run("only listed ids", func(t *testing.T) {
		body := strings.Replace(reconcileBody, `"acceptAll": true`, `"acceptedIds": ["k1"]`, 1)
		resp := ts.do(t, http.MethodPost, "/reconcile/structured", body)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		result := decode[reconciler.Result[types.StructuredResumeSections]](t, resp)
		assert.Empty(t, result.Value.Summary)
		assert.Equal(t, []any{"Go", "SQL"}, result.Value.Skills)
	})

	t.Run("parse", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, "/reconcile/parse", `{"text": "SUMMARY:\nBuilds things\n\nSKILLS:\nGo\nSQL"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		result := decode[reconciler.Result[types.StructuredResumeSections]](t, resp)
		assert.Equal(t, "Builds things", result.Value.Summary)
		assert.Len(t, result.Value.Skills, 2)
	})

	t.Run("normalize", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, "/reconcile/normalize", `{"content": "[\"Go\", \"SQL\"]"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		result := decode[reconciler.Result[[]any]](t, resp)
		assert.Equal(t, []any{"Go", "SQL"}, result.Value)
	})
}

func TestReconcileRejectsBadRequests(t *testing.T) {
	ts := newTestServer(t, func(_ *Server, cfg *ServerConfig) {
		cfg.Sessions.MaxSuggestions = 2
	})

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"malformed json", "/reconcile/structured", `{"suggestions": [`, http.StatusBadRequest},
		{"unknown suggestion type", "/reconcile/structured", `{"suggestions": [{"id": "a", "section": "skills", "type": "rewrite"}]}`, http.StatusBadRequest},
		{"missing id", "/reconcile/text", `{"suggestions": [{"section": "skills", "type": "addition"}]}`, http.StatusBadRequest},
		{"too many suggestions", "/reconcile/text", `{"suggestions": [
			{"id": "a", "section": "skills", "type": "addition"},
			{"id": "b", "section": "skills", "type": "addition"},
			{"id": "c", "section": "skills", "type": "addition"}]}`, http.StatusBadRequest},
		{"parse without text", "/reconcile/parse", `{}`, http.StatusBadRequest},
		{"unsupported format", "/reconcile/text?format=yaml", reconcileBody, http.StatusBadRequest},
		{"wrong method", "/reconcile/text", "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := http.MethodPost
			if tt.body == "" {
				method = http.MethodGet
			}
			resp := ts.do(t, method, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}

	t.Run("wrong content type", func(t *testing.T) {
		resp, err := http.Post(ts.url+"/reconcile/text", "text/plain", strings.NewReader(reconcileBody))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestRequestSizeLimit(t *testing.T) {
	ts := newTestServer(t, func(_ *Server, cfg *ServerConfig) {
		cfg.MaxRequestSize = 64
	})

	resp := ts.do(t, http.MethodPost, "/reconcile/text", reconcileBody)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errResp := decode[ErrorResponse](t, resp)
	assert.Contains(t, errResp.Message, "too large")
}

func TestAuthentication(t *testing.T) {
	ts := newTestServer(t, func(_ *Server, cfg *ServerConfig) {
		cfg.APIKeys = []string{"secret-key-123"}
	})

	tests := []struct {
		name    string
		headers []string
		status  int
	}{
		{"missing key", nil, http.StatusUnauthorized},
		{"wrong key", []string{"X-API-Key", "nope"}, http.StatusUnauthorized},
		{"header key", []string{"X-API-Key", "secret-key-123"}, http.StatusOK},
		{"bearer token", []string{"Authorization", "Bearer secret-key-123"}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.do(t, http.MethodPost, "/reconcile/text", reconcileBody, tt.headers...)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}

	t.Run("health stays public", func(t *testing.T) {
		resp := ts.do(t, http.MethodGet, "/health", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("rotated keys apply immediately", func(t *testing.T) {
		ts.APIKeys.Replace([]string{"rotated-key-456"})
		resp := ts.do(t, http.MethodPost, "/reconcile/text", reconcileBody, "X-API-Key", "secret-key-123")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp = ts.do(t, http.MethodPost, "/reconcile/text", reconcileBody, "X-API-Key", "rotated-key-456")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestRateLimiting(t *testing.T) {
	ts := newTestServer(t, func(_ *Server, cfg *ServerConfig) {
		cfg.RateLimit = &config.RateLimitConfig{Enabled: true, RequestsPerMin: 1, BurstCapacity: 2, ByIP: true}
	})

	for range 2 {
		resp := ts.do(t, http.MethodPost, "/reconcile/text", reconcileBody)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp := ts.do(t, http.MethodPost, "/reconcile/text", reconcileBody)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestHealthAndStats(t *testing.T) {
	backend := &fakeBackend{}
	ts := newTestServer(t, func(s *Server, _ *ServerConfig) {
		s.Suggester = &fakeSuggester{}
		s.Backend = backend
	})

	resp := ts.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decode[map[string]any](t, resp)
	assert.Equal(t, "healthy", health["status"])
	assert.Contains(t, health, "circuit_breakers")

	resp = ts.do(t, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decode[map[string]any](t, resp)
	assert.Contains(t, stats, "aliases")
	assert.Contains(t, stats, "sessions")

	backend.fail(appErrors.NewBackendError(appErrors.ErrCodeBackendFailed, "down", nil))
	resp = ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "degraded", decode[map[string]any](t, resp)["status"])
}

func TestSuggestEndpoint(t *testing.T) {
	t.Run("unavailable without provider", func(t *testing.T) {
		ts := newTestServer(t)
		resp := ts.do(t, http.MethodPost, "/suggest", `{"resumeText": "Go developer"}`)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("opens a session", func(t *testing.T) {
		suggester := &fakeSuggester{analysis: types.AnalysisResponse{SectionDiffs: []types.SectionDiff{{
			Section:     "Skills",
			Suggestions: []types.Suggestion{{ID: "k1", Type: types.SuggestionAddition, Suggested: "Go"}},
		}}}}
		ts := newTestServer(t, func(s *Server, _ *ServerConfig) { s.Suggester = suggester })

		resp := ts.do(t, http.MethodPost, "/suggest", `{"resumeText": "Go developer", "openSession": true}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		out := decode[SuggestResponse](t, resp)
		assert.Equal(t, "fake-model", out.Model)
		require.NotEmpty(t, out.SessionID)

		session, ok := ts.Sessions.Get(out.SessionID)
		require.True(t, ok)
		require.Len(t, session.Suggestions, 1)
		assert.Equal(t, "Skills", session.Suggestions[0].Section)
	})

	t.Run("provider errors map to bad gateway", func(t *testing.T) {
		suggester := &fakeSuggester{err: appErrors.NewAIError(appErrors.ErrCodeAIServiceFailed, "quota", nil)}
		ts := newTestServer(t, func(s *Server, _ *ServerConfig) { s.Suggester = suggester })

		resp := ts.do(t, http.MethodPost, "/suggest", `{"resumeText": "Go developer"}`)
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		assert.Equal(t, appErrors.ErrCodeAIServiceFailed, decode[ErrorResponse](t, resp).Code)
	})

	t.Run("blank resume", func(t *testing.T) {
		ts := newTestServer(t, func(s *Server, _ *ServerConfig) { s.Suggester = &fakeSuggester{} })
		resp := ts.do(t, http.MethodPost, "/suggest", `{"resumeText": "   "}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestRenderEndpoint(t *testing.T) {
	backend := &fakeBackend{}
	ts := newTestServer(t, func(s *Server, _ *ServerConfig) { s.Backend = backend })

	resp := ts.do(t, http.MethodPost, "/render", `{"reconcile": `+reconcileBody+`, "template": "modern"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	pdf, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))

	require.Len(t, backend.renders, 1)
	assert.Equal(t, "modern", backend.renders[0].Template)
	require.NotNil(t, backend.renders[0].Structured)
	assert.Contains(t, backend.renders[0].FinalResumeText, "SKILLS:\nGo\nSQL")

	resp = ts.do(t, http.MethodPost, "/render", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
