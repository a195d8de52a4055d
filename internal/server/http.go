package server

import (
	"context"
	"sync"
	"time"

	"resumerecon/internal/ai"
	"resumerecon/internal/config"
	appErrors "resumerecon/internal/errors"
	"resumerecon/internal/reconciler"
	"resumerecon/internal/types"

	"github.com/go-playground/validator/v10"
)

// ReconcileRequest is the common body of the /reconcile endpoints. Suggestions
// may be sent flat, grouped as sectionDiffs, or both.
type ReconcileRequest struct {
	Suggestions  []types.Suggestion  `json:"suggestions"`
	SectionDiffs []types.SectionDiff `json:"sectionDiffs"`
	AcceptedIDs  []string            `json:"acceptedIds"`
	AcceptAll    bool                `json:"acceptAll"`
	EditedText   types.EditedText    `json:"editedText"`
}

// ParseRequest represents the request body for the parse endpoint
type ParseRequest struct {
	Text string `json:"text" validate:"required"`
}

// NormalizeRequest represents the request body for the normalize endpoint
type NormalizeRequest struct {
	Content any `json:"content" validate:"required"`
}

// SuggestRequest represents the request body for the suggest endpoint
type SuggestRequest struct {
	ResumeText     string `json:"resumeText" validate:"required"`
	JobDescription string `json:"jobDescription"`
	OpenSession    bool   `json:"openSession"`
}

// SuggestResponse carries generated suggestions and, when requested, the
// review session opened for them
type SuggestResponse struct {
	Analysis  types.AnalysisResponse `json:"analysis"`
	Model     string                 `json:"model,omitempty"`
	SessionID string                 `json:"sessionId,omitempty"`
}

// RenderRequest renders either final text or a reconcile request to PDF
type RenderRequest struct {
	Text      string            `json:"text"`
	Reconcile *ReconcileRequest `json:"reconcile"`
	Template  string            `json:"template"`
}

// CreateSessionRequest opens a review session
type CreateSessionRequest struct {
	ReconcileRequest
}

// AcceptRequest changes the accepted set of a session
type AcceptRequest struct {
	Accept    []string `json:"accept"`
	Reject    []string `json:"reject"`
	AcceptAll bool     `json:"acceptAll"`
	RejectAll bool     `json:"rejectAll"`
}

// EditRequest sets or, with a null text, clears a reviewer override
type EditRequest struct {
	ID   string  `json:"id" validate:"required"`
	Text *string `json:"text"`
}

// ApplyRequest persists a reviewed session as an improved resume
type ApplyRequest struct {
	OriginalResumeID string         `json:"originalResumeId" validate:"required"`
	Title            string         `json:"title" validate:"required"`
	Metadata         map[string]any `json:"metadata"`
	ImprovementScore float64        `json:"improvementScore" validate:"gte=0,lte=100"`
}

// ApplyResponse is returned after the backend stored the improved resume
type ApplyResponse struct {
	Resume   *types.ImprovedResumeResponse `json:"resume"`
	Warnings []reconciler.Warning          `json:"warnings,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// Suggester generates suggestions; satisfied by *ai.Service
type Suggester interface {
	Suggest(ctx context.Context, input types.SuggestInput) (types.AnalysisResponse, *ai.TokenUsage, error)
	GetModelInfo(ctx context.Context) *ai.ModelInfo
	CircuitBreakerStats() map[string]any
	Model() string
}

// Backend persists and renders resumes; satisfied by *backend.Client
type Backend interface {
	SaveImprovedResume(ctx context.Context, req types.ImprovedResumeRequest) (*types.ImprovedResumeResponse, error)
	RenderPDF(ctx context.Context, req types.RenderRequest) ([]byte, error)
	IsHealthy() bool
	Stats() map[string]any
}

// Server holds configuration for the HTTP server
type Server struct {
	Host    string
	Port    string
	Version string

	// Full application configuration
	AppConfig *config.Config

	// API Authentication
	APIKeys *APIKeySet

	// Timeout configurations
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Request size limits
	MaxRequestSize int64
	MaxSuggestions int

	// Rate limiting
	RateLimit   *config.RateLimitConfig
	RateLimiter *RateLimiter

	// Domain components. Suggester and Backend are optional; their
	// endpoints answer 503 when unset.
	Reconciler *reconciler.Reconciler
	Suggester  Suggester
	Backend    Backend
	Sessions   *SessionStore

	// Secret and alias reloading
	aliasWatcher *AliasWatcher
	vaultWatcher *VaultWatcher

	validate *validator.Validate

	// Logger
	Logger *appErrors.Logger
}

// ServerConfig holds configuration for creating a Server instance
type ServerConfig struct {
	Host           string
	Port           string
	Version        string
	APIKeys        []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxRequestSize int64
	RateLimit      *config.RateLimitConfig
	Sessions       config.SessionConfig
}

// NewServer creates a new Server instance from a ServerConfig struct
func NewServer(appCfg *config.Config, cfg ServerConfig, logger *appErrors.Logger) *Server {
	var rateLimiter *RateLimiter
	if cfg.RateLimit != nil && cfg.RateLimit.Enabled {
		rateLimiter = NewRateLimiter(
			cfg.RateLimit.RequestsPerMin,
			cfg.RateLimit.Window,
			cfg.RateLimit.BurstCapacity,
			logger,
		)
	}

	return &Server{
		Host:           cfg.Host,
		Port:           cfg.Port,
		Version:        cfg.Version,
		AppConfig:      appCfg,
		APIKeys:        NewAPIKeySet(cfg.APIKeys),
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxRequestSize: cfg.MaxRequestSize,
		MaxSuggestions: cfg.Sessions.MaxSuggestions,
		RateLimit:      cfg.RateLimit,
		RateLimiter:    rateLimiter,
		Sessions:       NewSessionStore(cfg.Sessions.TTL, cfg.Sessions.CleanupInterval),
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		Logger:         logger,
	}
}

// APIKeySet is the set of accepted API keys. It is swapped as a whole when
// keys are rotated in Vault.
type APIKeySet struct {
	mu   sync.RWMutex
	keys map[string]bool
}

// NewAPIKeySet builds a key set, ignoring blank keys
func NewAPIKeySet(keys []string) *APIKeySet {
	set := &APIKeySet{}
	set.Replace(keys)
	return set
}

// Replace swaps in a new set of keys
func (k *APIKeySet) Replace(keys []string) {
	next := make(map[string]bool, len(keys))
	for _, key := range keys {
		if key != "" {
			next[key] = true
		}
	}
	k.mu.Lock()
	k.keys = next
	k.mu.Unlock()
}

// Valid reports whether key is accepted
func (k *APIKeySet) Valid(key string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.keys[key]
}

// Len returns the number of configured keys; zero disables authentication
func (k *APIKeySet) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.keys)
}
