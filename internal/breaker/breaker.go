// Package breaker wraps sony/gobreaker with the settings shared by the AI
// provider and the backend client.
package breaker

import (
	"resumerecon/internal/config"
	"resumerecon/internal/errors"

	"github.com/sony/gobreaker/v2"
)

// TripFunc decides whether the breaker opens for the given counts
type TripFunc func(counts gobreaker.Counts) bool

// Breaker guards calls returning T. A nil *Breaker passes every call through.
type Breaker[T any] struct {
	cb *gobreaker.CircuitBreaker[T]
}

// RatioTrip opens once at least minRequests were seen and the failure ratio
// reaches threshold
func RatioTrip(minRequests uint32, threshold float64) TripFunc {
	return func(counts gobreaker.Counts) bool {
		if counts.Requests == 0 {
			return false
		}
		failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
		return counts.Requests >= minRequests && failureRatio >= threshold
	}
}

// New creates a breaker named name. It returns nil when cfg disables it.
// trip may be nil to use the ratio from cfg.
func New[T any](name string, cfg config.CircuitBreakerConfig, trip TripFunc, logger *errors.Logger) *Breaker[T] {
	if !cfg.Enabled {
		return nil
	}
	if trip == nil {
		trip = RatioTrip(cfg.MinRequests, cfg.FailureThreshold)
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: trip,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if logger == nil {
				return
			}
			logger.Info("Circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
				"max_requests", cfg.MaxRequests,
				"failure_threshold", cfg.FailureThreshold)
		},
	}

	return &Breaker[T]{cb: gobreaker.NewCircuitBreaker[T](settings)}
}

// Execute runs fn with circuit breaker protection
func (b *Breaker[T]) Execute(fn func() (T, error)) (T, error) {
	if b == nil || b.cb == nil {
		return fn()
	}
	return b.cb.Execute(fn)
}

// Stats returns circuit breaker statistics
func (b *Breaker[T]) Stats() map[string]any {
	if b == nil || b.cb == nil {
		return map[string]any{
			"enabled": false,
		}
	}

	return map[string]any{
		"name":    b.cb.Name(),
		"state":   b.cb.State().String(),
		"counts":  b.cb.Counts(),
		"enabled": true,
	}
}

// IsHealthy returns true if the breaker is closed or absent
func (b *Breaker[T]) IsHealthy() bool {
	if b == nil || b.cb == nil {
		return true
	}
	return b.cb.State() == gobreaker.StateClosed
}

// IsOpen reports whether err was returned because the breaker rejected the call
func IsOpen(err error) bool {
	return err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests
}
