package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"resumerecon/internal/ai"
	"resumerecon/internal/backend"
	"resumerecon/internal/config"
	"resumerecon/internal/observability"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully
func (s *Server) Start(ctx context.Context) error {
	om, err := s.initializeObservability()
	if err != nil {
		return err
	}
	defer s.shutdownObservability(om)

	if err := s.initializeComponents(om); err != nil {
		return err
	}
	s.startWatchers(om)

	httpServer := s.setupHTTPServer(om)
	s.displayServerInfo()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.Logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed to start: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.Logger.Info("Shutdown requested, starting graceful shutdown")
		return s.performGracefulShutdown(httpServer)
	})

	return g.Wait()
}

// initializeObservability sets up observability components
func (s *Server) initializeObservability() (*observability.ObservabilityManager, error) {
	obsConfig := observability.GetObservabilityConfig(s.AppConfig, s.Version)
	om, err := observability.NewObservabilityManager(obsConfig, s.AppConfig, s.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}
	return om, nil
}

// shutdownObservability handles observability cleanup
func (s *Server) shutdownObservability(om *observability.ObservabilityManager) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := om.Shutdown(ctx); err != nil {
		s.Logger.LogError(err, "Failed to shutdown observability")
	}
}

// initializeComponents builds whatever domain components were not injected.
// The reconciler is required; the AI provider and backend are optional.
func (s *Server) initializeComponents(om *observability.ObservabilityManager) error {
	if s.Reconciler == nil {
		r, err := s.AppConfig.Reconciler.NewReconciler()
		if err != nil {
			return fmt.Errorf("failed to build reconciler: %w", err)
		}
		s.Reconciler = r
	}

	if s.Suggester == nil {
		if s.AppConfig.GetSuggestConfig().APIKey == "" {
			s.Logger.Warn("No AI API key configured, /suggest is disabled")
		} else if svc, err := ai.NewService(s.AppConfig, s.Logger); err != nil {
			s.Logger.LogError(err, "Failed to initialize AI service, /suggest is disabled")
		} else {
			s.Suggester = svc
		}
	}

	if s.Backend == nil && s.AppConfig.Backend.BaseURL != "" {
		client, err := backend.NewClient(s.AppConfig.Backend, om.GetMetrics(), s.Logger)
		if err != nil {
			return fmt.Errorf("failed to build backend client: %w", err)
		}
		s.Backend = client
	}

	metrics := om.GetMetrics()
	s.Sessions.OnExpired(func(id string) {
		metrics.RecordSessionEvent(context.Background(), "expired")
		s.Logger.Info("Review session expired unapplied", "session_id", id)
	})
	return nil
}

// startWatchers starts the alias file and Vault API key watchers when
// configured. A watcher that fails to start is logged, not fatal.
func (s *Server) startWatchers(om *observability.ObservabilityManager) {
	cfg := s.AppConfig
	metrics := om.GetMetrics()

	if cfg.Reconciler.WatchAliasFile && cfg.Reconciler.AliasFile != "" {
		watcher, err := NewAliasWatcher(cfg.Reconciler.AliasFile, cfg.Reconciler.DebounceDelay, func() {
			metrics.RecordAliasReload(context.Background(), s.reloadAliases(cfg.Reconciler) == nil)
		}, s.Logger)
		if err == nil {
			err = watcher.Start()
		}
		if err != nil {
			s.Logger.LogError(err, "Failed to start alias file watcher")
		} else {
			s.aliasWatcher = watcher
		}
	}

	if cfg.Server.VaultWatcher.Enabled && cfg.Vault.Enabled && cfg.Vault.Secrets.APIKeys != "" {
		client, err := config.NewVaultClient(cfg.Vault, s.Logger)
		if err != nil {
			s.Logger.LogError(err, "Failed to create Vault client for API key watcher")
			return
		}
		watcher := NewVaultWatcher(client, cfg.Vault.Secrets.APIKeys, cfg.Server.VaultWatcher.PollInterval,
			func(keys []string, err error) {
				if err != nil {
					s.Logger.LogError(err, "API key reload failed, keeping current keys")
					metrics.RecordKeyReload(context.Background(), false)
					return
				}
				s.APIKeys.Replace(keys)
				metrics.RecordKeyReload(context.Background(), true)
			}, s.Logger)
		if err := watcher.Start(); err != nil {
			s.Logger.LogError(err, "Failed to start Vault API key watcher")
			return
		}
		s.vaultWatcher = watcher
	}
}

// reloadAliases re-reads configured aliases into the live table. On error
// the previous table stays in effect.
func (s *Server) reloadAliases(cfg config.ReconcilerConfig) error {
	aliases, err := cfg.ResolveAliases()
	if err == nil {
		err = s.Reconciler.Aliases().Replace(aliases)
	}
	if err != nil {
		s.Logger.LogError(err, "Alias reload failed, keeping previous aliases", "file", cfg.AliasFile)
		return err
	}
	stats := s.Reconciler.Aliases().Stats()
	s.Logger.Info("Section aliases reloaded", "labels", stats.Labels, "version", stats.Version)
	return nil
}

// setupHTTPServer creates and configures the HTTP server
func (s *Server) setupHTTPServer(om *observability.ObservabilityManager) *http.Server {
	return &http.Server{
		Addr:         net.JoinHostPort(s.Host, s.Port),
		Handler:      s.Handler(om),
		ReadTimeout:  s.ReadTimeout,
		WriteTimeout: s.WriteTimeout,
		IdleTimeout:  s.IdleTimeout,
	}
}

// performGracefulShutdown stops watchers, then drains in-flight requests
func (s *Server) performGracefulShutdown(server *http.Server) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.stopWatchers()
	s.cleanupRateLimiter()

	s.Logger.Info("Shutting down HTTP server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.Logger.LogError(err, "Failed to shutdown server gracefully, forcing close")
		return server.Close()
	}

	if closer, ok := s.Suggester.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			s.Logger.LogError(err, "Failed to close AI service")
		}
	}

	s.Logger.Info("Server shutdown completed successfully", "open_sessions", s.Sessions.Count())
	return nil
}

func (s *Server) stopWatchers() {
	if s.aliasWatcher != nil {
		if err := s.aliasWatcher.Stop(); err != nil {
			s.Logger.LogError(err, "Failed to stop alias watcher")
		}
	}
	if s.vaultWatcher != nil {
		if err := s.vaultWatcher.Stop(); err != nil {
			s.Logger.LogError(err, "Failed to stop Vault watcher")
		}
	}
}

// cleanupRateLimiter cleans up the rate limiter resources
func (s *Server) cleanupRateLimiter() {
	if s.RateLimiter != nil {
		s.RateLimiter.Close()
		s.Logger.Info("Rate limiter cleaned up")
	}
}
