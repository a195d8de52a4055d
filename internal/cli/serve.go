package cli

import (
	"fmt"

	"resumerecon/internal/server"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP reconcile and review session server",
	Long: `Start an HTTP server exposing the reconciler, AI suggestions, PDF
rendering and review sessions.

Available endpoints:
- POST /reconcile/structured, /reconcile/text, /reconcile/accepted
- POST /reconcile/parse, /reconcile/normalize
- POST /suggest: generate suggestions (requires an AI API key)
- POST /render: render a resume to PDF (requires a backend)
- POST /sessions, GET /sessions/{id}, POST /sessions/{id}/accept|edit|apply,
  DELETE /sessions/{id}: review sessions
- GET /health: Health check endpoint
- GET /stats: Server statistics and rate limiting info

The server stops gracefully on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("port", "p", "", "Port to listen on (default from config)")
	serveCmd.Flags().String("host", "", "Host to bind to (default from config)")
	serveCmd.Flags().String("alias-file", "", "Section alias file (overrides config)")
	serveCmd.Flags().Bool("watch-aliases", false, "Reload the alias file when it changes (overrides config)")
	serveCmd.Flags().Duration("session-ttl", 0, "Idle time after which review sessions expire (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.Port, _ = flags.GetString("port")
	}
	if flags.Changed("host") {
		cfg.Server.Host, _ = flags.GetString("host")
	}
	if flags.Changed("alias-file") {
		cfg.Reconciler.AliasFile, _ = flags.GetString("alias-file")
	}
	if flags.Changed("watch-aliases") {
		cfg.Reconciler.WatchAliasFile, _ = flags.GetBool("watch-aliases")
	}
	if flags.Changed("session-ttl") {
		cfg.Server.Sessions.TTL, _ = flags.GetDuration("session-ttl")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	serverCfg := server.ServerConfig{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		Version:        Version,
		APIKeys:        cfg.Server.APIKeys,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxRequestSize: cfg.Server.MaxRequestSize,
		RateLimit:      &cfg.Server.RateLimit,
		Sessions:       cfg.Server.Sessions,
	}
	return server.NewServer(cfg, serverCfg, logger).Start(cmd.Context())
}
