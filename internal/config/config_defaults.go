package config

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// AI Configuration - Global defaults
	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.model", "gemini-2.0-flash")
	v.SetDefault("ai.timeout", 60*time.Second)
	v.SetDefault("ai.apiKey", "")
	v.SetDefault("ai.maxRetries", 3)
	v.SetDefault("ai.temperature", 0.7)
	v.SetDefault("ai.useSystemPrompts", true)

	// Suggestion generation
	v.SetDefault("ai.suggest.provider", "gemini")
	v.SetDefault("ai.suggest.model", "")
	v.SetDefault("ai.suggest.timeout", 90*time.Second)
	v.SetDefault("ai.suggest.apiKey", "")
	v.SetDefault("ai.suggest.maxRetries", 2)
	v.SetDefault("ai.suggest.temperature", 0.3) // Low temperature keeps section labels stable
	v.SetDefault("ai.suggest.useSystemPrompts", true)
	v.SetDefault("ai.suggest.circuitBreaker.enabled", true)
	v.SetDefault("ai.suggest.circuitBreaker.maxRequests", 3)
	v.SetDefault("ai.suggest.circuitBreaker.interval", 60*time.Second)
	v.SetDefault("ai.suggest.circuitBreaker.timeout", 60*time.Second)
	v.SetDefault("ai.suggest.circuitBreaker.minRequests", 3)
	v.SetDefault("ai.suggest.circuitBreaker.failureThreshold", 0.6)

	// Server Configuration
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.readTimeout", 30*time.Second)
	v.SetDefault("server.writeTimeout", 60*time.Second)
	v.SetDefault("server.idleTimeout", 120*time.Second)
	v.SetDefault("server.maxRequestSize", 2*1024*1024) // 2MB
	v.SetDefault("server.apiKeys", []string{})
	v.SetDefault("server.rateLimit.enabled", false)
	v.SetDefault("server.rateLimit.requestsPerMin", 60)
	v.SetDefault("server.rateLimit.burstCapacity", 10)
	v.SetDefault("server.rateLimit.byIP", true)
	v.SetDefault("server.rateLimit.byAPIKey", false)
	v.SetDefault("server.rateLimit.window", time.Minute)
	v.SetDefault("server.sessions.ttl", 2*time.Hour)
	v.SetDefault("server.sessions.cleanupInterval", 10*time.Minute)
	v.SetDefault("server.sessions.maxSuggestions", 500)
	v.SetDefault("server.vaultWatcher.enabled", false)
	v.SetDefault("server.vaultWatcher.pollInterval", 5*time.Minute)

	// App Configuration
	v.SetDefault("app.logLevel", "info")
	v.SetDefault("app.logFile", "")
	v.SetDefault("app.logMaxSizeMB", 100)
	v.SetDefault("app.logMaxBackups", 5)
	v.SetDefault("app.logMaxAgeDays", 28)
	v.SetDefault("app.logCompress", true)
	v.SetDefault("app.defaultFormat", "json")
	v.SetDefault("app.supportedFormats", []string{"json", "text", "markdown"})
	v.SetDefault("app.maxFileSize", 5*1024*1024) // 5MB, documents are larger than plain text

	// Reconciler Configuration
	v.SetDefault("reconciler.aliases", map[string][]string{})
	v.SetDefault("reconciler.aliasFile", "")
	v.SetDefault("reconciler.watchAliasFile", true)
	v.SetDefault("reconciler.debounceDelay", time.Second)
	v.SetDefault("reconciler.reconstructFragments", true)
	v.SetDefault("reconciler.strictSchema", false)

	// Backend Configuration
	v.SetDefault("backend.baseURL", "")
	v.SetDefault("backend.token", "")
	v.SetDefault("backend.timeout", 30*time.Second)
	v.SetDefault("backend.improvedResumePath", "/api/improved-resumes")
	v.SetDefault("backend.renderPath", "/api/templates/render")
	v.SetDefault("backend.defaultTemplate", "classic")
	v.SetDefault("backend.maxRetries", 2)
	v.SetDefault("backend.renderCacheTTL", 15*time.Minute)
	v.SetDefault("backend.circuitBreaker.enabled", true)
	v.SetDefault("backend.circuitBreaker.maxRequests", 2)
	v.SetDefault("backend.circuitBreaker.interval", 60*time.Second)
	v.SetDefault("backend.circuitBreaker.timeout", 30*time.Second)
	v.SetDefault("backend.circuitBreaker.minRequests", 5)
	v.SetDefault("backend.circuitBreaker.failureThreshold", 0.5)

	// Vault Configuration
	v.SetDefault("vault.enabled", false)
	v.SetDefault("vault.address", "")
	v.SetDefault("vault.token", "")
	v.SetDefault("vault.tokenFile", "")
	v.SetDefault("vault.namespace", "")
	v.SetDefault("vault.secrets.apiKeys", "")
	v.SetDefault("vault.secrets.geminiKey", "")
	v.SetDefault("vault.secrets.backendToken", "")

	// Observability Configuration
	v.SetDefault("observability.enabled", true)
	v.SetDefault("observability.serviceName", "resumerecon")
	v.SetDefault("observability.serviceVersion", "")  // Will use app version if empty
	v.SetDefault("observability.serviceInstance", "") // Will be auto-generated if empty
	v.SetDefault("observability.consoleOutput", false)
	v.SetDefault("observability.sampleRate", 1.0)
	v.SetDefault("observability.tracing.enabled", true)
	v.SetDefault("observability.tracing.sampleRate", 1.0)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.collectionInterval", 15*time.Second)

	v.SetDefault("observability.customMetrics.aiOperations.enabled", true)
	v.SetDefault("observability.customMetrics.aiOperations.trackDuration", true)
	v.SetDefault("observability.customMetrics.aiOperations.trackTokenUsage", true)
	v.SetDefault("observability.customMetrics.reconcile.enabled", true)
	v.SetDefault("observability.customMetrics.reconcile.trackWarnings", true)
	v.SetDefault("observability.customMetrics.reconcile.trackSessions", true)
	v.SetDefault("observability.customMetrics.infrastructure.enabled", true)
	v.SetDefault("observability.customMetrics.infrastructure.trackRateLimits", true)
	v.SetDefault("observability.customMetrics.infrastructure.trackBackend", true)

	v.SetDefault("observability.console.enabled", false)
	v.SetDefault("observability.console.prettyPrint", true)
	v.SetDefault("observability.prometheus.enabled", true)
	v.SetDefault("observability.prometheus.endpoint", "/metrics")
	v.SetDefault("observability.prometheus.port", "9090")
	v.SetDefault("observability.otlp.enabled", false)
	v.SetDefault("observability.otlp.endpoint", "http://localhost:4318")
	v.SetDefault("observability.otlp.insecure", true)
	v.SetDefault("observability.otlp.headers", map[string]string{})
	v.SetDefault("observability.healthCheck.timeout", 15*time.Second)
	v.SetDefault("observability.healthCheck.aiModelCheckTimeout", 10*time.Second)
}
