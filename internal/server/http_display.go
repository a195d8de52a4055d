package server

import "fmt"

// displayServerInfo shows server configuration information
func (s *Server) displayServerInfo() {
	s.displayEndpoints()
	s.displayAuthInfo()
	s.displayRequestLimitInfo()
	s.displayRateLimitInfo()
	s.displayIntegrations()
}

// displayEndpoints shows available API endpoints
func (s *Server) displayEndpoints() {
	fmt.Println("Available endpoints:")
	fmt.Println("  GET    /health                - Health check")
	fmt.Println("  GET    /stats                 - Server statistics")
	fmt.Println("  POST   /reconcile/structured  - Accepted suggestions as structured sections")
	fmt.Println("  POST   /reconcile/text        - Accepted suggestions as final resume text")
	fmt.Println("  POST   /reconcile/accepted    - Accepted suggestion payloads per section")
	fmt.Println("  POST   /reconcile/parse       - Parse resume text into sections")
	fmt.Println("  POST   /reconcile/normalize   - Normalize section content into items")
	fmt.Println("  POST   /suggest               - Generate suggestions with the AI provider")
	fmt.Println("  POST   /render                - Render a resume to PDF through the backend")
	fmt.Println("  POST   /sessions              - Open a review session")
	fmt.Println("  GET    /sessions/{id}         - Session state and preview")
	fmt.Println("  POST   /sessions/{id}/accept  - Accept or reject suggestions")
	fmt.Println("  POST   /sessions/{id}/edit    - Override a suggestion's text")
	fmt.Println("  POST   /sessions/{id}/apply   - Save the improved resume and close")
	fmt.Println("  DELETE /sessions/{id}         - Discard a session")
}

// displayAuthInfo shows authentication configuration
func (s *Server) displayAuthInfo() {
	if n := s.APIKeys.Len(); n > 0 {
		fmt.Printf("API authentication: ENABLED (%d keys configured)\n", n)
		fmt.Println("Include 'X-API-Key: <your-key>' header in requests to all endpoints except /health and /stats")
	} else {
		fmt.Println("API authentication: DISABLED (no API keys configured)")
		fmt.Println("WARNING: API endpoints are publicly accessible!")
	}
}

// displayRequestLimitInfo shows request size limit configuration
func (s *Server) displayRequestLimitInfo() {
	if s.MaxRequestSize > 0 {
		fmt.Printf("Request size limit: %d bytes (%.1f MB)\n", s.MaxRequestSize, float64(s.MaxRequestSize)/(1024*1024))
	} else {
		fmt.Println("Request size limit: DISABLED")
		fmt.Println("WARNING: No request size limits configured!")
	}
	if s.MaxSuggestions > 0 {
		fmt.Printf("Suggestions per request: at most %d\n", s.MaxSuggestions)
	}
}

// displayRateLimitInfo shows rate limiting configuration
func (s *Server) displayRateLimitInfo() {
	if s.RateLimit != nil && s.RateLimit.Enabled {
		fmt.Printf("Rate limiting: ENABLED (%d requests/min, burst: %d)\n",
			s.RateLimit.RequestsPerMin, s.RateLimit.BurstCapacity)
		if s.RateLimit.ByAPIKey {
			fmt.Println("  - Per API key rate limiting enabled")
		}
		if s.RateLimit.ByIP {
			fmt.Println("  - Per IP address rate limiting enabled")
		}
	} else {
		fmt.Println("Rate limiting: DISABLED")
		fmt.Println("WARNING: No rate limiting configured!")
	}
}

// displayIntegrations shows which optional services are wired
func (s *Server) displayIntegrations() {
	if s.Suggester != nil {
		fmt.Printf("AI suggestions: ENABLED (model: %s)\n", s.Suggester.Model())
	} else {
		fmt.Println("AI suggestions: DISABLED")
	}
	if s.Backend != nil {
		fmt.Println("Backend persistence and rendering: ENABLED")
	} else {
		fmt.Println("Backend persistence and rendering: DISABLED (apply and render answer 503)")
	}
	if s.aliasWatcher != nil {
		fmt.Printf("Alias file: watching %s\n", s.aliasWatcher.File())
	}
}
