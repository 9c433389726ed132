package server

import "net/http"

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// UI page routes (HTML templates)
	mux.HandleFunc("/", s.app.PageHandler.ServeMenu)
	mux.HandleFunc("/deity/{key}", s.app.PageHandler.ServeRitual)

	// Static files (CSS, JS, images)
	mux.HandleFunc("/static/", s.app.PageHandler.StaticFileHandler)

	// MCP endpoint (streamable HTTP)
	if s.app.MCPHandler != nil {
		mux.Handle("/mcp", s.app.MCPHandler)
	}

	// API routes
	mux.HandleFunc("/api/health", s.app.HealthHandler.ServeHTTP)
	mux.HandleFunc("/api/version", s.app.VersionHandler.ServeHTTP)
	mux.HandleFunc("/api/deities", s.app.CatalogHandler.ServeHTTP)

	sh := s.app.SessionHandler
	mux.HandleFunc("/api/session", func(w http.ResponseWriter, r *http.Request) {
		RouteByMethod(w, r, MethodRouter{
			"GET":    sh.HandleSession,
			"HEAD":   sh.HandleSession,
			"DELETE": sh.HandleEnd,
		})
	})
	mux.HandleFunc("/api/session/deity", sh.HandleSelectDeity)
	mux.HandleFunc("/api/session/draw", sh.HandleDraw)
	mux.HandleFunc("/api/session/throw", sh.HandleThrow)
	mux.HandleFunc("/api/session/dismiss", sh.HandleDismiss)
	mux.HandleFunc("/api/session/reset", sh.HandleReset)
	mux.HandleFunc("/api/session/result", sh.HandleResult)
	mux.HandleFunc("/api/session/events", sh.HandleEvents)
	mux.Handle("/api/session/export", s.app.ExportHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.handleNotFound)

	return mux
}

// handleNotFound returns a JSON 404 for unmatched API routes.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"error":"Not Found","message":"The requested endpoint does not exist"}`))
}
