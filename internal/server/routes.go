package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	// Health check (for load balancers)
	s.router.GET("/health", s.handleHealth)

	// REST surface
	api := s.router.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/products", s.handleListProducts)
		api.GET("/counterparties", s.handleListCounterparties)

		sessions := api.Group("/sessions")
		{
			sessions.GET("", s.handleListSessions)
			sessions.GET("/:id", s.handleGetSession)
			sessions.GET("/:id/decision", s.handleGetDecision)
		}
	}

	// Observer websocket
	s.router.GET("/ws/negotiate", s.handleNegotiate)

	// Single-page frontend, when a build directory is configured. Unknown
	// paths fall back to index.html so client-side routing works.
	if s.staticDir != "" {
		s.router.NoRoute(s.handleStatic)
	}
}

func (s *Server) handleStatic(c *gin.Context) {
	reqPath := c.Request.URL.Path
	if strings.HasPrefix(reqPath, "/api") || strings.HasPrefix(reqPath, "/ws") {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	path := filepath.Join(s.staticDir, filepath.Clean("/"+reqPath))
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		c.File(path)
		return
	}

	c.File(filepath.Join(s.staticDir, "index.html"))
}
