// Package server exposes the negotiation service over HTTP: a small REST
// surface for catalog and session data, a Prometheus-instrumented gin engine,
// and the duplex websocket observers connect to.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dealdesk/dealdesk/internal/bus"
	"github.com/dealdesk/dealdesk/internal/catalog"
	"github.com/dealdesk/dealdesk/internal/db"
	"github.com/dealdesk/dealdesk/internal/metrics"
	"github.com/dealdesk/dealdesk/internal/negotiation"
)

// Server is the HTTP and websocket front of the service
type Server struct {
	router       *gin.Engine
	orchestrator *negotiation.Orchestrator
	catalog      *catalog.Catalog
	db           *db.DB
	bus          *bus.Bus
	addr         string
	staticDir    string
	server       *http.Server
	log          zerolog.Logger
}

// Config contains server configuration. DB and Bus are optional: without a
// database the session history endpoints answer 503, without a bus the status
// endpoint reports it as not configured.
type Config struct {
	Host      string
	Port      int
	StaticDir string

	Orchestrator *negotiation.Orchestrator
	Catalog      *catalog.Catalog
	DB           *db.DB
	Bus          *bus.Bus
}

// NewServer creates the HTTP server
func NewServer(config Config) *Server {
	// Set Gin to release mode for production
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)

	server := &Server{
		router:       router,
		orchestrator: config.Orchestrator,
		catalog:      config.Catalog,
		db:           config.DB,
		bus:          config.Bus,
		addr:         addr,
		staticDir:    config.StaticDir,
		log:          log.With().Str("component", "server").Logger(),
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info().Str("addr", s.addr).Msg("Starting HTTP server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Stop gracefully stops the HTTP server. Running negotiations are not
// cancelled; only the listener goes away.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info().Msg("Stopping HTTP server")

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop server: %w", err)
		}
	}

	return nil
}

// LoggerMiddleware is a custom logging middleware for Gin
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		// Process request
		c.Next()

		// Log request
		latency := time.Since(start)
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method

		metrics.RecordHTTPRequest(method, path, strconv.Itoa(statusCode), latency)

		logEvent := log.Info().
			Str("method", method).
			Str("path", path).
			Str("query", query).
			Int("status", statusCode).
			Dur("latency", latency).
			Str("client_ip", clientIP)

		if len(c.Errors) > 0 {
			logEvent.Str("errors", c.Errors.String())
		}

		logEvent.Msg("HTTP request")
	}
}
