package server

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var startTime = time.Now()

// handleHealth returns a simple health check (for load balancers)
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

// handleStatus returns comprehensive system status
func (s *Server) handleStatus(c *gin.Context) {
	dbStatus := "not_configured"
	if s.db != nil {
		dbStatus = "healthy"
		if err := s.db.Health(c.Request.Context()); err != nil {
			dbStatus = "unhealthy"
			s.log.Warn().Err(err).Msg("Database health check failed")
		}
	}

	busStatus := "not_configured"
	if s.bus != nil {
		busStatus = "disconnected"
		if s.bus.Connected() {
			busStatus = "connected"
		}
	}

	systemStatus := "healthy"
	if dbStatus == "unhealthy" || busStatus == "disconnected" {
		systemStatus = "degraded"
	}

	activeSessions := 0
	if s.orchestrator != nil {
		activeSessions = s.orchestrator.ActiveSessions()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    systemStatus,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(startTime).Seconds(),
		"components": gin.H{
			"database":  gin.H{"status": dbStatus},
			"event_bus": gin.H{"status": busStatus},
		},
		"sessions": gin.H{
			"active": activeSessions,
		},
		"system": gin.H{
			"goroutines": runtime.NumGoroutine(),
			"go_version": runtime.Version(),
		},
	})
}

// handleListProducts returns the sourceable product catalog
func (s *Server) handleListProducts(c *gin.Context) {
	products := s.catalog.LoadProducts()
	c.JSON(http.StatusOK, gin.H{
		"products": products,
		"total":    len(products),
	})
}

// handleListCounterparties returns the public profile of every counterparty.
// Private pricing state is excluded from the JSON shape and never leaves the
// process.
func (s *Server) handleListCounterparties(c *gin.Context) {
	counterparties := s.catalog.Counterparties()
	c.JSON(http.StatusOK, gin.H{
		"counterparties": counterparties,
		"total":          len(counterparties),
	})
}

// handleListSessions returns the most recently started sessions
func (s *Server) handleListSessions(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "database not available",
		})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 || limit > 100 {
		limit = 20
	}

	sessions, err := s.db.ListRecentSessions(c.Request.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list sessions")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to retrieve sessions",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

// handleGetSession returns one persisted session record
func (s *Server) handleGetSession(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "database not available",
		})
		return
	}

	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid session ID format",
		})
		return
	}

	session, err := s.db.GetNegotiationSession(c.Request.Context(), sessionID)
	if err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("Session not found")
		c.JSON(http.StatusNotFound, gin.H{
			"error": "session not found",
		})
		return
	}

	c.JSON(http.StatusOK, session)
}

// handleGetDecision returns the stored decision of a decided session
func (s *Server) handleGetDecision(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "database not available",
		})
		return
	}

	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid session ID format",
		})
		return
	}

	decision, err := s.db.GetDecision(c.Request.Context(), sessionID)
	if err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("Decision not found")
		c.JSON(http.StatusNotFound, gin.H{
			"error": "decision not found",
		})
		return
	}

	c.JSON(http.StatusOK, decision)
}
