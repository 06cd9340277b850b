package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/iskrim46/ogurec/internal/relay"
)

const defaultKickReason = "kicked by relay admin"

type kickRequest struct {
	Reason string `json:"reason"`
}

// handleKick drops a live session, telling its client why.
func (s *Server) handleKick(c *gin.Context) {
	if s.deps.Sessions == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	var req kickRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = defaultKickReason
	}

	id := c.Param("id")
	err := s.deps.Sessions.Kick(id, reason)
	if errors.Is(err, relay.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found", "id": id})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.logger.Info().Str("session", id).Str("reason", reason).Msg("API: session kicked")
	c.JSON(http.StatusOK, gin.H{"status": "kicked", "id": id})
}
