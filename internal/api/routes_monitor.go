package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/iskrim46/ogurec/internal/relay"
)

const (
	defaultJournalLimit = 50
	maxJournalLimit     = 1000
)

func (s *Server) handleSessions(c *gin.Context) {
	if s.deps.Sessions == nil {
		c.JSON(http.StatusOK, gin.H{"sessions": []relay.SessionInfo{}, "total": 0})
		return
	}

	sessions := s.deps.Sessions.Sessions()
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

func (s *Server) handleSession(c *gin.Context) {
	if s.deps.Sessions == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	info, err := s.deps.Sessions.Session(c.Param("id"))
	if errors.Is(err, relay.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found", "id": c.Param("id")})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, info)
}

// handleJournal returns the newest journalled intercepts.
func (s *Server) handleJournal(c *gin.Context) {
	if s.deps.Journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal is disabled"})
		return
	}
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	intercepts, err := s.deps.Journal.RecentIntercepts(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("API: journal query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "journal query failed"})
		return
	}
	total, err := s.deps.Journal.InterceptCount(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "journal query failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"intercepts": nonNil(intercepts),
		"total":      total,
	})
}

func (s *Server) handleJournalSessions(c *gin.Context) {
	if s.deps.Journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal is disabled"})
		return
	}
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	sessions, err := s.deps.Journal.RecentSessions(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("API: journal query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "journal query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": nonNil(sessions)})
}

// parseLimit reads ?limit=N, writing a 400 response when it is malformed.
func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultJournalLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return 0, false
	}
	if limit > maxJournalLimit {
		limit = maxJournalLimit
	}
	return limit, true
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
