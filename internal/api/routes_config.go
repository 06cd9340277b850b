package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleGetConfig returns the running configuration. Changes need a restart,
// so there is no setter.
func (s *Server) handleGetConfig(c *gin.Context) {
	cfg := s.deps.Config
	if cfg == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no configuration loaded"})
		return
	}

	mqtt := cfg.GetMQTT()
	c.JSON(http.StatusOK, gin.H{
		"path":      cfg.Path(),
		"relay":     cfg.GetRelay(),
		"intercept": cfg.GetIntercept(),
		"api":       cfg.GetAPI(),
		"journal":   cfg.GetJournal(),
		"logging":   cfg.GetLogging(),
		"mqtt": gin.H{
			"enabled":      mqtt.Enabled,
			"broker_url":   mqtt.BrokerURL,
			"port":         mqtt.Port,
			"use_tls":      mqtt.UseTLS,
			"topic_prefix": mqtt.TopicPrefix,
		},
	})
}
