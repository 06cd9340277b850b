package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/iskrim46/ogurec/internal/protocol"
	"github.com/iskrim46/ogurec/internal/util"
)

// PacketInfo describes one registered packet.
type PacketInfo struct {
	ID         uint8  `json:"id"`
	Name       string `json:"name"`
	Compressed bool   `json:"compressed"`
}

// ModuleInfo describes one known module.
type ModuleInfo struct {
	ID   uint16 `json:"id"`
	Name string `json:"name"`
}

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "ogurec",
		"version": s.deps.Version,
	})
}

// handleStatus reports the relay version, uptime, host and session count.
func (s *Server) handleStatus(c *gin.Context) {
	sessions := 0
	if s.deps.Sessions != nil {
		sessions = s.deps.Sessions.Count()
	}

	body := gin.H{
		"version":          s.deps.Version,
		"protocol_version": protocol.SupportedVersion,
		"uptime_seconds":   int64(time.Since(s.started).Seconds()),
		"sessions":         sessions,
		"journal":          s.deps.Journal != nil,
		"system":           util.GetSystemInfo(),
	}
	if s.deps.Health != nil {
		body["upstream"] = s.deps.Health.Status()
	}
	if usage, err := util.GetProcessUsage(); err == nil {
		body["process"] = usage
	}
	if mem, err := util.GetMemoryUsage(); err == nil {
		body["memory"] = mem
	}

	c.JSON(http.StatusOK, body)
}

// handleHealth returns 200 while the upstream server answers and 503 once a
// check has failed.
func (s *Server) handleHealth(c *gin.Context) {
	if s.deps.Health == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "health checks are disabled"})
		return
	}

	st := s.deps.Health.Status()
	code := http.StatusOK
	if !st.Reachable && !st.CheckedAt.IsZero() {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, st)
}

// handlePackets lists the packet registry and the module ids.
func (s *Server) handlePackets(c *gin.Context) {
	descriptors := protocol.Descriptors()
	packets := make([]PacketInfo, len(descriptors))
	for i, d := range descriptors {
		packets[i] = PacketInfo{ID: uint8(d.ID), Name: d.Name, Compressed: d.Compressed}
	}

	ids := protocol.Modules()
	modules := make([]ModuleInfo, len(ids))
	for i, id := range ids {
		modules[i] = ModuleInfo{ID: uint16(id), Name: id.String()}
	}

	c.JSON(http.StatusOK, gin.H{
		"protocol_version": protocol.SupportedVersion,
		"packets":          packets,
		"modules":          modules,
	})
}
