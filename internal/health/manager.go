// Package health runs periodic background checks for the relay: whether
// the upstream server accepts TCP connections, and how much memory the
// relay process is using.
package health

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/iskrim46/ogurec/internal/config"
	"github.com/iskrim46/ogurec/internal/events"
	"github.com/iskrim46/ogurec/internal/util"
)

const (
	source = "health_check"

	// memoryWarnMB is the resident size above which the memory check warns.
	memoryWarnMB = 512
)

// Status is the result of the last upstream check.
type Status struct {
	Upstream  string        `json:"upstream"`
	Reachable bool          `json:"reachable"`
	Latency   time.Duration `json:"latency"`
	CheckedAt time.Time     `json:"checked_at"`
	Failures  int           `json:"consecutive_failures"`
	Error     string        `json:"error,omitempty"`
}

// DialFunc opens a connection to addr.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Manager runs the health checks.
type Manager struct {
	upstream    string
	dialTimeout time.Duration
	interval    time.Duration
	eventBus    *events.EventBus
	dial        DialFunc
	logger      zerolog.Logger

	mu      sync.RWMutex
	status  Status
	checked bool
}

// NewManager creates a health check manager for the relay section of the
// config. eventBus may be nil.
func NewManager(cfg config.RelayConfig, eventBus *events.EventBus) *Manager {
	d := &net.Dialer{}
	return &Manager{
		upstream:    cfg.UpstreamAddr,
		dialTimeout: cfg.DialTimeout,
		interval:    cfg.HealthInterval,
		eventBus:    eventBus,
		dial:        d.DialContext,
		status:      Status{Upstream: cfg.UpstreamAddr},
		logger:      util.ComponentLogger("health"),
	}
}

// Start runs every check once, then on each interval tick, until ctx is
// cancelled. A zero interval disables the checks.
func (m *Manager) Start(ctx context.Context) {
	if m.interval <= 0 {
		m.logger.Info().Msg("health checks disabled")
		return
	}

	checks := []struct {
		name string
		fn   func(context.Context)
	}{
		{"upstream", func(ctx context.Context) { m.CheckUpstream(ctx) }},
		{"memory", m.checkMemory},
	}

	var wg sync.WaitGroup
	for _, check := range checks {
		check := check
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(m.interval)
			defer ticker.Stop()

			m.logger.Debug().Str("check", check.name).Msg("running initial health check")
			check.fn(ctx)

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					check.fn(ctx)
				}
			}
		}()
	}

	m.logger.Info().Int("checks", len(checks)).Dur("interval", m.interval).Msg("health check manager started")
	wg.Wait()
	m.logger.Info().Msg("health check manager stopped")
}

// Status returns the result of the last upstream check.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// CheckUpstream dials the upstream server and closes the connection at once.
// An event is emitted when reachability changes, and after the first check.
func (m *Manager) CheckUpstream(ctx context.Context) Status {
	dctx := ctx
	if m.dialTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, m.dialTimeout)
		defer cancel()
	}

	start := time.Now()
	conn, err := m.dial(dctx, "tcp", m.upstream)
	latency := time.Since(start)
	if err == nil {
		conn.Close()
	}

	m.mu.Lock()
	prev, first := m.status, !m.checked
	next := Status{
		Upstream:  m.upstream,
		Reachable: err == nil,
		CheckedAt: start,
	}
	if err != nil {
		next.Error = err.Error()
		next.Failures = prev.Failures + 1
	} else {
		next.Latency = latency
	}
	m.status = next
	m.checked = true
	m.mu.Unlock()

	if first || prev.Reachable != next.Reachable {
		if next.Reachable {
			m.logger.Info().Str("upstream", m.upstream).Dur("latency", latency).Msg("upstream server reachable")
		} else {
			m.logger.Warn().Str("upstream", m.upstream).Err(err).Msg("upstream server unreachable")
		}
		if m.eventBus != nil {
			m.eventBus.Emit(ctx, events.New(events.EventUpstreamHealth, source, events.HealthPayload{
				Upstream:  next.Upstream,
				Reachable: next.Reachable,
				Latency:   next.Latency,
				Error:     next.Error,
			}))
		}
	}
	return next
}

func (m *Manager) checkMemory(_ context.Context) {
	usage, err := util.GetProcessUsage()
	if err != nil {
		m.logger.Warn().Err(err).Msg("process usage check failed")
		return
	}

	ev := m.logger.Debug()
	if usage.RSSMB >= memoryWarnMB {
		ev = m.logger.Warn()
	}
	ev.Uint64("rss_mb", usage.RSSMB).
		Float64("cpu_percent", usage.CPUPercent).
		Int("goroutines", usage.Goroutines).
		Msg("process usage")
}
