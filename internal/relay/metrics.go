package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Traffic directions used as metric labels.
const (
	DirClientToServer = "client_to_server"
	DirServerToClient = "server_to_client"
)

// Metrics holds the relay's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	frames     *prometheus.CounterVec
	intercepts prometheus.Counter
	sessions   prometheus.Gauge
	errors     *prometheus.CounterVec
}

// NewMetrics registers the relay collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		frames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ogurec",
			Name:      "frames_total",
			Help:      "Frames relayed, by direction and whether they were forwarded verbatim or intercepted.",
		}, []string{"direction", "action"}),
		intercepts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ogurec",
			Name:      "intercepts_total",
			Help:      "Damage packets rewritten by the relay.",
		}),
		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "ogurec",
			Name:      "sessions_active",
			Help:      "Relay sessions currently running.",
		}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ogurec",
			Name:      "relay_errors_total",
			Help:      "Fatal errors that ended a relay loop, by kind.",
		}, []string{"kind"}),
	}
}

func (m *Metrics) forwarded(dir string) {
	if m != nil {
		m.frames.WithLabelValues(dir, "forwarded").Inc()
	}
}

func (m *Metrics) intercepted(dir string) {
	if m != nil {
		m.frames.WithLabelValues(dir, "intercepted").Inc()
		m.intercepts.Inc()
	}
}

func (m *Metrics) sessionStarted() {
	if m != nil {
		m.sessions.Inc()
	}
}

func (m *Metrics) sessionEnded() {
	if m != nil {
		m.sessions.Dec()
	}
}

func (m *Metrics) failed(kind string) {
	if m != nil {
		m.errors.WithLabelValues(kind).Inc()
	}
}
