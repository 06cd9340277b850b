package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/iskrim46/ogurec/internal/events"
	"github.com/iskrim46/ogurec/internal/network"
	"github.com/iskrim46/ogurec/internal/protocol"
)

// ServerConfig configures the session listener.
type ServerConfig struct {
	ListenAddr       string
	UpstreamAddr     string
	MaxSessions      int
	ReadTimeout      time.Duration
	DialTimeout      time.Duration
	AcceptRatePerSec int

	// Relay is the template for every session's relay options. SessionID,
	// Bus and Metrics are filled per session.
	Relay Options
}

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// ErrSessionNotFound is returned for an id that names no live session.
var ErrSessionNotFound = errors.New("relay: session not found")

// SessionInfo is a snapshot of one live session.
type SessionInfo struct {
	ID           string        `json:"id"`
	ClientAddr   string        `json:"client_addr"`
	UpstreamAddr string        `json:"upstream_addr"`
	Slot         *uint8        `json:"slot,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	Relay        Stats         `json:"relay"`
	Client       network.Stats `json:"client"`
	Upstream     network.Stats `json:"upstream"`
}

// Session is one client paired with its upstream connection.
type Session struct {
	id       string
	client   *network.Connection
	upstream *network.Connection
	relay    *Relay
	started  time.Time
}

// Info returns a snapshot of the session.
func (s *Session) Info() SessionInfo {
	info := SessionInfo{
		ID:           s.id,
		ClientAddr:   s.client.RemoteAddr().String(),
		UpstreamAddr: s.upstream.RemoteAddr().String(),
		StartedAt:    s.started,
		Relay:        s.relay.Stats(),
		Client:       s.client.Stats(),
		Upstream:     s.upstream.Stats(),
	}
	if slot, ok := s.relay.Slot().Load(); ok {
		info.Slot = &slot
	}
	return info
}

// Server accepts clients and relays each one to the upstream server.
type Server struct {
	cfg     ServerConfig
	bus     *events.EventBus
	metrics *Metrics
	logger  zerolog.Logger

	mu       sync.RWMutex
	ln       *network.Listener
	sessions map[string]*Session
	active   int
	wg       sync.WaitGroup
}

// NewServer creates a session listener. bus and metrics may be nil.
func NewServer(cfg ServerConfig, bus *events.EventBus, metrics *Metrics) *Server {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 1
	}
	return &Server{
		cfg:      cfg,
		bus:      bus,
		metrics:  metrics,
		sessions: make(map[string]*Session),
		logger:   log.With().Str("component", "sessions").Logger(),
	}
}

// Listen binds the client-facing address. Serve calls it when needed.
func (s *Server) Listen(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return nil
	}

	ln, err := network.Listen(ctx, s.cfg.ListenAddr,
		network.WithName("client"),
		network.WithReadTimeout(s.cfg.ReadTimeout),
	)
	if err != nil {
		return err
	}
	ln.SetRateLimit(s.cfg.AcceptRatePerSec)
	s.ln = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts clients until ctx is cancelled, then waits for the running
// sessions to end.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(ctx); err != nil {
		return err
	}
	s.mu.RLock()
	ln := s.ln
	s.mu.RUnlock()

	s.logger.Info().
		Str("listen", ln.Addr().String()).
		Str("upstream", s.cfg.UpstreamAddr).
		Int("max_sessions", s.cfg.MaxSessions).
		Msg("relay listening")

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer s.wg.Wait()

	var delay time.Duration
	for {
		client, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, network.ErrClosed) {
				s.logger.Info().Msg("relay listener stopping")
				return nil
			}
			delay = acceptDelay(delay)
			s.logger.Error().Err(err).Dur("retry_in", delay).Msg("failed to accept client")
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				s.logger.Info().Msg("relay listener stopping")
				return nil
			case <-timer.C:
			}
			continue
		}
		delay = 0

		if !s.reserve() {
			s.logger.Warn().Str("remote", client.RemoteAddr().String()).Msg("session limit reached, refusing client")
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				refuse(client, "relay is full")
			}()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.release()
			s.handle(ctx, client)
		}()
	}
}

// acceptDelay returns the wait before retrying a failed Accept: it starts
// at minAcceptDelay and doubles up to maxAcceptDelay.
func acceptDelay(prev time.Duration) time.Duration {
	if prev <= 0 {
		return minAcceptDelay
	}
	if next := prev * 2; next < maxAcceptDelay {
		return next
	}
	return maxAcceptDelay
}

// refuse tells a client why it is being dropped, then closes it.
func refuse(c *network.Connection, reason string) {
	c.Send(&protocol.Disconnect{Reason: protocol.Literal(reason)})
	c.Close()
}

func (s *Server) handle(ctx context.Context, client *network.Connection) {
	defer client.Close()
	id := uuid.NewString()
	logger := s.logger.With().Str("session", id).Logger()

	upstream, err := network.Dial(ctx, s.cfg.UpstreamAddr, s.cfg.DialTimeout,
		network.WithName("server"),
		network.WithReadTimeout(s.cfg.ReadTimeout),
	)
	if err != nil {
		logger.Error().Err(err).Msg("upstream unreachable")
		refuse(client, "upstream server unreachable")
		return
	}
	defer upstream.Close()

	opts := s.cfg.Relay
	opts.SessionID = id
	opts.Bus = s.bus
	opts.Metrics = s.metrics
	r, err := New(client, upstream, opts)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build relay")
		return
	}

	sess := &Session{id: id, client: client, upstream: upstream, relay: r, started: time.Now()}
	s.add(sess)
	defer s.remove(id)

	payload := events.SessionPayload{
		SessionID:    id,
		ClientAddr:   client.RemoteAddr().String(),
		UpstreamAddr: upstream.RemoteAddr().String(),
	}
	s.emit(events.EventSessionOpened, payload)
	logger.Info().Str("client", payload.ClientAddr).Str("upstream", payload.UpstreamAddr).Msg("session opened")

	runErr := r.Run(ctx)

	payload.Duration = time.Since(sess.started)
	if runErr != nil {
		payload.Error = runErr.Error()
	}
	s.emit(events.EventSessionClosed, payload)
	logger.Info().Err(runErr).Dur("duration", payload.Duration).Interface("stats", r.Stats()).Msg("session closed")
}

// reserve claims a session slot before the upstream is dialled, so that
// clients arriving together cannot exceed MaxSessions.
func (s *Server) reserve() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active >= s.cfg.MaxSessions {
		return false
	}
	s.active++
	return true
}

func (s *Server) release() {
	s.mu.Lock()
	s.active--
	s.mu.Unlock()
}

func (s *Server) add(sess *Session) {
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	s.metrics.sessionStarted()
}

func (s *Server) remove(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	s.metrics.sessionEnded()
}

// Count returns the number of live sessions.
func (s *Server) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sessions returns snapshots of the live sessions, oldest first.
func (s *Server) Sessions() []SessionInfo {
	s.mu.RLock()
	out := make([]SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Info())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Session returns a snapshot of one live session.
func (s *Server) Session(id string) (SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return SessionInfo{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess.Info(), nil
}

// Kick tells the client of session id why it is dropped and closes both
// sides. The session's relay then ends on its own.
func (s *Server) Kick(id, reason string) error {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	s.logger.Info().Str("session", id).Str("reason", reason).Msg("kicking session")
	refuse(sess.client, reason)
	sess.upstream.Close()
	return nil
}

func (s *Server) emit(t events.EventType, payload interface{}) {
	if s.bus != nil {
		s.bus.Emit(context.Background(), events.New(t, "sessions", payload))
	}
}
