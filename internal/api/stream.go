package api

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/iskrim46/ogurec/internal/events"
)

const (
	streamHandler    = "api.stream"
	streamBuffer     = 64
	streamWriteWait  = 5 * time.Second
	streamPingPeriod = 30 * time.Second
)

// Stream forwards bus events to websocket clients as JSON. A client that
// falls streamBuffer events behind is dropped.
type Stream struct {
	bus      *events.EventBus
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu      sync.Mutex
	clients map[*streamClient]struct{}
	closed  bool
}

type streamClient struct {
	conn *websocket.Conn
	send chan events.Event
	once sync.Once
	done chan struct{}
}

func (c *streamClient) stop() {
	c.once.Do(func() { close(c.done) })
}

// NewStream subscribes to every event type on bus. allowedOrigins limits
// which browser origins may connect; empty or "*" allows any.
func NewStream(bus *events.EventBus, allowedOrigins []string, logger zerolog.Logger) *Stream {
	s := &Stream{
		bus:     bus,
		logger:  logger,
		clients: make(map[*streamClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
	bus.SubscribeAll(streamHandler, s.publish)
	return s
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if set[origin] {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}

// publish is the bus handler. It never blocks on a client.
func (s *Stream) publish(_ context.Context, e events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for c := range s.clients {
		select {
		case c.send <- e:
		default:
			s.logger.Warn().Msg("event stream client too slow, dropping")
			delete(s.clients, c)
			c.stop()
		}
	}
	return nil
}

// ServeHTTP upgrades the request and streams events until the client goes
// away or the stream is closed.
func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &streamClient{
		conn: conn,
		send: make(chan events.Event, streamBuffer),
		done: make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	s.logger.Debug().Str("remote", r.RemoteAddr).Msg("event stream client connected")

	// The read side only notices the client closing.
	go func() {
		defer c.stop()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.writeLoop(c)

	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	conn.Close()
	s.logger.Debug().Str("remote", r.RemoteAddr).Msg("event stream client disconnected")
}

func (s *Stream) writeLoop(c *streamClient) {
	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(streamWriteWait))
			return
		case e := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := c.conn.WriteJSON(e); err != nil {
				return
			}
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}

// ClientCount returns the number of connected clients.
func (s *Stream) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close unsubscribes from the bus and disconnects every client.
func (s *Stream) Close() {
	s.bus.UnsubscribeAll(streamHandler)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for c := range s.clients {
		delete(s.clients, c)
		c.stop()
	}
}
