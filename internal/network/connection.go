// Package network implements the Terraria endpoint: a Connection that
// frames packets onto a stream and dispatches incoming frames to handlers,
// plus the listener and dialer that produce Connections.
package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/iskrim46/ogurec/internal/protocol"
)

var (
	// ErrClosed is returned by operations on a Closed connection.
	ErrClosed = errors.New("network: connection closed")
	// ErrStalled is returned when a configured read timeout expires.
	ErrStalled = errors.New("network: stream stalled")
	// ErrUnexpectedPacket is returned by Expect when a different packet arrives.
	ErrUnexpectedPacket = errors.New("network: unexpected packet")
)

// DefaultWriteTimeout bounds a single frame write.
const DefaultWriteTimeout = 10 * time.Second

// State is the lifecycle state of a Connection. There is no way back from
// Closed: a new Connection must be established.
type State int32

const (
	StateOpen State = iota
	StateClosed
)

func (s State) String() string {
	if s == StateOpen {
		return "open"
	}
	return "closed"
}

// Stats counts traffic on a Connection.
type Stats struct {
	FramesIn  uint64 `json:"frames_in"`
	FramesOut uint64 `json:"frames_out"`
	BytesIn   uint64 `json:"bytes_in"`
	BytesOut  uint64 `json:"bytes_out"`
}

// Connection is one protocol endpoint. Reads happen on a single goroutine
// (the one calling RunOnce, Expect or ReadFrame); sends may come from any
// goroutine.
type Connection struct {
	conn     net.Conn
	name     string
	logger   zerolog.Logger
	dispatch *Dispatcher

	readTimeout  time.Duration
	writeTimeout time.Duration

	wmu       sync.Mutex
	state     atomic.Int32
	closeOnce sync.Once

	connectedAt  time.Time
	lastActivity atomic.Int64

	framesIn, framesOut atomic.Uint64
	bytesIn, bytesOut   atomic.Uint64
}

// Option configures a Connection.
type Option func(*Connection)

// WithName labels the connection in logs, e.g. "client" or "server".
func WithName(name string) Option {
	return func(c *Connection) { c.name = name }
}

// WithReadTimeout makes a read that waits longer than d fail with
// ErrStalled. Zero blocks forever.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Connection) { c.readTimeout = d }
}

// WithWriteTimeout bounds each frame write. Zero disables the deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Connection) { c.writeTimeout = d }
}

// WithLogger sets the base logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Connection) { c.logger = l }
}

// NewConnection wraps an established stream.
func NewConnection(conn net.Conn, opts ...Option) *Connection {
	c := &Connection{
		conn:         conn,
		name:         "conn",
		logger:       log.Logger,
		dispatch:     NewDispatcher(),
		writeTimeout: DefaultWriteTimeout,
		connectedAt:  time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().
		Str("component", "connection").
		Str("conn", c.name).
		Str("remote", remoteString(conn)).
		Logger()
	c.lastActivity.Store(c.connectedAt.UnixNano())
	return c
}

// Register appends h to the handlers for id.
func (c *Connection) Register(id protocol.PacketID, h Handler) {
	c.dispatch.Register(id, h)
}

// RegisterModule appends h to the handlers for module id.
func (c *Connection) RegisterModule(id protocol.ModuleID, h ModuleHandler) {
	c.dispatch.RegisterModule(id, h)
}

// On registers a typed handler for P's packet id.
func On[T any, P interface {
	*T
	protocol.Packet
}](c *Connection, fn func(p P) (bool, error)) {
	var zero T
	c.Register(P(&zero).PacketID(), Handle[T, P](fn))
}

// OnModule registers a typed handler for P's module id.
func OnModule[T any, P interface {
	*T
	protocol.Module
}](c *Connection, fn func(m P) (bool, error)) {
	var zero T
	c.RegisterModule(P(&zero).ModuleID(), HandleModule[T, P](fn))
}

// Send encodes p and writes it as one frame.
func (c *Connection) Send(p protocol.Packet) error {
	f, err := protocol.Marshal(p)
	if err != nil {
		return err
	}
	return c.SendFrame(f)
}

// SendModule writes m inside a module frame.
func (c *Connection) SendModule(m protocol.Module) error {
	payload, err := protocol.EncodeModule(m)
	if err != nil {
		return err
	}
	return c.SendFrame(protocol.Frame{ID: protocol.ModuleFrameID, Payload: payload})
}

// SendFrame writes an already framed payload verbatim. A write failure
// closes the connection.
func (c *Connection) SendFrame(f protocol.Frame) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.State() == StateClosed {
		return ErrClosed
	}
	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := protocol.WriteFrame(c.conn, f.ID, f.Payload); err != nil {
		if errors.Is(err, protocol.ErrFrameTooLarge) {
			return err
		}
		c.Close()
		return err
	}

	c.framesOut.Add(1)
	c.bytesOut.Add(uint64(f.Size()))
	c.touch()
	return nil
}

// ReadFrame blocks until the next frame arrives. The idle marker, a
// transport failure or a stall all close the connection.
func (c *Connection) ReadFrame() (protocol.Frame, error) {
	if c.State() == StateClosed {
		return protocol.Frame{}, ErrClosed
	}
	if c.readTimeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	}

	f, err := protocol.ReadFrame(c.conn)
	if err != nil {
		closedLocally := c.State() == StateClosed
		c.Close()
		switch {
		case closedLocally:
			return protocol.Frame{}, ErrClosed
		case errors.Is(err, os.ErrDeadlineExceeded):
			return protocol.Frame{}, fmt.Errorf("%w: no frame within %s", ErrStalled, c.readTimeout)
		}
		return protocol.Frame{}, err
	}

	c.framesIn.Add(1)
	c.bytesIn.Add(uint64(f.Size()))
	c.touch()
	return f, nil
}

// Expect reads the next frame and decodes it as P. Any other packet id
// fails with ErrUnexpectedPacket.
func Expect[T any, P interface {
	*T
	protocol.Packet
}](c *Connection) (P, error) {
	p := P(new(T))
	f, err := c.ReadFrame()
	if err != nil {
		return nil, err
	}
	if f.ID != p.PacketID() {
		return nil, fmt.Errorf("%w: want %s, got %s", ErrUnexpectedPacket, p.PacketID(), f.ID)
	}
	if err := protocol.Unmarshal(f, p); err != nil {
		return nil, err
	}
	return p, nil
}

// RunOnce performs one read-dispatch cycle. It returns false once the
// stream delivers the idle marker or ends cleanly between frames. Any
// other failure, including a handler error, closes the connection and is
// returned.
func (c *Connection) RunOnce() (bool, error) {
	f, err := c.ReadFrame()
	if err != nil {
		if errors.Is(err, protocol.ErrIdleFrame) || errors.Is(err, io.EOF) {
			c.logger.Debug().Err(err).Msg("stream ended")
			return false, nil
		}
		return false, err
	}

	if _, err := c.dispatch.Dispatch(f); err != nil {
		c.Close()
		return false, fmt.Errorf("dispatch %s: %w", f.ID, err)
	}
	return true, nil
}

// Run calls RunOnce until the stream ends, an error occurs or ctx is
// cancelled. Cancelling ctx closes the connection.
func (c *Connection) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	for {
		more, err := c.RunOnce()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if !more {
			return nil
		}
	}
}

// Close moves the connection to Closed and releases the stream.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		err = c.conn.Close()
		c.logger.Debug().Msg("connection closed")
	})
	return err
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	return State(c.state.Load())
}

// Name returns the connection's label.
func (c *Connection) Name() string {
	return c.name
}

// RemoteAddr returns the peer address.
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// ConnectedAt returns when the connection was wrapped.
func (c *Connection) ConnectedAt() time.Time {
	return c.connectedAt
}

// LastActivity returns the time of the last frame read or written.
func (c *Connection) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// Stats returns a snapshot of the traffic counters.
func (c *Connection) Stats() Stats {
	return Stats{
		FramesIn:  c.framesIn.Load(),
		FramesOut: c.framesOut.Load(),
		BytesIn:   c.bytesIn.Load(),
		BytesOut:  c.bytesOut.Load(),
	}
}

// Logger returns the connection's logger.
func (c *Connection) Logger() zerolog.Logger {
	return c.logger
}

func (c *Connection) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

func remoteString(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
