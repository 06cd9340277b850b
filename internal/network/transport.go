package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultDialTimeout bounds establishing the upstream connection.
const DefaultDialTimeout = 5 * time.Second

// Dial connects to addr and wraps the stream in a Connection.
func Dial(ctx context.Context, addr string, timeout time.Duration, opts ...Option) (*Connection, error) {
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewConnection(conn, opts...), nil
}

// Listener accepts client streams and wraps them in Connections.
type Listener struct {
	ln      net.Listener
	opts    []Option
	limiter *rateTracker
	logger  zerolog.Logger
}

// Listen binds addr with SO_REUSEADDR so a restarted relay can rebind
// immediately. opts apply to every accepted Connection.
func Listen(ctx context.Context, addr string, opts ...Option) (*Listener, error) {
	lc := ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return &Listener{
		ln:      ln,
		opts:    opts,
		limiter: newRateTracker(0),
		logger:  log.With().Str("component", "listener").Str("addr", ln.Addr().String()).Logger(),
	}, nil
}

// SetRateLimit caps new connections per second per source IP. Zero
// disables the cap. Call before Accept.
func (l *Listener) SetRateLimit(maxPerSec int) {
	l.limiter = newRateTracker(maxPerSec)
}

// Accept waits for the next client that passes the rate limit. Rejected
// clients are closed and never returned.
func (l *Listener) Accept() (*Connection, error) {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil, ErrClosed
			}
			return nil, err
		}

		src := extractIP(conn.RemoteAddr())
		if !l.limiter.allow(src) {
			l.logger.Warn().Str("src", src).Msg("connection rate limit exceeded, dropping")
			conn.Close()
			continue
		}

		l.logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("accepted client")
		return NewConnection(conn, l.opts...), nil
	}
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close stops accepting. Pending Accept calls return ErrClosed.
func (l *Listener) Close() error {
	return l.ln.Close()
}
