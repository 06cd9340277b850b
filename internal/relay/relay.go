// Package relay pairs a client Connection with a server Connection. Every
// packet type is forwarded verbatim except the few the relay intercepts,
// which are decoded, rewritten and re-encoded.
package relay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/imdario/mergo"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/iskrim46/ogurec/internal/codec"
	"github.com/iskrim46/ogurec/internal/events"
	"github.com/iskrim46/ogurec/internal/network"
	"github.com/iskrim46/ogurec/internal/protocol"
)

// DefaultCustomReason replaces the death reason of intercepted damage.
const DefaultCustomReason = "killed by server insecurity"

// DefaultDamageMultiplier scales intercepted damage.
const DefaultDamageMultiplier = 100

// ErrVersionRejected ends a session whose client announced an unsupported
// protocol version while strict version checking is on.
var ErrVersionRejected = errors.New("relay: unsupported client version")

// Options tunes a Relay. Zero values are replaced by DefaultOptions.
type Options struct {
	SessionID        string
	DisableIntercept bool
	DamageMultiplier int
	CustomReason     string
	StrictVersion    bool

	Bus     *events.EventBus
	Metrics *Metrics
}

// DefaultOptions are merged into every Options passed to New.
var DefaultOptions = Options{
	SessionID:        "local",
	DamageMultiplier: DefaultDamageMultiplier,
	CustomReason:     DefaultCustomReason,
}

// Stats counts what a Relay did.
type Stats struct {
	Forwarded   uint64 `json:"forwarded"`
	Intercepted uint64 `json:"intercepted"`
}

// Relay forwards traffic between a client and a server connection.
type Relay struct {
	client *network.Connection
	server *network.Connection
	opts   Options
	slot   *Slot
	logger zerolog.Logger

	forwarded   atomic.Uint64
	intercepted atomic.Uint64
}

// New wires the handlers of both connections. Handlers are registered in
// the order they must run: observers and intercepts first, the blanket
// pass-through last.
func New(client, server *network.Connection, opts Options) (*Relay, error) {
	if err := mergo.Merge(&opts, DefaultOptions); err != nil {
		return nil, fmt.Errorf("relay options: %w", err)
	}

	r := &Relay{
		client: client,
		server: server,
		opts:   opts,
		slot:   NewSlot(),
		logger: log.With().Str("component", "relay").Str("session", opts.SessionID).Logger(),
	}

	network.On(server, r.onAccept)
	network.On(client, r.onConnectRequest)
	if !opts.DisableIntercept {
		network.On(client, r.onDamage)
	}

	r.forwardAll(client, server, DirClientToServer)
	r.forwardAll(server, client, DirServerToClient)
	return r, nil
}

// forwardAll registers, for every packet id, a handler that resends the
// frame on dst without decoding it.
func (r *Relay) forwardAll(src, dst *network.Connection, dir string) {
	for id := 1; id <= 255; id++ {
		src.Register(protocol.PacketID(id), func(f protocol.Frame) (bool, error) {
			if err := dst.SendFrame(f); err != nil {
				return false, err
			}
			r.forwarded.Add(1)
			r.opts.Metrics.forwarded(dir)
			r.logger.Trace().Str("dir", dir).Stringer("packet", f.ID).Int("len", len(f.Payload)).Msg("forwarded")
			return true, nil
		})
	}
}

// Run drives both read loops until either side ends, then closes both
// connections. A clean end of either stream is not an error.
func (r *Relay) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return r.loop(gctx, r.client, "client")
	})
	g.Go(func() error {
		defer cancel()
		return r.loop(gctx, r.server, "server")
	})

	err := g.Wait()
	r.client.Close()
	r.server.Close()
	return err
}

func (r *Relay) loop(ctx context.Context, c *network.Connection, side string) error {
	err := c.Run(ctx)
	switch {
	case err == nil:
		r.logger.Debug().Str("side", side).Msg("stream ended")
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, network.ErrClosed):
		return nil
	}

	kind := ErrorKind(err)
	r.opts.Metrics.failed(kind)
	r.emit(events.EventRelayError, events.ErrorPayload{
		SessionID: r.opts.SessionID,
		Side:      side,
		Kind:      kind,
		Error:     err.Error(),
	})
	r.logger.Warn().Err(err).Str("side", side).Str("kind", kind).Msg("relay loop failed")
	return fmt.Errorf("%s loop: %w", side, err)
}

// ErrorKind classifies a loop error for metrics and events.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrVersionRejected):
		return "version"
	case errors.Is(err, network.ErrStalled), errors.Is(err, os.ErrDeadlineExceeded):
		return "stalled"
	case errors.Is(err, protocol.ErrCompression):
		return "compression"
	case errors.Is(err, codec.ErrTruncated), errors.Is(err, codec.ErrTrailingData),
		errors.Is(err, codec.ErrStringTooLong), errors.Is(err, protocol.ErrBadTextMode):
		return "codec"
	case errors.Is(err, protocol.ErrBadFrameLength), errors.Is(err, protocol.ErrFrameTooLarge),
		errors.Is(err, network.ErrUnexpectedPacket):
		return "frame"
	default:
		return "transport"
	}
}

// Slot returns the client's player slot once the server has assigned it.
func (r *Relay) Slot() *Slot {
	return r.slot
}

// Stats returns the relay's counters.
func (r *Relay) Stats() Stats {
	return Stats{Forwarded: r.forwarded.Load(), Intercepted: r.intercepted.Load()}
}

func (r *Relay) emit(t events.EventType, payload interface{}) {
	if r.opts.Bus != nil {
		r.opts.Bus.Emit(context.Background(), events.New(t, "relay", payload))
	}
}
