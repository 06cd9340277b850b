package relay

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iskrim46/ogurec/internal/events"
	"github.com/iskrim46/ogurec/internal/network"
	"github.com/iskrim46/ogurec/internal/protocol"
)

// harness runs a Relay between two in-memory pipes. client and server are
// the test's ends: client plays the game client, server the game server.
type harness struct {
	relay  *Relay
	client *network.Connection
	server *network.Connection
	done   chan error
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	clientEnd, relayClient := net.Pipe()
	serverEnd, relayServer := net.Pipe()

	r, err := New(
		network.NewConnection(relayClient, network.WithName("client")),
		network.NewConnection(relayServer, network.WithName("server")),
		opts,
	)
	require.NoError(t, err)

	h := &harness{
		relay:  r,
		client: network.NewConnection(clientEnd, network.WithName("test-client")),
		server: network.NewConnection(serverEnd, network.WithName("test-server")),
		done:   make(chan error, 1),
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { h.done <- r.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		h.client.Close()
		h.server.Close()
		<-h.done
	})
	return h
}

func send(c *network.Connection, p protocol.Packet) <-chan error {
	errc := make(chan error, 1)
	go func() { errc <- c.Send(p) }()
	return errc
}

// assignSlot plays the server's handshake and lets the client read it.
func (h *harness) assignSlot(t *testing.T, slot uint8) {
	t.Helper()
	errc := send(h.server, &protocol.Accept{ClientID: slot})
	got, err := network.Expect[protocol.Accept](h.client)
	require.NoError(t, err)
	require.NoError(t, <-errc)
	assert.Equal(t, slot, got.ClientID)

	id, ok := h.relay.Slot().Load()
	require.True(t, ok)
	assert.Equal(t, slot, id)
}

func TestPassThroughIsByteIdentical(t *testing.T) {
	h := newHarness(t, Options{})

	errc := send(h.client, &protocol.Raw{ID: 200, Data: []byte{0xAA, 0xBB}})
	f, err := h.server.ReadFrame()
	require.NoError(t, err)
	require.NoError(t, <-errc)
	assert.Equal(t, protocol.Frame{ID: 200, Payload: []byte{0xAA, 0xBB}}, f)

	errc = send(h.server, &protocol.Raw{ID: 201, Data: []byte{1}})
	f, err = h.client.ReadFrame()
	require.NoError(t, err)
	require.NoError(t, <-errc)
	assert.Equal(t, protocol.Frame{ID: 201, Payload: []byte{1}}, f)

	assert.Eventually(t, func() bool {
		return h.relay.Stats() == Stats{Forwarded: 2}
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPassThroughKeepsCompressedPayload(t *testing.T) {
	h := newHarness(t, Options{})

	// Not valid deflate data: pass-through must not try to inflate it.
	errc := send(h.server, &protocol.Raw{ID: protocol.PktSendTileData, Data: []byte{9, 9, 9}})
	f, err := h.client.ReadFrame()
	require.NoError(t, err)
	require.NoError(t, <-errc)
	assert.Equal(t, []byte{9, 9, 9}, f.Payload)
}

func TestDamageIntercepted(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Stop()
	seen := make(chan events.DamagePayload, 1)
	bus.Subscribe(events.EventDamageIntercepted, "test", func(_ context.Context, e events.Event) error {
		seen <- e.Payload.(events.DamagePayload)
		return nil
	})

	h := newHarness(t, Options{SessionID: "s1", Bus: bus})
	h.assignSlot(t, 0)

	idx, npc, item := int16(3), int16(42), int16(757)
	errc := send(h.client, &protocol.DamagePlayer{
		ClientID: 1,
		Reason:   protocol.DeathReason{PlayerIndex: &idx, NPCIndex: &npc, ItemType: &item},
		Damage:   10,
	})
	got, err := network.Expect[protocol.DamagePlayer](h.server)
	require.NoError(t, err)
	require.NoError(t, <-errc)

	assert.Equal(t, uint8(1), got.ClientID)
	assert.Equal(t, int16(1000), got.Damage)
	assert.Nil(t, got.Reason.PlayerIndex)
	require.NotNil(t, got.Reason.Custom)
	assert.Equal(t, DefaultCustomReason, *got.Reason.Custom)
	require.NotNil(t, got.Reason.NPCIndex)
	assert.Equal(t, npc, *got.Reason.NPCIndex)
	require.NotNil(t, got.Reason.ItemType)
	assert.Equal(t, item, *got.Reason.ItemType)
	assert.Equal(t, []protocol.Reason{protocol.ReasonNPC, protocol.ReasonItem, protocol.ReasonCustom}, got.Reason.Reasons())

	// The next frame the server sees is the marker, so the original damage
	// frame was never forwarded.
	errc = send(h.client, &protocol.Raw{ID: 250})
	f, err := h.server.ReadFrame()
	require.NoError(t, err)
	require.NoError(t, <-errc)
	assert.Equal(t, protocol.PacketID(250), f.ID)

	select {
	case p := <-seen:
		assert.Equal(t, events.DamagePayload{
			SessionID: "s1", ClientSlot: 0, Target: 1,
			OriginalDamage: 10, NewDamage: 1000, Reason: DefaultCustomReason,
		}, p)
	case <-time.After(2 * time.Second):
		t.Fatal("no damage event")
	}
	assert.Equal(t, uint64(1), h.relay.Stats().Intercepted)
}

func TestDamageOptions(t *testing.T) {
	h := newHarness(t, Options{DamageMultiplier: 3, CustomReason: "nope"})
	h.assignSlot(t, 4)

	errc := send(h.client, &protocol.DamagePlayer{ClientID: 2, Damage: 20000})
	got, err := network.Expect[protocol.DamagePlayer](h.server)
	require.NoError(t, err)
	require.NoError(t, <-errc)
	assert.Equal(t, int16(32767), got.Damage)
	require.NotNil(t, got.Reason.Custom)
	assert.Equal(t, "nope", *got.Reason.Custom)
}

func TestDamageAgainstSelfPassesThrough(t *testing.T) {
	h := newHarness(t, Options{})
	h.assignSlot(t, 2)

	in := &protocol.DamagePlayer{ClientID: 2, Damage: 10, Reason: protocol.CustomReason("fell")}
	errc := send(h.client, in)
	got, err := network.Expect[protocol.DamagePlayer](h.server)
	require.NoError(t, err)
	require.NoError(t, <-errc)
	assert.Equal(t, in, got)
	assert.Zero(t, h.relay.Stats().Intercepted)
}

func TestDamageBeforeSlotPassesThrough(t *testing.T) {
	h := newHarness(t, Options{})

	in := &protocol.DamagePlayer{ClientID: 7, Damage: 10}
	errc := send(h.client, in)
	got, err := network.Expect[protocol.DamagePlayer](h.server)
	require.NoError(t, err)
	require.NoError(t, <-errc)
	assert.Equal(t, in, got)
}

func TestInterceptDisabled(t *testing.T) {
	h := newHarness(t, Options{DisableIntercept: true})
	h.assignSlot(t, 0)

	in := &protocol.DamagePlayer{ClientID: 1, Damage: 10}
	errc := send(h.client, in)
	got, err := network.Expect[protocol.DamagePlayer](h.server)
	require.NoError(t, err)
	require.NoError(t, <-errc)
	assert.Equal(t, int16(10), got.Damage)
}

func TestVersionMismatchForwardedWhenLenient(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Stop()
	seen := make(chan events.VersionPayload, 1)
	bus.Subscribe(events.EventVersionMismatch, "test", func(_ context.Context, e events.Event) error {
		seen <- e.Payload.(events.VersionPayload)
		return nil
	})

	h := newHarness(t, Options{Bus: bus})
	errc := send(h.client, &protocol.ConnectRequest{Version: "Terraria270"})
	got, err := network.Expect[protocol.ConnectRequest](h.server)
	require.NoError(t, err)
	require.NoError(t, <-errc)
	assert.Equal(t, "Terraria270", got.Version)

	select {
	case p := <-seen:
		assert.Equal(t, "Terraria270", p.Got)
		assert.Equal(t, protocol.SupportedVersion, p.Want)
		assert.False(t, p.Rejected)
	case <-time.After(2 * time.Second):
		t.Fatal("no version event")
	}
}

func TestVersionMismatchRejectedWhenStrict(t *testing.T) {
	h := newHarness(t, Options{StrictVersion: true})

	errc := send(h.client, &protocol.ConnectRequest{Version: "Terraria270"})
	bye, err := network.Expect[protocol.Disconnect](h.client)
	require.NoError(t, err)
	require.NoError(t, <-errc)
	assert.Contains(t, bye.Reason.Text, "Terraria270")

	select {
	case err := <-h.done:
		assert.ErrorIs(t, err, ErrVersionRejected)
		h.done <- err
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}

	// The upstream never saw the request.
	_, err = h.server.ReadFrame()
	assert.Error(t, err)
}

func TestMatchingVersionForwarded(t *testing.T) {
	h := newHarness(t, Options{StrictVersion: true})

	errc := send(h.client, &protocol.ConnectRequest{Version: protocol.SupportedVersion})
	got, err := network.Expect[protocol.ConnectRequest](h.server)
	require.NoError(t, err)
	require.NoError(t, <-errc)
	assert.Equal(t, protocol.SupportedVersion, got.Version)
}

func TestClientHangupEndsRelay(t *testing.T) {
	h := newHarness(t, Options{})
	h.client.Close()

	select {
	case err := <-h.done:
		assert.NoError(t, err)
		h.done <- err
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
	_, err := h.server.ReadFrame()
	assert.Error(t, err)
}

func TestMetricsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	h := newHarness(t, Options{Metrics: m})
	h.assignSlot(t, 0)

	errc := send(h.client, &protocol.DamagePlayer{ClientID: 1, Damage: 1})
	_, err := network.Expect[protocol.DamagePlayer](h.server)
	require.NoError(t, err)
	require.NoError(t, <-errc)

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.intercepts) == 1 &&
			testutil.ToFloat64(m.frames.WithLabelValues(DirServerToClient, "forwarded")) == 1 &&
			testutil.ToFloat64(m.frames.WithLabelValues(DirClientToServer, "intercepted")) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestScaleDamage(t *testing.T) {
	assert.Equal(t, int16(1000), ScaleDamage(10, 100))
	assert.Equal(t, int16(32767), ScaleDamage(400, 100))
	assert.Equal(t, int16(-32768), ScaleDamage(-400, 100))
	assert.Equal(t, int16(0), ScaleDamage(0, 100))
}

func TestSlot(t *testing.T) {
	s := NewSlot()
	_, ok := s.Load()
	assert.False(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	got := make(chan uint8, 1)
	go func() {
		id, _ := s.Wait(context.Background())
		got <- id
	}()
	assert.True(t, s.Set(5))
	assert.False(t, s.Set(6))
	assert.Equal(t, uint8(5), <-got)

	id, ok := s.Load()
	assert.True(t, ok)
	assert.Equal(t, uint8(5), id)
}
