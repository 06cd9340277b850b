package relay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iskrim46/ogurec/internal/events"
	"github.com/iskrim46/ogurec/internal/network"
	"github.com/iskrim46/ogurec/internal/protocol"
)

func TestServerRelaysSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	upstream, err := network.Listen(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	defer upstream.Close()

	bus := events.NewEventBus()
	defer bus.Stop()
	opened := make(chan events.SessionPayload, 1)
	bus.Subscribe(events.EventSessionOpened, "test", func(_ context.Context, e events.Event) error {
		opened <- e.Payload.(events.SessionPayload)
		return nil
	})

	srv := NewServer(ServerConfig{
		ListenAddr:   "127.0.0.1:0",
		UpstreamAddr: upstream.Addr().String(),
		MaxSessions:  1,
		DialTimeout:  time.Second,
	}, bus, nil)
	require.NoError(t, srv.Listen(ctx))
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx) }()

	client, err := network.Dial(ctx, srv.Addr().String(), time.Second)
	require.NoError(t, err)
	defer client.Close()

	game, err := upstream.Accept()
	require.NoError(t, err)
	defer game.Close()

	var sessionID string
	select {
	case p := <-opened:
		sessionID = p.SessionID
	case <-time.After(2 * time.Second):
		t.Fatal("session not opened")
	}

	require.NoError(t, game.Send(&protocol.Accept{ClientID: 3}))
	acc, err := network.Expect[protocol.Accept](client)
	require.NoError(t, err)
	assert.Equal(t, uint8(3), acc.ClientID)

	require.NoError(t, client.Send(&protocol.SendPassword{Password: "secret"}))
	pw, err := network.Expect[protocol.SendPassword](game)
	require.NoError(t, err)
	assert.Equal(t, "secret", pw.Password)

	sessions := srv.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, sessionID, sessions[0].ID)
	require.NotNil(t, sessions[0].Slot)
	assert.Equal(t, uint8(3), *sessions[0].Slot)
	assert.Eventually(t, func() bool {
		return srv.Sessions()[0].Relay.Forwarded == 2
	}, 2*time.Second, 10*time.Millisecond)

	info, err := srv.Session(sessionID)
	require.NoError(t, err)
	assert.Equal(t, sessionID, info.ID)
	_, err = srv.Session("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// A second client is refused while the only session is live.
	extra, err := network.Dial(ctx, srv.Addr().String(), time.Second)
	require.NoError(t, err)
	defer extra.Close()
	bye, err := network.Expect[protocol.Disconnect](extra)
	require.NoError(t, err)
	assert.Equal(t, "relay is full", bye.Reason.Text)

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Zero(t, srv.Count())
}

func TestServerRefusesWhenUpstreamDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Grab a free port and release it so nothing listens there.
	spare, err := network.Listen(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	dead := spare.Addr().String()
	spare.Close()

	srv := NewServer(ServerConfig{ListenAddr: "127.0.0.1:0", UpstreamAddr: dead, DialTimeout: time.Second}, nil, nil)
	require.NoError(t, srv.Listen(ctx))
	go srv.Serve(ctx)

	client, err := network.Dial(ctx, srv.Addr().String(), time.Second)
	require.NoError(t, err)
	defer client.Close()

	bye, err := network.Expect[protocol.Disconnect](client)
	require.NoError(t, err)
	assert.Equal(t, "upstream server unreachable", bye.Reason.Text)
}

func TestServerKick(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	upstream, err := network.Listen(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	defer upstream.Close()

	srv := NewServer(ServerConfig{
		ListenAddr:   "127.0.0.1:0",
		UpstreamAddr: upstream.Addr().String(),
		DialTimeout:  time.Second,
	}, nil, nil)
	require.NoError(t, srv.Listen(ctx))
	go srv.Serve(ctx)

	client, err := network.Dial(ctx, srv.Addr().String(), time.Second)
	require.NoError(t, err)
	defer client.Close()

	game, err := upstream.Accept()
	require.NoError(t, err)
	defer game.Close()

	require.Eventually(t, func() bool { return srv.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	assert.ErrorIs(t, srv.Kick("missing", "x"), ErrSessionNotFound)
	require.NoError(t, srv.Kick(srv.Sessions()[0].ID, "kicked by admin"))

	bye, err := network.Expect[protocol.Disconnect](client)
	require.NoError(t, err)
	assert.Equal(t, "kicked by admin", bye.Reason.Text)

	assert.Eventually(t, func() bool { return srv.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestAcceptDelay(t *testing.T) {
	d := acceptDelay(0)
	assert.Equal(t, minAcceptDelay, d)
	d = acceptDelay(d)
	assert.Equal(t, 2*minAcceptDelay, d)

	for i := 0; i < 20; i++ {
		d = acceptDelay(d)
	}
	assert.Equal(t, maxAcceptDelay, d)
}

func TestServeWaitsForRefusals(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	upstream, err := network.Listen(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	defer upstream.Close()

	srv := NewServer(ServerConfig{
		ListenAddr:   "127.0.0.1:0",
		UpstreamAddr: upstream.Addr().String(),
		MaxSessions:  1,
		DialTimeout:  time.Second,
	}, nil, nil)
	require.NoError(t, srv.Listen(ctx))
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx) }()

	client, err := network.Dial(ctx, srv.Addr().String(), time.Second)
	require.NoError(t, err)
	defer client.Close()
	game, err := upstream.Accept()
	require.NoError(t, err)
	defer game.Close()
	require.Eventually(t, func() bool { return srv.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	extra, err := network.Dial(ctx, srv.Addr().String(), time.Second)
	require.NoError(t, err)
	defer extra.Close()

	// Give the listener time to accept the extra client before stopping.
	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}

	// The refusal was written before Serve returned.
	bye, err := network.Expect[protocol.Disconnect](extra)
	require.NoError(t, err)
	assert.Equal(t, "relay is full", bye.Reason.Text)
}
