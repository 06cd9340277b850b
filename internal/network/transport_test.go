package network

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iskrim46/ogurec/internal/protocol"
)

func TestListenDialRoundTrip(t *testing.T) {
	ctx := context.Background()
	ln, err := Listen(ctx, "127.0.0.1:0", WithName("client"))
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan *Connection, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	up, err := Dial(ctx, ln.Addr().String(), time.Second, WithName("server"))
	require.NoError(t, err)
	defer up.Close()

	var down *Connection
	select {
	case down = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("no connection accepted")
	}
	defer down.Close()
	assert.Equal(t, "client", down.Name())

	require.NoError(t, up.Send(&protocol.ConnectRequest{Version: protocol.SupportedVersion}))
	req, err := Expect[protocol.ConnectRequest](down)
	require.NoError(t, err)
	assert.Equal(t, protocol.SupportedVersion, req.Version)
}

func TestListenerCloseUnblocksAccept(t *testing.T) {
	ln, err := Listen(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := ln.Accept()
		done <- err
	}()
	ln.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Accept did not return")
	}
}

func TestRateTracker(t *testing.T) {
	now := time.Unix(1000, 0)
	rt := newRateTracker(2)
	rt.now = func() time.Time { return now }

	assert.True(t, rt.allow("10.0.0.1"))
	assert.True(t, rt.allow("10.0.0.1"))
	assert.False(t, rt.allow("10.0.0.1"))
	assert.True(t, rt.allow("10.0.0.2"))

	now = now.Add(time.Second)
	assert.True(t, rt.allow("10.0.0.1"))

	now = now.Add(2 * time.Minute)
	rt.allow("10.0.0.3")
	assert.Len(t, rt.counts, 1)
}

func TestRateTrackerUnlimited(t *testing.T) {
	rt := newRateTracker(0)
	for i := 0; i < 100; i++ {
		assert.True(t, rt.allow("10.0.0.1"))
	}
}

func TestExtractIP(t *testing.T) {
	assert.Equal(t, "127.0.0.1", extractIP(&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 7777}))
	assert.Equal(t, "pipe", extractIP(pipeAddr{}))
}

type pipeAddr struct{}

func (pipeAddr) Network() string { return "pipe" }
func (pipeAddr) String() string  { return "pipe" }
