package network

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iskrim46/ogurec/internal/protocol"
)

func pipe(t *testing.T, opts ...Option) (*Connection, *Connection) {
	t.Helper()
	a, b := net.Pipe()
	ca := NewConnection(a, append([]Option{WithName("a")}, opts...)...)
	cb := NewConnection(b, append([]Option{WithName("b")}, opts...)...)
	t.Cleanup(func() {
		ca.Close()
		cb.Close()
	})
	return ca, cb
}

func sendAsync(c *Connection, p protocol.Packet) <-chan error {
	errc := make(chan error, 1)
	go func() { errc <- c.Send(p) }()
	return errc
}

func TestPasswordExchange(t *testing.T) {
	a, b := pipe(t)

	errc := sendAsync(a, &protocol.RequestPassword{})
	_, err := Expect[protocol.RequestPassword](b)
	require.NoError(t, err)
	require.NoError(t, <-errc)

	var password string
	On(a, func(p *protocol.SendPassword) (bool, error) {
		password = p.Password
		return true, nil
	})

	errc = sendAsync(b, &protocol.SendPassword{Password: "secret"})
	more, err := a.RunOnce()
	require.NoError(t, err)
	require.NoError(t, <-errc)
	assert.True(t, more)
	assert.Equal(t, "secret", password)

	assert.Equal(t, uint64(1), a.Stats().FramesIn)
	assert.Equal(t, uint64(1), a.Stats().FramesOut)
	assert.Equal(t, uint64(protocol.HeaderSize+7), a.Stats().BytesIn)
}

func TestExpectUnexpectedPacket(t *testing.T) {
	a, b := pipe(t)

	errc := sendAsync(a, &protocol.Accept{ClientID: 1})
	_, err := Expect[protocol.RequestPassword](b)
	assert.ErrorIs(t, err, ErrUnexpectedPacket)
	require.NoError(t, <-errc)
	assert.Equal(t, StateOpen, b.State())
}

func TestRunOnceIdleMarkerCloses(t *testing.T) {
	raw, peer := net.Pipe()
	c := NewConnection(peer)
	defer raw.Close()

	go raw.Write([]byte{3, 0, 0})
	more, err := c.RunOnce()
	assert.NoError(t, err)
	assert.False(t, more)
	assert.Equal(t, StateClosed, c.State())

	assert.ErrorIs(t, c.Send(&protocol.RequestPassword{}), ErrClosed)
	_, err = c.RunOnce()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRunOncePeerClosed(t *testing.T) {
	a, b := pipe(t)
	a.Close()

	more, err := b.RunOnce()
	assert.NoError(t, err)
	assert.False(t, more)
	assert.Equal(t, StateClosed, b.State())
}

func TestRunOnceTruncatedFrame(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"partial header", []byte{10, 0}},
		{"missing payload", []byte{10, 0, 7}},
		{"short payload", []byte{10, 0, 7, 1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, peer := net.Pipe()
			c := NewConnection(peer)
			defer c.Close()

			go func() {
				raw.Write(tt.data)
				raw.Close()
			}()

			more, err := c.RunOnce()
			require.Error(t, err)
			assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
			assert.False(t, more)
			assert.Equal(t, StateClosed, c.State())
		})
	}
}

func TestRunOnceHandlerErrorCloses(t *testing.T) {
	a, b := pipe(t)
	boom := errors.New("boom")
	b.Register(protocol.PktAccept, func(protocol.Frame) (bool, error) { return false, boom })

	errc := sendAsync(a, &protocol.Accept{})
	_, err := b.RunOnce()
	assert.ErrorIs(t, err, boom)
	require.NoError(t, <-errc)
	assert.Equal(t, StateClosed, b.State())
}

func TestRunOnceUnhandledFrameIsNotAnError(t *testing.T) {
	a, b := pipe(t)
	errc := sendAsync(a, &protocol.Raw{ID: 250, Data: []byte{0xAA, 0xBB}})
	more, err := b.RunOnce()
	require.NoError(t, err)
	require.NoError(t, <-errc)
	assert.True(t, more)
}

func TestReadTimeoutStalls(t *testing.T) {
	_, b := pipe(t, WithReadTimeout(20*time.Millisecond))

	_, err := b.RunOnce()
	assert.ErrorIs(t, err, ErrStalled)
	assert.Equal(t, StateClosed, b.State())
}

func TestRunStopsOnCancel(t *testing.T) {
	_, b := pipe(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestSendModule(t *testing.T) {
	a, b := pipe(t)

	var got protocol.Ping
	OnModule(b, func(m *protocol.Ping) (bool, error) {
		got = *m
		return true, nil
	})

	errc := make(chan error, 1)
	go func() { errc <- a.SendModule(&protocol.Ping{Position: protocol.Vector2{X: 1, Y: 2}}) }()
	_, err := b.RunOnce()
	require.NoError(t, err)
	require.NoError(t, <-errc)
	assert.Equal(t, protocol.Vector2{X: 1, Y: 2}, got.Position)
}
