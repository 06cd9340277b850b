package network

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iskrim46/ogurec/internal/protocol"
)

func TestDispatchOrderStopsAtConsumer(t *testing.T) {
	d := NewDispatcher()
	var calls []string
	d.Register(5, func(protocol.Frame) (bool, error) { calls = append(calls, "h1"); return false, nil })
	d.Register(5, func(protocol.Frame) (bool, error) { calls = append(calls, "h2"); return true, nil })
	d.Register(5, func(protocol.Frame) (bool, error) { calls = append(calls, "h3"); return false, nil })

	consumed, err := d.Dispatch(protocol.Frame{ID: 5})
	require.NoError(t, err)
	assert.True(t, consumed)
	assert.Equal(t, []string{"h1", "h2"}, calls)
	assert.Equal(t, []protocol.PacketID{5}, d.Types())
}

func TestDispatchUnregistered(t *testing.T) {
	d := NewDispatcher()
	consumed, err := d.Dispatch(protocol.Frame{ID: 9, Payload: []byte{1}})
	assert.NoError(t, err)
	assert.False(t, consumed)
	assert.False(t, d.Registered(9))
}

func TestDispatchHandlerError(t *testing.T) {
	d := NewDispatcher()
	boom := errors.New("boom")
	ran := false
	d.Register(5, func(protocol.Frame) (bool, error) { return false, boom })
	d.Register(5, func(protocol.Frame) (bool, error) { ran = true; return true, nil })

	_, err := d.Dispatch(protocol.Frame{ID: 5})
	assert.ErrorIs(t, err, boom)
	assert.False(t, ran)
}

func TestDispatchModuleWithoutHandlersIsNoop(t *testing.T) {
	d := NewDispatcher()
	calls := 0
	d.RegisterModule(protocol.ModText, func([]byte) (bool, error) { calls++; return true, nil })

	f := protocol.Frame{ID: protocol.ModuleFrameID, Payload: protocol.JoinModule(protocol.ModParticles, []byte{1, 2, 3})}
	consumed, err := d.Dispatch(f)
	assert.NoError(t, err)
	assert.False(t, consumed)
	assert.Zero(t, calls)
}

func TestDispatchModuleFallsThroughToFrameHandlers(t *testing.T) {
	d := NewDispatcher()
	var seen []string
	d.RegisterModule(protocol.ModText, func([]byte) (bool, error) { seen = append(seen, "text"); return false, nil })
	d.Register(protocol.ModuleFrameID, func(protocol.Frame) (bool, error) { seen = append(seen, "frame"); return true, nil })

	consumed, err := d.Dispatch(protocol.Frame{ID: protocol.ModuleFrameID, Payload: protocol.JoinModule(protocol.ModPing, make([]byte, 8))})
	require.NoError(t, err)
	assert.True(t, consumed)
	assert.Equal(t, []string{"frame"}, seen)

	seen = nil
	consumed, err = d.Dispatch(protocol.Frame{ID: protocol.ModuleFrameID, Payload: protocol.JoinModule(protocol.ModText, nil)})
	require.NoError(t, err)
	assert.True(t, consumed)
	assert.Equal(t, []string{"text", "frame"}, seen)
}

func TestDispatchModuleConsumed(t *testing.T) {
	d := NewDispatcher()
	var got protocol.TextCommand
	d.RegisterModule(protocol.ModText, HandleModule(func(m *protocol.TextCommand) (bool, error) {
		got = *m
		return true, nil
	}))
	frameRan := false
	d.Register(protocol.ModuleFrameID, func(protocol.Frame) (bool, error) { frameRan = true; return true, nil })

	payload, err := protocol.EncodeModule(&protocol.TextCommand{Command: "Say", Text: "hello"})
	require.NoError(t, err)
	consumed, err := d.Dispatch(protocol.Frame{ID: protocol.ModuleFrameID, Payload: payload})
	require.NoError(t, err)
	assert.True(t, consumed)
	assert.False(t, frameRan)
	assert.Equal(t, protocol.TextCommand{Command: "Say", Text: "hello"}, got)
}

func TestDispatchTruncatedModuleFrame(t *testing.T) {
	d := NewDispatcher()
	_, err := d.Dispatch(protocol.Frame{ID: protocol.ModuleFrameID, Payload: []byte{1}})
	assert.Error(t, err)
}

func TestHandleDecodesPerHandler(t *testing.T) {
	d := NewDispatcher()
	var first, second *protocol.Accept
	d.Register(protocol.PktAccept, Handle(func(p *protocol.Accept) (bool, error) {
		first = p
		p.ClientID = 99
		return false, nil
	}))
	d.Register(protocol.PktAccept, Handle(func(p *protocol.Accept) (bool, error) {
		second = p
		return true, nil
	}))

	_, err := d.Dispatch(protocol.Frame{ID: protocol.PktAccept, Payload: []byte{4, 0}})
	require.NoError(t, err)
	assert.Equal(t, uint8(99), first.ClientID)
	assert.Equal(t, uint8(4), second.ClientID)
}

func TestHandleDecodeErrorPropagates(t *testing.T) {
	d := NewDispatcher()
	d.Register(protocol.PktAccept, Handle(func(p *protocol.Accept) (bool, error) { return true, nil }))

	_, err := d.Dispatch(protocol.Frame{ID: protocol.PktAccept, Payload: []byte{4}})
	assert.Error(t, err)
}
