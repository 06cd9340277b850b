package network

import (
	"fmt"
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/iskrim46/ogurec/internal/codec"
	"github.com/iskrim46/ogurec/internal/protocol"
)

// Handler receives one frame. Returning consumed stops the handlers
// registered after it from running for that frame. An error aborts the
// read cycle.
type Handler func(f protocol.Frame) (consumed bool, err error)

// ModuleHandler receives the payload of one module frame, module id stripped.
type ModuleHandler func(payload []byte) (consumed bool, err error)

// Dispatcher routes frames to the handlers registered for their id. Module
// frames are first routed by module id; when no module handler consumes
// them they continue to the handlers registered for the module frame id.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[protocol.PacketID][]Handler
	modules  map[protocol.ModuleID][]ModuleHandler
}

// NewDispatcher creates an empty dispatch table.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[protocol.PacketID][]Handler),
		modules:  make(map[protocol.ModuleID][]ModuleHandler),
	}
}

// Register appends h to the handlers for id.
func (d *Dispatcher) Register(id protocol.PacketID, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[id] = append(d.handlers[id], h)
}

// RegisterModule appends h to the handlers for module id.
func (d *Dispatcher) RegisterModule(id protocol.ModuleID, h ModuleHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.modules[id] = append(d.modules[id], h)
}

// Registered reports whether any handler is registered for id.
func (d *Dispatcher) Registered(id protocol.PacketID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[id]) > 0
}

// Types returns the packet ids with at least one handler, in ascending order.
func (d *Dispatcher) Types() []protocol.PacketID {
	d.mu.RLock()
	ids := maps.Keys(d.handlers)
	d.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Dispatch runs the handlers for f in registration order until one
// consumes it. A frame nobody handles is not consumed and is not an error.
func (d *Dispatcher) Dispatch(f protocol.Frame) (bool, error) {
	if f.ID == protocol.ModuleFrameID {
		consumed, err := d.dispatchModule(f.Payload)
		if consumed || err != nil {
			return consumed, err
		}
	}

	d.mu.RLock()
	list := d.handlers[f.ID]
	d.mu.RUnlock()

	for _, h := range list {
		consumed, err := h(f)
		if err != nil {
			return false, err
		}
		if consumed {
			return true, nil
		}
	}
	return false, nil
}

// dispatchModule treats a module id without handlers as a no-op.
func (d *Dispatcher) dispatchModule(payload []byte) (bool, error) {
	id, body, err := protocol.SplitModule(payload)
	if err != nil {
		return false, err
	}

	d.mu.RLock()
	list := d.modules[id]
	d.mu.RUnlock()

	for _, h := range list {
		consumed, err := h(body)
		if err != nil {
			return false, fmt.Errorf("module %s: %w", id, err)
		}
		if consumed {
			return true, nil
		}
	}
	return false, nil
}

// Handle adapts a typed handler into a Handler. The frame is decoded into
// a fresh record on every call.
func Handle[T any, P interface {
	*T
	protocol.Packet
}](fn func(p P) (bool, error)) Handler {
	return func(f protocol.Frame) (bool, error) {
		p := P(new(T))
		if err := protocol.Unmarshal(f, p); err != nil {
			return false, err
		}
		return fn(p)
	}
}

// HandleModule adapts a typed module handler into a ModuleHandler.
func HandleModule[T any, P interface {
	*T
	protocol.Module
}](fn func(m P) (bool, error)) ModuleHandler {
	return func(payload []byte) (bool, error) {
		m := P(new(T))
		if err := codec.Decode(payload, m); err != nil {
			return false, err
		}
		return fn(m)
	}
}
