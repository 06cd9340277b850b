package relay

import (
	"context"
	"sync"
)

// Slot is a single-assignment cell for the client's player slot. The server
// read loop sets it when the handshake assigns a slot; the client read loop
// and observers read it. Once set it never changes.
type Slot struct {
	once  sync.Once
	ready chan struct{}
	id    uint8
}

// NewSlot returns an unset slot.
func NewSlot() *Slot {
	return &Slot{ready: make(chan struct{})}
}

// Set stores id if the slot is still unset and reports whether it did.
func (s *Slot) Set(id uint8) bool {
	stored := false
	s.once.Do(func() {
		s.id = id
		close(s.ready)
		stored = true
	})
	return stored
}

// Load returns the slot without blocking.
func (s *Slot) Load() (uint8, bool) {
	select {
	case <-s.ready:
		return s.id, true
	default:
		return 0, false
	}
}

// Wait blocks until the slot is set or ctx is done.
func (s *Slot) Wait(ctx context.Context) (uint8, error) {
	select {
	case <-s.ready:
		return s.id, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
