package relay

import (
	"math"

	"github.com/iskrim46/ogurec/internal/events"
	"github.com/iskrim46/ogurec/internal/protocol"
)

// onAccept learns the client's slot from the server's handshake. The frame
// still reaches the client through pass-through.
func (r *Relay) onAccept(p *protocol.Accept) (bool, error) {
	if r.slot.Set(p.ClientID) {
		r.logger.Info().Uint8("slot", p.ClientID).Msg("client slot assigned")
		r.emit(events.EventClientSlotAssigned, events.SlotPayload{SessionID: r.opts.SessionID, Slot: p.ClientID})
	}
	return false, nil
}

// onConnectRequest checks the version the client announces. Unless strict
// checking rejects it, the request continues to pass-through untouched.
func (r *Relay) onConnectRequest(p *protocol.ConnectRequest) (bool, error) {
	if p.Version == protocol.SupportedVersion {
		return false, nil
	}

	r.logger.Warn().Str("got", p.Version).Str("want", protocol.SupportedVersion).Msg("client version mismatch")
	r.emit(events.EventVersionMismatch, events.VersionPayload{
		SessionID: r.opts.SessionID,
		Got:       p.Version,
		Want:      protocol.SupportedVersion,
		Rejected:  r.opts.StrictVersion,
	})
	if !r.opts.StrictVersion {
		return false, nil
	}

	bye := &protocol.Disconnect{Reason: protocol.Literal("unsupported version " + p.Version)}
	if err := r.client.Send(bye); err != nil {
		return false, err
	}
	return true, ErrVersionRejected
}

// onDamage rewrites damage the client reports against any player other
// than itself: the damage is scaled, the attacking player is dropped from
// the reason and a custom message is attached. The other reason fields are
// kept. Damage before the slot is known, or against the client itself,
// passes through unchanged.
func (r *Relay) onDamage(p *protocol.DamagePlayer) (bool, error) {
	slot, known := r.slot.Load()
	if !known || p.ClientID == slot {
		return false, nil
	}

	original := p.Damage
	p.Damage = ScaleDamage(p.Damage, r.opts.DamageMultiplier)
	custom := r.opts.CustomReason
	p.Reason.PlayerIndex = nil
	p.Reason.Custom = &custom

	if err := r.server.Send(p); err != nil {
		return false, err
	}

	r.intercepted.Add(1)
	r.opts.Metrics.intercepted(DirClientToServer)
	r.logger.Info().
		Uint8("target", p.ClientID).
		Int16("damage", original).
		Int16("sent", p.Damage).
		Msg("damage intercepted")
	r.emit(events.EventDamageIntercepted, events.DamagePayload{
		SessionID:      r.opts.SessionID,
		ClientSlot:     slot,
		Target:         p.ClientID,
		OriginalDamage: original,
		NewDamage:      p.Damage,
		Reason:         r.opts.CustomReason,
	})
	return true, nil
}

// ScaleDamage multiplies damage, saturating at the int16 range.
func ScaleDamage(damage int16, multiplier int) int16 {
	v := int64(damage) * int64(multiplier)
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}
