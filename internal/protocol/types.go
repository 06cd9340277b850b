package protocol

import (
	"errors"
	"fmt"

	"github.com/iskrim46/ogurec/internal/codec"
)

var (
	// ErrBadTextMode is returned when a network text carries an unknown mode tag.
	ErrBadTextMode = errors.New("protocol: unknown network text mode")
	// ErrTooManySubstitutions is returned when a network text has more
	// substitutions than its one-byte count can describe.
	ErrTooManySubstitutions = errors.New("protocol: too many text substitutions")
)

// RGB is a 24-bit colour.
type RGB struct {
	R, G, B uint8
}

func (c *RGB) Code(cd codec.Coder) {
	cd.Uint8(&c.R)
	cd.Uint8(&c.G)
	cd.Uint8(&c.B)
}

// Vector2 is a world position in pixels.
type Vector2 struct {
	X, Y float32
}

func (v *Vector2) Code(c codec.Coder) {
	c.Float32(&v.X)
	c.Float32(&v.Y)
}

// TextMode selects how a NetText is rendered by the receiver.
type TextMode uint8

const (
	TextLiteral TextMode = iota
	TextFormattable
	TextLocalizationKey
)

func (m TextMode) String() string {
	switch m {
	case TextLiteral:
		return "literal"
	case TextFormattable:
		return "formattable"
	case TextLocalizationKey:
		return "localization_key"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// NetText is a localizable string. Formattable and localization-key texts
// carry a list of substitutions, each itself a NetText.
type NetText struct {
	Mode TextMode
	Text string
	Subs []NetText
}

// Literal returns a plain NetText.
func Literal(s string) NetText {
	return NetText{Mode: TextLiteral, Text: s}
}

func (t *NetText) Code(c codec.Coder) {
	mode := uint8(t.Mode)
	c.Uint8(&mode)
	t.Mode = TextMode(mode)
	if c.Err() == nil && t.Mode > TextLocalizationKey {
		c.Fail(fmt.Errorf("%w: %d", ErrBadTextMode, mode))
		return
	}
	c.String(&t.Text)
	if t.Mode == TextLiteral {
		return
	}

	if !c.Decoding() && len(t.Subs) > codec.MaxStringLen {
		c.Fail(fmt.Errorf("%w: %d", ErrTooManySubstitutions, len(t.Subs)))
		return
	}
	n := uint8(len(t.Subs))
	c.Uint8(&n)
	if c.Err() != nil {
		return
	}
	if c.Decoding() {
		t.Subs = nil
		if n > 0 {
			t.Subs = make([]NetText, n)
		}
	}
	codec.Records(c, t.Subs)
}

func (t NetText) String() string {
	return t.Text
}

// Reason names one bit of a DeathReason's flag set. The order is the wire
// order of the optional fields.
type Reason int

const (
	ReasonPlayer Reason = iota
	ReasonNPC
	ReasonProjectile
	ReasonOther
	ReasonProjectileType
	ReasonItem
	ReasonItemPrefix
	ReasonCustom

	reasonCount
)

var reasonNames = [reasonCount]string{
	"player", "npc", "projectile", "other", "projectile_type", "item", "item_prefix", "custom",
}

func (r Reason) String() string {
	if r < 0 || r >= reasonCount {
		return fmt.Sprintf("reason(%d)", int(r))
	}
	return reasonNames[r]
}

// DeathReason describes what dealt damage. It is a tagged record: a one-byte
// flag set followed by only those fields whose bit is set, in bit order.
// A field is present exactly when its pointer is non-nil; the flag byte is
// derived from presence when encoding.
type DeathReason struct {
	PlayerIndex     *int16
	NPCIndex        *int16
	ProjectileIndex *int16
	OtherIndex      *uint8
	ProjectileType  *int16
	ItemType        *int16
	ItemPrefix      *uint8
	Custom          *string
}

// CustomReason returns a DeathReason carrying only a custom message.
func CustomReason(msg string) DeathReason {
	return DeathReason{Custom: &msg}
}

// Flags returns the flag set implied by the present fields.
func (d *DeathReason) Flags() codec.Bits {
	b := make(codec.Bits, codec.BitsLen(int(reasonCount)))
	b.Set(int(ReasonPlayer), d.PlayerIndex != nil)
	b.Set(int(ReasonNPC), d.NPCIndex != nil)
	b.Set(int(ReasonProjectile), d.ProjectileIndex != nil)
	b.Set(int(ReasonOther), d.OtherIndex != nil)
	b.Set(int(ReasonProjectileType), d.ProjectileType != nil)
	b.Set(int(ReasonItem), d.ItemType != nil)
	b.Set(int(ReasonItemPrefix), d.ItemPrefix != nil)
	b.Set(int(ReasonCustom), d.Custom != nil)
	return b
}

// Reasons lists the present fields in wire order.
func (d *DeathReason) Reasons() []Reason {
	idx := d.Flags().Indices()
	out := make([]Reason, len(idx))
	for i, v := range idx {
		out[i] = Reason(v)
	}
	return out
}

// Reset drops every field.
func (d *DeathReason) Reset() {
	*d = DeathReason{}
}

func (d *DeathReason) Code(c codec.Coder) {
	flags := make(codec.Bits, codec.BitsLen(int(reasonCount)))
	if !c.Decoding() {
		flags = d.Flags()
	}
	c.Bytes(flags)

	codec.Optional(c, flags, int(ReasonPlayer), &d.PlayerIndex, c.Int16)
	codec.Optional(c, flags, int(ReasonNPC), &d.NPCIndex, c.Int16)
	codec.Optional(c, flags, int(ReasonProjectile), &d.ProjectileIndex, c.Int16)
	codec.Optional(c, flags, int(ReasonOther), &d.OtherIndex, c.Uint8)
	codec.Optional(c, flags, int(ReasonProjectileType), &d.ProjectileType, c.Int16)
	codec.Optional(c, flags, int(ReasonItem), &d.ItemType, c.Int16)
	codec.Optional(c, flags, int(ReasonItemPrefix), &d.ItemPrefix, c.Uint8)
	codec.Optional(c, flags, int(ReasonCustom), &d.Custom, c.String)
}
