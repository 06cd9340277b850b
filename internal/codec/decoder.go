package codec

import (
	"fmt"
	"math"
)

// Decoder fills visited fields from a Cursor. The first failure sticks:
// later visits are no-ops and Err reports it.
type Decoder struct {
	cur Cursor
	err error
}

// NewDecoder creates a decoder reading from cur.
func NewDecoder(cur Cursor) *Decoder {
	return &Decoder{cur: cur}
}

// Decoding is always true for a Decoder.
func (d *Decoder) Decoding() bool { return true }

func (d *Decoder) Fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

func (d *Decoder) Err() error { return d.err }

// Finish returns the recorded error, or ErrTrailingData when the cursor
// still holds unread bytes.
func (d *Decoder) Finish() error {
	if d.err != nil {
		return d.err
	}
	if rem := d.cur.Remaining(); rem > 0 {
		return fmt.Errorf("%w: %d unread bytes", ErrTrailingData, rem)
	}
	return nil
}

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	b, err := d.cur.Next(n)
	if err != nil {
		d.err = err
		return nil
	}
	return b
}

func (d *Decoder) Uint8(p *uint8) {
	if b := d.take(1); b != nil {
		*p = b[0]
	}
}

func (d *Decoder) Int8(p *int8) {
	if b := d.take(1); b != nil {
		*p = int8(b[0])
	}
}

func (d *Decoder) Bool(p *bool) {
	if b := d.take(1); b != nil {
		*p = b[0] != 0
	}
}

func (d *Decoder) Uint16(p *uint16) {
	if b := d.take(2); b != nil {
		*p = Wire.Uint16(b)
	}
}

func (d *Decoder) Int16(p *int16) {
	if b := d.take(2); b != nil {
		*p = int16(Wire.Uint16(b))
	}
}

func (d *Decoder) Uint32(p *uint32) {
	if b := d.take(4); b != nil {
		*p = Wire.Uint32(b)
	}
}

func (d *Decoder) Int32(p *int32) {
	if b := d.take(4); b != nil {
		*p = int32(Wire.Uint32(b))
	}
}

func (d *Decoder) Uint64(p *uint64) {
	if b := d.take(8); b != nil {
		*p = Wire.Uint64(b)
	}
}

func (d *Decoder) Int64(p *int64) {
	if b := d.take(8); b != nil {
		*p = int64(Wire.Uint64(b))
	}
}

func (d *Decoder) Float32(p *float32) {
	if b := d.take(4); b != nil {
		*p = math.Float32frombits(Host.Uint32(b))
	}
}

func (d *Decoder) Float64(p *float64) {
	if b := d.take(8); b != nil {
		*p = math.Float64frombits(Host.Uint64(b))
	}
}

func (d *Decoder) String(p *string) {
	var n uint8
	d.Uint8(&n)
	if d.err != nil {
		return
	}
	if n == 0 {
		*p = ""
		return
	}
	if b := d.take(int(n)); b != nil {
		*p = string(b)
	}
}

func (d *Decoder) Bytes(b []byte) {
	if len(b) == 0 {
		return
	}
	if src := d.take(len(b)); src != nil {
		copy(b, src)
	}
}

// Rest copies every remaining byte. Streams have no end to read up to,
// so Rest fails with ErrUnsupported on a StreamCursor.
func (d *Decoder) Rest(p *[]byte) {
	if d.err != nil {
		return
	}
	n := d.cur.Remaining()
	if n < 0 {
		d.err = ErrUnsupported
		return
	}
	if n == 0 {
		*p = nil
		return
	}
	out := make([]byte, n)
	copy(out, d.take(n))
	*p = out
}
