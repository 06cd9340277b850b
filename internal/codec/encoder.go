package codec

import (
	"fmt"
	"math"
)

// MaxStringLen is the longest string a one-byte length prefix can describe.
const MaxStringLen = math.MaxUint8

// Encoder appends visited fields to a byte buffer.
type Encoder struct {
	buf []byte
	err error
}

// NewEncoder creates an encoder that appends to buf.
func NewEncoder(buf []byte) *Encoder {
	return &Encoder{buf: buf}
}

// Decoding is always false for an Encoder.
func (e *Encoder) Decoding() bool { return false }

// Buffer returns the encoded bytes.
func (e *Encoder) Buffer() []byte { return e.buf }

// Len returns the number of bytes written so far.
func (e *Encoder) Len() int { return len(e.buf) }

// Reset clears the buffer and any recorded error for reuse.
func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
	e.err = nil
}

func (e *Encoder) Fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *Encoder) Err() error { return e.err }

func (e *Encoder) Uint8(p *uint8) {
	if e.err == nil {
		e.buf = append(e.buf, *p)
	}
}

func (e *Encoder) Int8(p *int8) {
	if e.err == nil {
		e.buf = append(e.buf, uint8(*p))
	}
}

func (e *Encoder) Bool(p *bool) {
	if e.err != nil {
		return
	}
	var v uint8
	if *p {
		v = 1
	}
	e.buf = append(e.buf, v)
}

func (e *Encoder) Uint16(p *uint16) {
	if e.err == nil {
		e.buf = Wire.AppendUint16(e.buf, *p)
	}
}

func (e *Encoder) Int16(p *int16) {
	if e.err == nil {
		e.buf = Wire.AppendUint16(e.buf, uint16(*p))
	}
}

func (e *Encoder) Uint32(p *uint32) {
	if e.err == nil {
		e.buf = Wire.AppendUint32(e.buf, *p)
	}
}

func (e *Encoder) Int32(p *int32) {
	if e.err == nil {
		e.buf = Wire.AppendUint32(e.buf, uint32(*p))
	}
}

func (e *Encoder) Uint64(p *uint64) {
	if e.err == nil {
		e.buf = Wire.AppendUint64(e.buf, *p)
	}
}

func (e *Encoder) Int64(p *int64) {
	if e.err == nil {
		e.buf = Wire.AppendUint64(e.buf, uint64(*p))
	}
}

func (e *Encoder) Float32(p *float32) {
	if e.err == nil {
		e.buf = Host.AppendUint32(e.buf, math.Float32bits(*p))
	}
}

func (e *Encoder) Float64(p *float64) {
	if e.err == nil {
		e.buf = Host.AppendUint64(e.buf, math.Float64bits(*p))
	}
}

// String writes [length:1][bytes...]. Strings longer than MaxStringLen
// fail the encode instead of being truncated.
func (e *Encoder) String(p *string) {
	if e.err != nil {
		return
	}
	if len(*p) > MaxStringLen {
		e.err = fmt.Errorf("%w: %d bytes", ErrStringTooLong, len(*p))
		return
	}
	e.buf = append(e.buf, uint8(len(*p)))
	e.buf = append(e.buf, *p...)
}

func (e *Encoder) Bytes(b []byte) {
	if e.err == nil {
		e.buf = append(e.buf, b...)
	}
}

func (e *Encoder) Rest(p *[]byte) {
	if e.err == nil {
		e.buf = append(e.buf, *p...)
	}
}
