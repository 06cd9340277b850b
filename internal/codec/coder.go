// Package codec implements the structural binary codec used by every
// packet and module record.
//
// A record declares its wire layout once, in a Code method that visits its
// fields in order. The same method drives both directions: an Encoder
// appends each visited field to a buffer, a Decoder fills each visited
// field from a Cursor. Because encode and decode share one field list they
// cannot drift apart.
//
// Integers use the little-endian wire order. Floats are copied as raw host
// bit patterns. Strings carry a one-byte length prefix and are therefore
// limited to 255 bytes.
package codec

// Coder visits the fields of a record.
type Coder interface {
	// Decoding reports whether fields are being filled rather than written.
	Decoding() bool

	Uint8(p *uint8)
	Int8(p *int8)
	Bool(p *bool)
	Uint16(p *uint16)
	Int16(p *int16)
	Uint32(p *uint32)
	Int32(p *int32)
	Uint64(p *uint64)
	Int64(p *int64)
	Float32(p *float32)
	Float64(p *float64)

	// String visits a length-prefixed byte string.
	String(p *string)
	// Bytes visits a fixed-size byte array; len(b) is part of the shape.
	Bytes(b []byte)
	// Rest visits every byte left in the payload.
	Rest(p *[]byte)

	// Fail records err unless an error is already recorded.
	Fail(err error)
	// Err returns the first error recorded.
	Err() error
}

// Record is anything with a declared wire layout.
type Record interface {
	Code(c Coder)
}

// Encode serializes r.
func Encode(r Record) ([]byte, error) {
	e := NewEncoder(nil)
	r.Code(e)
	if err := e.Err(); err != nil {
		return nil, err
	}
	return e.Buffer(), nil
}

// Decode fills r from b. Every byte of b must be consumed.
func Decode(b []byte, r Record) error {
	d := NewDecoder(NewBufferCursor(b))
	r.Code(d)
	return d.Finish()
}

// Array visits every element of a fixed-size sequence in index order.
// There is no length prefix: the size belongs to the record's shape.
func Array[T any](c Coder, s []T, code func(*T)) {
	for i := range s {
		if c.Err() != nil {
			return
		}
		code(&s[i])
	}
}

// Records visits a fixed-size sequence of nested records.
func Records[T any, P interface {
	*T
	Record
}](c Coder, s []T) {
	for i := range s {
		if c.Err() != nil {
			return
		}
		P(&s[i]).Code(c)
	}
}

// Optional visits a conditional field guarded by bit of flags. When
// decoding, *p is allocated only if the bit is set and left nil otherwise;
// when encoding, a nil *p writes nothing. Callers derive flags from field
// presence before encoding, so a field is on the wire exactly when its bit
// is set.
func Optional[T any](c Coder, flags Bits, bit int, p **T, code func(*T)) {
	if c.Err() != nil {
		return
	}
	if c.Decoding() {
		if !flags.Has(bit) {
			*p = nil
			return
		}
		v := new(T)
		code(v)
		*p = v
		return
	}
	if *p != nil {
		code(*p)
	}
}
