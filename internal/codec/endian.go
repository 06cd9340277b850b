package codec

import "encoding/binary"

// ByteOrder reads, writes and appends fixed-width integers.
type ByteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// Wire is the byte order of every integer on the wire.
var Wire ByteOrder = binary.LittleEndian

// Host is the byte order floats are copied with. Floats keep their in-memory
// bit pattern, so their wire form depends on the host's endianness.
var Host ByteOrder = binary.NativeEndian
