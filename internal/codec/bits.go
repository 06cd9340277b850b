package codec

// Bits is a packed bit-flag set. Bit i lives in byte i/8 under mask
// 1<<(i%8). A set of n bits occupies BitsLen(n) bytes on the wire.
type Bits []byte

// BitsLen returns the number of bytes needed to hold n bits.
func BitsLen(n int) int {
	return (n + 7) / 8
}

// Has reports whether bit i is set. Bits beyond the set read as clear.
func (b Bits) Has(i int) bool {
	if i < 0 || i/8 >= len(b) {
		return false
	}
	return b[i/8]&(1<<(i%8)) != 0
}

// Set sets or clears bit i. Bits beyond the set are ignored.
func (b Bits) Set(i int, v bool) {
	if i < 0 || i/8 >= len(b) {
		return
	}
	if v {
		b[i/8] |= 1 << (i % 8)
	} else {
		b[i/8] &^= 1 << (i % 8)
	}
}

// Clear clears every bit.
func (b Bits) Clear() {
	for i := range b {
		b[i] = 0
	}
}

// Indices returns the set bits in ascending order.
func (b Bits) Indices() []int {
	var out []int
	for i := 0; i < len(b)*8; i++ {
		if b.Has(i) {
			out = append(out, i)
		}
	}
	return out
}
