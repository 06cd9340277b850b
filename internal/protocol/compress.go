package protocol

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
)

// ErrCompression is returned when a compressed payload cannot be deflated
// or inflated. It is never retried.
var ErrCompression = errors.New("protocol: compression failure")

// MaxInflatedSize bounds how large a single inflated payload may grow.
const MaxInflatedSize = 16 << 20

// Deflate compresses a payload for a compressed packet type.
func Deflate(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompression, err)
	}
	if _, err := w.Write(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompression, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompression, err)
	}
	return buf.Bytes(), nil
}

// Inflate reverses Deflate.
func Inflate(payload []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompression, err)
	}
	defer r.Close()

	out, err := io.ReadAll(io.LimitReader(r, MaxInflatedSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompression, err)
	}
	if len(out) > MaxInflatedSize {
		return nil, fmt.Errorf("%w: inflated payload exceeds %d bytes", ErrCompression, MaxInflatedSize)
	}
	return out, nil
}
