package codec

import (
	"errors"
	"fmt"
	"io"
)

// Cursor is a source of bytes for a Decoder: either an in-memory buffer
// or a live stream.
type Cursor interface {
	// Next returns the next n bytes or fails with ErrTruncated.
	Next(n int) ([]byte, error)
	// Remaining reports how many bytes are left, or -1 when the source
	// cannot know (streams).
	Remaining() int
}

// BufferCursor reads from a byte slice.
type BufferCursor struct {
	buf []byte
	off int
}

// NewBufferCursor creates a cursor positioned at the start of buf.
func NewBufferCursor(buf []byte) *BufferCursor {
	return &BufferCursor{buf: buf}
}

// Next returns a sub-slice of the underlying buffer. It is only valid
// until the buffer is reused.
func (c *BufferCursor) Next(n int) ([]byte, error) {
	if rem := len(c.buf) - c.off; n > rem {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, %d left", ErrTruncated, n, c.off, rem)
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b, nil
}

// Remaining returns the number of unread bytes.
func (c *BufferCursor) Remaining() int {
	return len(c.buf) - c.off
}

// Offset returns the number of bytes consumed so far.
func (c *BufferCursor) Offset() int {
	return c.off
}

// StreamCursor reads from an io.Reader, blocking until every requested byte
// has arrived.
type StreamCursor struct {
	r   io.Reader
	off int64
}

// NewStreamCursor wraps r.
func NewStreamCursor(r io.Reader) *StreamCursor {
	return &StreamCursor{r: r}
}

// Next reads exactly n bytes. A short read at end of stream maps to ErrTruncated;
// any other reader error is returned as is.
func (c *StreamCursor) Next(n int) ([]byte, error) {
	b := make([]byte, n)
	read, err := io.ReadFull(c.r, b)
	c.off += int64(read)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: need %d bytes at offset %d, got %d", ErrTruncated, n, c.off-int64(read), read)
		}
		return nil, err
	}
	return b, nil
}

// Remaining is always -1 for streams.
func (c *StreamCursor) Remaining() int {
	return -1
}

// Offset returns the number of bytes consumed so far.
func (c *StreamCursor) Offset() int64 {
	return c.off
}
