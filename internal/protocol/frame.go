package protocol

import (
	"errors"
	"fmt"
	"io"

	"github.com/iskrim46/ogurec/internal/codec"
)

var (
	// ErrIdleFrame is returned by ReadFrame when the stream delivers the
	// idle/terminal marker (type id 0). No payload is read.
	ErrIdleFrame = errors.New("protocol: idle frame")
	// ErrBadFrameLength is returned when total_length is shorter than the header.
	ErrBadFrameLength = errors.New("protocol: bad frame length")
	// ErrFrameTooLarge is returned when a payload does not fit a 16-bit length.
	ErrFrameTooLarge = errors.New("protocol: frame too large")
)

// Frame is one length-delimited unit on the wire. Payload is exactly as it
// travels: compressed for compressed packet types.
type Frame struct {
	ID      PacketID
	Payload []byte
}

// Size returns the total_length the frame is written with.
func (f Frame) Size() int {
	return HeaderSize + len(f.Payload)
}

// ReadFrame reads one frame from r.
// Frame format: [2-byte LE total_length][1-byte type id][payload...]
func ReadFrame(r io.Reader) (Frame, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, fmt.Errorf("read frame header: %w", err)
	}

	length := int(codec.Wire.Uint16(hdr[:2]))
	id := PacketID(hdr[2])
	if id == 0 {
		return Frame{}, ErrIdleFrame
	}
	if length < HeaderSize {
		return Frame{}, fmt.Errorf("%w: %d for packet %d", ErrBadFrameLength, length, id)
	}

	// Only an end of stream before the header counts as a clean end.
	payload := make([]byte, length-HeaderSize)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Frame{}, fmt.Errorf("read %s payload (%d bytes): %w", id, len(payload), err)
	}
	return Frame{ID: id, Payload: payload}, nil
}

// WriteFrame writes one frame to w in a single Write call.
func WriteFrame(w io.Writer, id PacketID, payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return fmt.Errorf("%w: %s payload of %d bytes", ErrFrameTooLarge, id, len(payload))
	}
	buf := make([]byte, 0, HeaderSize+len(payload))
	buf = codec.Wire.AppendUint16(buf, uint16(HeaderSize+len(payload)))
	buf = append(buf, byte(id))
	buf = append(buf, payload...)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write %s frame: %w", id, err)
	}
	return nil
}

// Marshal encodes p into a frame, deflating the payload when its packet
// type is compressed. Raw records are framed verbatim.
func Marshal(p Packet) (Frame, error) {
	payload, err := codec.Encode(p)
	if err != nil {
		return Frame{}, fmt.Errorf("encode %s: %w", p.PacketID(), err)
	}
	if _, raw := p.(*Raw); !raw && IsCompressed(p.PacketID()) {
		if payload, err = Deflate(payload); err != nil {
			return Frame{}, fmt.Errorf("encode %s: %w", p.PacketID(), err)
		}
	}
	return Frame{ID: p.PacketID(), Payload: payload}, nil
}

// Unmarshal decodes f's payload into p, inflating it first when the
// frame's packet type is compressed. Raw records receive the payload as it
// travelled.
func Unmarshal(f Frame, p Packet) error {
	payload := f.Payload
	if raw, ok := p.(*Raw); ok {
		raw.ID = f.ID
	} else if IsCompressed(f.ID) {
		var err error
		if payload, err = Inflate(payload); err != nil {
			return fmt.Errorf("decode %s: %w", f.ID, err)
		}
	}
	if err := codec.Decode(payload, p); err != nil {
		return fmt.Errorf("decode %s: %w", f.ID, err)
	}
	return nil
}

// Decode decodes f into a fresh record of its registered shape. Ids
// without a registered shape decode into Raw.
func Decode(f Frame) (Packet, error) {
	var p Packet = &Raw{}
	if d, ok := Lookup(f.ID); ok {
		p = d.New()
	}
	if err := Unmarshal(f, p); err != nil {
		return nil, err
	}
	return p, nil
}
