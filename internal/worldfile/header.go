// Package worldfile reads the header of Terraria save files. It shares the
// packet codec, driven from a stream cursor instead of a frame buffer.
package worldfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/iskrim46/ogurec/internal/codec"
	"github.com/iskrim46/ogurec/internal/protocol"
)

const (
	// Magic is the "relogic" signature held in the low 56 bits of the
	// metadata word. The top byte is the file type.
	Magic     uint64 = 27981915666277746
	MagicMask uint64 = 0xFFFFFFFFFFFFFF

	// MinVersion is the last file version the reader does not accept.
	MinVersion = 88
	// MaxVersion is the newest file version the reader accepts.
	MaxVersion = protocol.ProtocolVersion
)

var (
	ErrBadMagic        = errors.New("worldfile: not a relogic file")
	ErrUnknownFileType = errors.New("worldfile: unknown file type")
	ErrVersion         = errors.New("worldfile: unsupported file version")
	ErrNotWorld        = errors.New("worldfile: expected a world file")
)

// FileType is the kind of save file.
type FileType uint8

const (
	FileMap FileType = iota + 1
	FileWorld
	FilePlayer

	fileTypeEnd
)

func (t FileType) String() string {
	switch t {
	case FileMap:
		return "map"
	case FileWorld:
		return "world"
	case FilePlayer:
		return "player"
	default:
		return fmt.Sprintf("filetype(%d)", uint8(t))
	}
}

// FlagFavorite marks a file the player starred.
const FlagFavorite = 0

// Metadata is the fixed block every save file carries after its version.
type Metadata struct {
	Type     FileType
	Revision uint32
	Flags    uint64
}

// Favorite reports whether the favorite flag is set.
func (m *Metadata) Favorite() bool {
	return m.Flags&(1<<FlagFavorite) != 0
}

func (m *Metadata) Code(c codec.Coder) {
	word := Magic | uint64(m.Type)<<56
	c.Uint64(&word)
	if c.Decoding() && c.Err() == nil {
		if word&MagicMask != Magic {
			c.Fail(fmt.Errorf("%w: signature %#x", ErrBadMagic, word&MagicMask))
			return
		}
		m.Type = FileType(word >> 56)
		if m.Type == 0 || m.Type >= fileTypeEnd {
			c.Fail(fmt.Errorf("%w: %d", ErrUnknownFileType, uint8(m.Type)))
			return
		}
	}
	c.Uint32(&m.Revision)
	c.Uint64(&m.Flags)
}

// Header is the leading part of a save file.
type Header struct {
	Version int32
	Meta    Metadata
}

func (h *Header) Code(c codec.Coder) {
	c.Int32(&h.Version)
	if c.Decoding() && c.Err() == nil && (h.Version <= MinVersion || h.Version > MaxVersion) {
		c.Fail(fmt.Errorf("%w: %d (want %d < v <= %d)", ErrVersion, h.Version, MinVersion, MaxVersion))
		return
	}
	h.Meta.Code(c)
}

// Read decodes a header of any file type from r. Only the header bytes are
// consumed.
func Read(r io.Reader) (*Header, error) {
	h := &Header{}
	d := codec.NewDecoder(codec.NewStreamCursor(r))
	h.Code(d)
	if err := d.Err(); err != nil {
		return nil, err
	}
	return h, nil
}

// ReadHeader decodes a world file header from r.
func ReadHeader(r io.Reader) (*Header, error) {
	h, err := Read(r)
	if err != nil {
		return nil, err
	}
	if h.Meta.Type != FileWorld {
		return nil, fmt.Errorf("%w: got %s file", ErrNotWorld, h.Meta.Type)
	}
	return h, nil
}

// Open reads the world file header at path.
func Open(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h, err := ReadHeader(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return h, nil
}
