package protocol

import (
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/iskrim46/ogurec/internal/codec"
)

// ModuleID identifies a module inside a module frame.
type ModuleID uint16

const (
	ModLiquid                   ModuleID = 0
	ModText                     ModuleID = 1
	ModPing                     ModuleID = 2
	ModAmbience                 ModuleID = 3
	ModBestiary                 ModuleID = 4
	ModCreativeUnlocks          ModuleID = 5
	ModCreativePowers           ModuleID = 6
	ModCreativeUnlocksReport    ModuleID = 7
	ModTeleportPylon            ModuleID = 8
	ModParticles                ModuleID = 9
	ModCreativePowerPermissions ModuleID = 10
)

// ModuleHeaderSize is the length of the module id prefix.
const ModuleHeaderSize = 2

var moduleNames = map[ModuleID]string{
	ModLiquid:                   "Liquid",
	ModText:                     "Text",
	ModPing:                     "Ping",
	ModAmbience:                 "Ambience",
	ModBestiary:                 "Bestiary",
	ModCreativeUnlocks:          "CreativeUnlocks",
	ModCreativePowers:           "CreativePowers",
	ModCreativeUnlocksReport:    "CreativeUnlocksReport",
	ModTeleportPylon:            "TeleportPylon",
	ModParticles:                "Particles",
	ModCreativePowerPermissions: "CreativePowerPermissions",
}

func (m ModuleID) String() string {
	if name, ok := moduleNames[m]; ok {
		return name
	}
	return fmt.Sprintf("module(%d)", uint16(m))
}

// Modules returns the known module ids in order.
func Modules() []ModuleID {
	ids := maps.Keys(moduleNames)
	slices.Sort(ids)
	return ids
}

// Module is a record bound to a module id.
type Module interface {
	codec.Record
	ModuleID() ModuleID
}

// TextCommand is a chat line sent by the client. Command is "Say" for
// plain chat.
type TextCommand struct {
	Command string
	Text    string
}

func (TextCommand) ModuleID() ModuleID { return ModText }

func (m *TextCommand) Code(c codec.Coder) {
	c.String(&m.Command)
	c.String(&m.Text)
}

// TextBroadcast is a chat line sent by the server.
type TextBroadcast struct {
	Author uint8
	Text   NetText
	Color  RGB
}

func (TextBroadcast) ModuleID() ModuleID { return ModText }

func (m *TextBroadcast) Code(c codec.Coder) {
	c.Uint8(&m.Author)
	m.Text.Code(c)
	m.Color.Code(c)
}

// Ping marks a position on the map.
type Ping struct {
	Position Vector2
}

func (Ping) ModuleID() ModuleID { return ModPing }

func (m *Ping) Code(c codec.Coder) {
	m.Position.Code(c)
}

// SplitModule separates a module frame payload into its module id and the
// module's own payload.
func SplitModule(payload []byte) (ModuleID, []byte, error) {
	if len(payload) < ModuleHeaderSize {
		return 0, nil, fmt.Errorf("%w: module frame of %d bytes", codec.ErrTruncated, len(payload))
	}
	return ModuleID(codec.Wire.Uint16(payload)), payload[ModuleHeaderSize:], nil
}

// JoinModule prefixes a module payload with its module id.
func JoinModule(id ModuleID, payload []byte) []byte {
	out := make([]byte, 0, ModuleHeaderSize+len(payload))
	out = codec.Wire.AppendUint16(out, uint16(id))
	return append(out, payload...)
}

// EncodeModule serializes m into a complete module frame payload.
func EncodeModule(m Module) ([]byte, error) {
	body, err := codec.Encode(m)
	if err != nil {
		return nil, fmt.Errorf("encode module %s: %w", m.ModuleID(), err)
	}
	return JoinModule(m.ModuleID(), body), nil
}
