// Package protocol describes the Terraria wire protocol as spoken by the
// relay: the frame layout, the packet and module records, and the registry
// that ties packet ids to record shapes. All integers are little-endian;
// every frame carries a 2-byte length prefix that counts its own header.
package protocol

import "github.com/iskrim46/ogurec/internal/codec"

// PacketID is the one-byte frame type identifier. Zero is reserved for the
// idle/terminal marker and is never registered.
type PacketID uint8

// Packet ids understood by the relay.
const (
	PktConnectRequest      PacketID = 1
	PktDisconnect          PacketID = 2
	PktAccept              PacketID = 3 // assigns the client its player slot
	PktPlayerInfo          PacketID = 4
	PktPlayerInventorySlot PacketID = 5
	PktRequestWorldData    PacketID = 6
	PktWorldInfo           PacketID = 7
	PktRequestTileData     PacketID = 8
	PktStatusText          PacketID = 9
	PktSendTileData        PacketID = 10 // compressed
	PktSpawnPlayer         PacketID = 12
	PktPlayerHealth        PacketID = 16
	PktPlayerZones         PacketID = 36
	PktRequestPassword     PacketID = 37
	PktSendPassword        PacketID = 38
	PktPlayerMana          PacketID = 42
	PktInitialSpawn        PacketID = 49
	PktUpdatePlayerBuffs   PacketID = 50
	PktWorldEvil           PacketID = 57
	PktPlayerUUID          PacketID = 68
	PktNetModule           PacketID = 82 // module frame follows
	PktNPCKillCount        PacketID = 83
	PktTowerPowers         PacketID = 101
	PktDamagePlayer        PacketID = 117
	PktConnectionCompleted PacketID = 129
	PktMonsterTypes        PacketID = 136
	PktPlayerLoadout       PacketID = 147
)

// ModuleFrameID is the reserved packet id whose payload is a module sub-frame.
const ModuleFrameID = PktNetModule

// ProtocolVersion is the single protocol revision the relay accepts.
const ProtocolVersion = 279

// SupportedVersion is the version string a client announces in ConnectRequest.
const SupportedVersion = "Terraria279"

// HeaderSize is the length of the frame header: 2-byte length plus type id.
const HeaderSize = 3

// MaxFrameSize is the largest total_length the 16-bit prefix can carry.
const MaxFrameSize = 65535

// MaxPayloadSize is the largest payload a single frame can hold.
const MaxPayloadSize = MaxFrameSize - HeaderSize

// Packet is a record bound to a packet id.
type Packet interface {
	codec.Record
	PacketID() PacketID
}

// Raw keeps a payload verbatim. It is what pass-through forwarding carries
// and what handlers receive for ids without a registered shape.
type Raw struct {
	ID   PacketID
	Data []byte
}

func (r Raw) PacketID() PacketID { return r.ID }

func (r *Raw) Code(c codec.Coder) {
	c.Rest(&r.Data)
}
