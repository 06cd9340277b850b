package protocol

import (
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Descriptor associates a packet id with its record shape.
type Descriptor struct {
	ID         PacketID
	Name       string
	Compressed bool
	New        func() Packet
}

var registry = map[PacketID]Descriptor{}

// Register adds d to the packet set. Registering id 0 or an id twice is a
// programming error and panics.
func Register(d Descriptor) {
	if d.ID == 0 {
		panic(fmt.Sprintf("protocol: packet %q registered with reserved id 0", d.Name))
	}
	if prev, dup := registry[d.ID]; dup {
		panic(fmt.Sprintf("protocol: packet id %d registered twice (%s, %s)", d.ID, prev.Name, d.Name))
	}
	registry[d.ID] = d
}

// Lookup returns the descriptor registered for id.
func Lookup(id PacketID) (Descriptor, bool) {
	d, ok := registry[id]
	return d, ok
}

// Descriptors returns every registered descriptor ordered by id.
func Descriptors() []Descriptor {
	ids := maps.Keys(registry)
	slices.Sort(ids)
	out := make([]Descriptor, len(ids))
	for i, id := range ids {
		out[i] = registry[id]
	}
	return out
}

// IsCompressed reports whether frames of this id carry a deflated payload.
func IsCompressed(id PacketID) bool {
	return registry[id].Compressed
}

func (id PacketID) String() string {
	if d, ok := registry[id]; ok {
		return d.Name
	}
	return fmt.Sprintf("packet(%d)", uint8(id))
}

func reg[T any, P interface {
	*T
	Packet
}](name string, compressed bool) {
	var zero T
	Register(Descriptor{
		ID:         P(&zero).PacketID(),
		Name:       name,
		Compressed: compressed,
		New:        func() Packet { return P(new(T)) },
	})
}

func init() {
	reg[ConnectRequest]("ConnectRequest", false)
	reg[Disconnect]("Disconnect", false)
	reg[Accept]("Accept", false)
	reg[PlayerInfo]("PlayerInfo", false)
	reg[PlayerInventorySlot]("PlayerInventorySlot", false)
	reg[RequestWorldData]("RequestWorldData", false)
	reg[WorldInfo]("WorldInfo", false)
	reg[RequestTileData]("RequestTileData", false)
	reg[StatusText]("StatusText", false)
	reg[SendTileData]("SendTileData", true)
	reg[SpawnPlayer]("SpawnPlayer", false)
	reg[PlayerHealth]("PlayerHealth", false)
	reg[PlayerZones]("PlayerZones", false)
	reg[RequestPassword]("RequestPassword", false)
	reg[SendPassword]("SendPassword", false)
	reg[PlayerMana]("PlayerMana", false)
	reg[InitialSpawn]("InitialSpawn", false)
	reg[UpdatePlayerBuffs]("UpdatePlayerBuffs", false)
	reg[WorldEvil]("WorldEvil", false)
	reg[PlayerUUID]("PlayerUUID", false)
	reg[NetModule]("NetModule", false)
	reg[NPCKillCount]("NPCKillCount", false)
	reg[TowerPowers]("TowerPowers", false)
	reg[DamagePlayer]("DamagePlayer", false)
	reg[ConnectionCompleted]("ConnectionCompleted", false)
	reg[MonsterTypes]("MonsterTypes", false)
	reg[PlayerLoadout]("PlayerLoadout", false)
}
