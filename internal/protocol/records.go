package protocol

import "github.com/iskrim46/ogurec/internal/codec"

// MaxBuffs is the number of buff slots a player carries.
const MaxBuffs = 44

// ConnectRequest is the first packet a client sends.
type ConnectRequest struct {
	Version string
}

func (ConnectRequest) PacketID() PacketID { return PktConnectRequest }

func (p *ConnectRequest) Code(c codec.Coder) {
	c.String(&p.Version)
}

// Disconnect ends the session with a reason shown to the player.
type Disconnect struct {
	Reason NetText
}

func (Disconnect) PacketID() PacketID { return PktDisconnect }

func (p *Disconnect) Code(c codec.Coder) {
	p.Reason.Code(c)
}

// Accept tells the client which player slot it occupies.
type Accept struct {
	ClientID uint8
	Flag     uint8
}

func (Accept) PacketID() PacketID { return PktAccept }

func (p *Accept) Code(c codec.Coder) {
	c.Uint8(&p.ClientID)
	c.Uint8(&p.Flag)
}

type PlayerInfo struct {
	ClientID        uint8
	SkinVariant     uint8
	HairVariant     uint8
	Name            string
	HairDye         uint8
	HideVisuals     uint16
	HideMisc        uint8
	HairColor       RGB
	SkinColor       RGB
	EyeColor        RGB
	ShirtColor      RGB
	UndershirtColor RGB
	PantsColor      RGB
	ShoesColor      RGB
	Difficulty      uint8
	Torches         uint8
	PermanentBuffs  uint8
}

func (PlayerInfo) PacketID() PacketID { return PktPlayerInfo }

func (p *PlayerInfo) Code(c codec.Coder) {
	c.Uint8(&p.ClientID)
	c.Uint8(&p.SkinVariant)
	c.Uint8(&p.HairVariant)
	c.String(&p.Name)
	c.Uint8(&p.HairDye)
	c.Uint16(&p.HideVisuals)
	c.Uint8(&p.HideMisc)
	p.HairColor.Code(c)
	p.SkinColor.Code(c)
	p.EyeColor.Code(c)
	p.ShirtColor.Code(c)
	p.UndershirtColor.Code(c)
	p.PantsColor.Code(c)
	p.ShoesColor.Code(c)
	c.Uint8(&p.Difficulty)
	c.Uint8(&p.Torches)
	c.Uint8(&p.PermanentBuffs)
}

type PlayerInventorySlot struct {
	ClientID uint8
	SlotID   int16
	Amount   int16
	Prefix   uint8
	ItemID   int16
}

func (PlayerInventorySlot) PacketID() PacketID { return PktPlayerInventorySlot }

func (p *PlayerInventorySlot) Code(c codec.Coder) {
	c.Uint8(&p.ClientID)
	c.Int16(&p.SlotID)
	c.Int16(&p.Amount)
	c.Uint8(&p.Prefix)
	c.Int16(&p.ItemID)
}

type RequestWorldData struct{}

func (RequestWorldData) PacketID() PacketID { return PktRequestWorldData }

func (*RequestWorldData) Code(codec.Coder) {}

// WorldFlagCount is the number of bits in WorldInfo's flag set.
const WorldFlagCount = 104

// WorldInfo describes the world the client is joining.
type WorldInfo struct {
	Time              int32
	DayInfo           uint8
	MoonPhase         uint8
	MaxTilesX         int16
	MaxTilesY         int16
	SpawnX            int16
	SpawnY            int16
	WorldSurface      int16
	RockLayer         int16
	WorldID           int32
	WorldName         string
	GameMode          uint8
	UniqueID          [16]byte
	GeneratorVersion  [2]int32
	MoonType          uint8
	Backgrounds       [13]uint8
	IceBackStyle      uint8
	JungleBackStyle   uint8
	HellBackStyle     uint8
	WindSpeed         float32
	CloudNumber       uint8
	Trees             [3]int32
	TreeStyles        [4]uint8
	CaveBacks         [3]int32
	CaveBackStyles    [4]uint8
	TreeTopStyles     [13]uint8
	Rain              float32
	Flags             [13]byte
	OreTiers          [7]int16
	InvasionType      int8
	LobbyID           uint64
	SandstormSeverity float32
}

func (WorldInfo) PacketID() PacketID { return PktWorldInfo }

// Flag reports bit i of the world flag set.
func (p *WorldInfo) Flag(i int) bool {
	return codec.Bits(p.Flags[:]).Has(i)
}

// SetFlag sets or clears bit i of the world flag set.
func (p *WorldInfo) SetFlag(i int, v bool) {
	codec.Bits(p.Flags[:]).Set(i, v)
}

func (p *WorldInfo) Code(c codec.Coder) {
	c.Int32(&p.Time)
	c.Uint8(&p.DayInfo)
	c.Uint8(&p.MoonPhase)
	c.Int16(&p.MaxTilesX)
	c.Int16(&p.MaxTilesY)
	c.Int16(&p.SpawnX)
	c.Int16(&p.SpawnY)
	c.Int16(&p.WorldSurface)
	c.Int16(&p.RockLayer)
	c.Int32(&p.WorldID)
	c.String(&p.WorldName)
	c.Uint8(&p.GameMode)
	c.Bytes(p.UniqueID[:])
	codec.Array(c, p.GeneratorVersion[:], c.Int32)
	c.Uint8(&p.MoonType)
	c.Bytes(p.Backgrounds[:])
	c.Uint8(&p.IceBackStyle)
	c.Uint8(&p.JungleBackStyle)
	c.Uint8(&p.HellBackStyle)
	c.Float32(&p.WindSpeed)
	c.Uint8(&p.CloudNumber)
	codec.Array(c, p.Trees[:], c.Int32)
	c.Bytes(p.TreeStyles[:])
	codec.Array(c, p.CaveBacks[:], c.Int32)
	c.Bytes(p.CaveBackStyles[:])
	c.Bytes(p.TreeTopStyles[:])
	c.Float32(&p.Rain)
	c.Bytes(p.Flags[:])
	codec.Array(c, p.OreTiers[:], c.Int16)
	c.Int8(&p.InvasionType)
	c.Uint64(&p.LobbyID)
	c.Float32(&p.SandstormSeverity)
}

type RequestTileData struct {
	SpawnX int32
	SpawnY int32
}

func (RequestTileData) PacketID() PacketID { return PktRequestTileData }

func (p *RequestTileData) Code(c codec.Coder) {
	c.Int32(&p.SpawnX)
	c.Int32(&p.SpawnY)
}

// StatusText drives the client's loading status bar.
type StatusText struct {
	Max   int32
	Text  NetText
	Flags uint8
}

func (StatusText) PacketID() PacketID { return PktStatusText }

func (p *StatusText) Code(c codec.Coder) {
	c.Int32(&p.Max)
	p.Text.Code(c)
	c.Uint8(&p.Flags)
}

// SendTileData carries a compressed tile section. Its inner layout is not
// modelled; Data holds the inflated bytes.
type SendTileData struct {
	Data []byte
}

func (SendTileData) PacketID() PacketID { return PktSendTileData }

func (p *SendTileData) Code(c codec.Coder) {
	c.Rest(&p.Data)
}

type SpawnPlayer struct {
	ClientID      uint8
	SpawnX        int16
	SpawnY        int16
	RespawnTimer  int32
	PvEDeathCount uint16
	PvPDeathCount uint16
	Context       uint8
}

func (SpawnPlayer) PacketID() PacketID { return PktSpawnPlayer }

func (p *SpawnPlayer) Code(c codec.Coder) {
	c.Uint8(&p.ClientID)
	c.Int16(&p.SpawnX)
	c.Int16(&p.SpawnY)
	c.Int32(&p.RespawnTimer)
	c.Uint16(&p.PvEDeathCount)
	c.Uint16(&p.PvPDeathCount)
	c.Uint8(&p.Context)
}

type PlayerHealth struct {
	ClientID uint8
	Current  uint16
	Max      uint16
}

func (PlayerHealth) PacketID() PacketID { return PktPlayerHealth }

func (p *PlayerHealth) Code(c codec.Coder) {
	c.Uint8(&p.ClientID)
	c.Uint16(&p.Current)
	c.Uint16(&p.Max)
}

type PlayerZones struct {
	ClientID   uint8
	ZoneFlags  uint32
	ZoneFlags2 uint8
}

func (PlayerZones) PacketID() PacketID { return PktPlayerZones }

func (p *PlayerZones) Code(c codec.Coder) {
	c.Uint8(&p.ClientID)
	c.Uint32(&p.ZoneFlags)
	c.Uint8(&p.ZoneFlags2)
}

// RequestPassword asks the client for the server password. It has no payload.
type RequestPassword struct{}

func (RequestPassword) PacketID() PacketID { return PktRequestPassword }

func (*RequestPassword) Code(codec.Coder) {}

type SendPassword struct {
	Password string
}

func (SendPassword) PacketID() PacketID { return PktSendPassword }

func (p *SendPassword) Code(c codec.Coder) {
	c.String(&p.Password)
}

type PlayerMana struct {
	ClientID uint8
	Current  uint16
	Max      uint16
}

func (PlayerMana) PacketID() PacketID { return PktPlayerMana }

func (p *PlayerMana) Code(c codec.Coder) {
	c.Uint8(&p.ClientID)
	c.Uint16(&p.Current)
	c.Uint16(&p.Max)
}

type InitialSpawn struct{}

func (InitialSpawn) PacketID() PacketID { return PktInitialSpawn }

func (*InitialSpawn) Code(codec.Coder) {}

type UpdatePlayerBuffs struct {
	ClientID uint8
	Buffs    [MaxBuffs]uint16
}

func (UpdatePlayerBuffs) PacketID() PacketID { return PktUpdatePlayerBuffs }

func (p *UpdatePlayerBuffs) Code(c codec.Coder) {
	c.Uint8(&p.ClientID)
	codec.Array(c, p.Buffs[:], c.Uint16)
}

type WorldEvil struct {
	Good  uint8
	Evil  uint8
	Blood uint8
}

func (WorldEvil) PacketID() PacketID { return PktWorldEvil }

func (p *WorldEvil) Code(c codec.Coder) {
	c.Uint8(&p.Good)
	c.Uint8(&p.Evil)
	c.Uint8(&p.Blood)
}

type PlayerUUID struct {
	UUID string
}

func (PlayerUUID) PacketID() PacketID { return PktPlayerUUID }

func (p *PlayerUUID) Code(c codec.Coder) {
	c.String(&p.UUID)
}

// NetModule is the outer record of a module frame: a module id followed by
// the module's own payload.
type NetModule struct {
	Module ModuleID
	Data   []byte
}

func (NetModule) PacketID() PacketID { return PktNetModule }

func (p *NetModule) Code(c codec.Coder) {
	id := uint16(p.Module)
	c.Uint16(&id)
	p.Module = ModuleID(id)
	c.Rest(&p.Data)
}

type NPCKillCount struct {
	NPCType uint16
	Count   uint32
}

func (NPCKillCount) PacketID() PacketID { return PktNPCKillCount }

func (p *NPCKillCount) Code(c codec.Coder) {
	c.Uint16(&p.NPCType)
	c.Uint32(&p.Count)
}

// TowerPowers reports the shield strength of the four celestial pillars.
type TowerPowers struct {
	Solar, Nebula, Vortex, Stardust uint16
}

func (TowerPowers) PacketID() PacketID { return PktTowerPowers }

func (p *TowerPowers) Code(c codec.Coder) {
	c.Uint16(&p.Solar)
	c.Uint16(&p.Nebula)
	c.Uint16(&p.Vortex)
	c.Uint16(&p.Stardust)
}

// DamagePlayer reports damage dealt to the player in slot ClientID.
type DamagePlayer struct {
	ClientID        uint8
	Reason          DeathReason
	Damage          int16
	HitDirection    uint8
	Flags           uint8
	CooldownCounter int8
}

func (DamagePlayer) PacketID() PacketID { return PktDamagePlayer }

func (p *DamagePlayer) Code(c codec.Coder) {
	c.Uint8(&p.ClientID)
	p.Reason.Code(c)
	c.Int16(&p.Damage)
	c.Uint8(&p.HitDirection)
	c.Uint8(&p.Flags)
	c.Int8(&p.CooldownCounter)
}

type ConnectionCompleted struct{}

func (ConnectionCompleted) PacketID() PacketID { return PktConnectionCompleted }

func (*ConnectionCompleted) Code(codec.Coder) {}

type MonsterTypes struct {
	Types [2][3]uint16
}

func (MonsterTypes) PacketID() PacketID { return PktMonsterTypes }

func (p *MonsterTypes) Code(c codec.Coder) {
	for i := range p.Types {
		codec.Array(c, p.Types[i][:], c.Uint16)
	}
}

type PlayerLoadout struct {
	ClientID      uint8
	Index         uint8
	HideAccessory uint16
}

func (PlayerLoadout) PacketID() PacketID { return PktPlayerLoadout }

func (p *PlayerLoadout) Code(c codec.Coder) {
	c.Uint8(&p.ClientID)
	c.Uint8(&p.Index)
	c.Uint16(&p.HideAccessory)
}
