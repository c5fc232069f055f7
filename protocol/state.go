package protocol

import "fmt"

// Version is the only protocol version the server speaks (Minecraft 1.8).
const Version = 47

// State selects which handler table inbound frames are dispatched against.
type State uint8

const (
	StateFresh State = iota
	StateStatus
	StateLogin
	StatePlay

	stateCount
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateStatus:
		return "status"
	case StateLogin:
		return "login"
	case StatePlay:
		return "play"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Opcode identifies a packet within one state.
type Opcode uint32

// fresh
const (
	OpHandshake Opcode = 0x00
)

// status
const (
	OpStatusRequest Opcode = 0x00
	OpStatusPing    Opcode = 0x01
)

// login
const (
	OpLoginStart Opcode = 0x00
)

// play, serverbound
const (
	OpKeepAlive Opcode = iota
	OpChatMessage
	OpUseEntity
	OpPlayerGround
	OpPlayerPosition
	OpPlayerLook
	OpPlayerPositionLook
	OpPlayerDigging
	OpPlayerBlockPlacement
	OpHeldItemChange
	OpAnimation
	OpEntityAction
	OpSteerVehicle
	OpCloseWindow
	OpClickWindow
	OpConfirmTransaction
	OpCreativeInventoryAction
	OpEnchantItem
	OpUpdateSign
	OpPlayerAbilities
	OpTabComplete
	OpClientSettings
	OpClientStatus
	OpPluginMessage
	OpSpectate
	OpResourcePackStatus
)

// Clientbound opcodes written by the handlers.
const (
	opStatusResponse Opcode = 0x00
	opStatusPong     Opcode = 0x01
	opLoginSuccess   Opcode = 0x02
	opJoinGame       Opcode = 0x01
)

// DispatchMode decides whether a frame runs on the reading goroutine or is
// queued for a later consumer.
type DispatchMode uint8

const (
	Instant DispatchMode = iota
	Deferred
)

func (m DispatchMode) String() string {
	if m == Deferred {
		return "deferred"
	}
	return "instant"
}
