package protocol

import "github.com/lcx/mcgate/codec"

// PacketHandler handles one inbound packet. buf is positioned just after
// the opcode. A returned error is fatal for the connection.
type PacketHandler interface {
	HandlePacket(c *Client, buf *codec.Buffer) error
}

// HandlerFunc adapts a function to PacketHandler.
type HandlerFunc func(c *Client, buf *codec.Buffer) error

func (f HandlerFunc) HandlePacket(c *Client, buf *codec.Buffer) error {
	return f(c, buf)
}

// HandlerEntry pairs a handler with how it is dispatched.
type HandlerEntry struct {
	Mode    DispatchMode
	Name    string
	Handler PacketHandler
}

// Table maps (state, opcode) to a handler entry. The opcode is the index
// into the per-state slice, so opcodes past the end are invalid for that
// state. A Table never changes after construction and is shared by every
// client.
type Table struct {
	entries [stateCount][]HandlerEntry
}

// NewTable builds a table from per-state entry lists. The input is copied.
func NewTable(entries map[State][]HandlerEntry) *Table {
	t := &Table{}
	for state, list := range entries {
		if state >= stateCount {
			continue
		}
		t.entries[state] = append([]HandlerEntry(nil), list...)
	}
	return t
}

// Lookup returns the entry for opcode in state.
func (t *Table) Lookup(state State, op Opcode) (HandlerEntry, bool) {
	if state >= stateCount {
		return HandlerEntry{}, false
	}
	list := t.entries[state]
	if uint64(op) >= uint64(len(list)) {
		return HandlerEntry{}, false
	}
	return list[op], true
}

// Len returns the number of valid opcodes in state.
func (t *Table) Len(state State) int {
	if state >= stateCount {
		return 0
	}
	return len(t.entries[state])
}

var _playPacketNames = [...]string{
	OpKeepAlive:               "keep_alive",
	OpChatMessage:             "chat_message",
	OpUseEntity:               "use_entity",
	OpPlayerGround:            "player",
	OpPlayerPosition:          "player_position",
	OpPlayerLook:              "player_look",
	OpPlayerPositionLook:      "player_position_look",
	OpPlayerDigging:           "player_digging",
	OpPlayerBlockPlacement:    "player_block_placement",
	OpHeldItemChange:          "held_item_change",
	OpAnimation:               "animation",
	OpEntityAction:            "entity_action",
	OpSteerVehicle:            "steer_vehicle",
	OpCloseWindow:             "close_window",
	OpClickWindow:             "click_window",
	OpConfirmTransaction:      "confirm_transaction",
	OpCreativeInventoryAction: "creative_inventory_action",
	OpEnchantItem:             "enchant_item",
	OpUpdateSign:              "update_sign",
	OpPlayerAbilities:         "player_abilities",
	OpTabComplete:             "tab_complete",
	OpClientSettings:          "client_settings",
	OpClientStatus:            "client_status",
	OpPluginMessage:           "plugin_message",
	OpSpectate:                "spectate",
	OpResourcePackStatus:      "resource_pack_status",
}

// DefaultTable returns the protocol 47 table. Every play packet is routed
// to Unhandled until real handlers exist.
func DefaultTable() *Table {
	play := make([]HandlerEntry, len(_playPacketNames))
	for op, name := range _playPacketNames {
		play[op] = HandlerEntry{Mode: Instant, Name: name, Handler: HandlerFunc(Unhandled)}
	}

	return NewTable(map[State][]HandlerEntry{
		StateFresh: {
			OpHandshake: {Mode: Instant, Name: "handshake", Handler: HandlerFunc((*Client).handleHandshake)},
		},
		StateStatus: {
			OpStatusRequest: {Mode: Instant, Name: "status_request", Handler: HandlerFunc((*Client).handleStatusRequest)},
			OpStatusPing:    {Mode: Instant, Name: "status_ping", Handler: HandlerFunc((*Client).handleStatusPing)},
		},
		StateLogin: {
			OpLoginStart: {Mode: Instant, Name: "login_start", Handler: HandlerFunc((*Client).handleLoginStart)},
		},
		StatePlay: play,
	})
}
