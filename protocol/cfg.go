package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/lcx/mcgate/codec"
)

// StatusPlayers is the "players" object of the status response.
type StatusPlayers struct {
	Max    int `mapstructure:"max" json:"max"`
	Online int `mapstructure:"online" json:"online"`
}

// StatusVersion is the "version" object of the status response.
type StatusVersion struct {
	Name     string `mapstructure:"name" json:"name"`
	Protocol int    `mapstructure:"protocol" json:"protocol"`
}

// StatusCfg is serialized as the status response. Field order matters: the
// encoded form is sent to clients byte for byte.
type StatusCfg struct {
	Description string        `mapstructure:"description" json:"description"`
	Players     StatusPlayers `mapstructure:"players" json:"players"`
	Version     StatusVersion `mapstructure:"version" json:"version"`
}

// JoinGameCfg holds the fixed fields of the join game packet.
type JoinGameCfg struct {
	EntityID         int32  `mapstructure:"entityID"`
	GameMode         uint8  `mapstructure:"gameMode"`
	Dimension        int8   `mapstructure:"dimension"`
	Difficulty       uint8  `mapstructure:"difficulty"`
	MaxPlayers       uint8  `mapstructure:"maxPlayers"`
	LevelType        string `mapstructure:"levelType"`
	ReducedDebugInfo bool   `mapstructure:"reducedDebugInfo"`
}

// ProtocolCfg is loaded from protocol.yaml.
type ProtocolCfg struct {
	Status StatusCfg `mapstructure:"status"`

	// StatusJSON, when set, is sent verbatim instead of the encoded Status.
	StatusJSON string `mapstructure:"statusJSON"`

	// LoginUUID is the UUID every player is logged in as.
	LoginUUID string `mapstructure:"loginUUID"`

	JoinGame JoinGameCfg `mapstructure:"joinGame"`
}

func (cfg *ProtocolCfg) GetName() string {
	return "protocol"
}

func (cfg *ProtocolCfg) Validate() error {
	if cfg.StatusJSON != "" && !json.Valid([]byte(cfg.StatusJSON)) {
		return fmt.Errorf("statusJSON is not valid JSON")
	}
	if _, err := uuid.Parse(cfg.LoginUUID); err != nil {
		return fmt.Errorf("loginUUID: %w", err)
	}
	if len(cfg.JoinGame.LevelType) > codec.MaxStringLength {
		return fmt.Errorf("joinGame.levelType longer than %d bytes", codec.MaxStringLength)
	}
	return nil
}

// DefaultProtocolCfg returns the built-in protocol settings.
func DefaultProtocolCfg() *ProtocolCfg {
	return &ProtocolCfg{
		Status: StatusCfg{
			Description: "Bariumsulfate",
			Players:     StatusPlayers{Max: 20, Online: 0},
			Version:     StatusVersion{Name: "1.8", Protocol: Version},
		},
		LoginUUID: "d99974de-50e1-4861-bb7a-60e0e59cf611",
		JoinGame: JoinGameCfg{
			MaxPlayers:       10,
			LevelType:        "flat",
			ReducedDebugInfo: true,
		},
	}
}

// Settings is the compiled, read-only form of ProtocolCfg shared by clients.
type Settings struct {
	statusJSON string
	loginUUID  string
	joinGame   []byte
}

// Compile validates cfg and precomputes the constant reply payloads.
func (cfg *ProtocolCfg) Compile() (*Settings, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	statusJSON := cfg.StatusJSON
	if statusJSON == "" {
		raw, err := json.Marshal(&cfg.Status)
		if err != nil {
			return nil, fmt.Errorf("encode status: %w", err)
		}
		statusJSON = string(raw)
	}

	id, _ := uuid.Parse(cfg.LoginUUID)

	jg := cfg.JoinGame
	buf := codec.NewBuffer()
	buf.WriteVarUint(uint32(opJoinGame))
	buf.WriteInt32(jg.EntityID)
	buf.WriteUint8(jg.GameMode)
	buf.WriteInt8(jg.Dimension)
	buf.WriteUint8(jg.Difficulty)
	buf.WriteUint8(jg.MaxPlayers)
	buf.WriteString(jg.LevelType)
	buf.WriteBool(jg.ReducedDebugInfo)

	return &Settings{
		statusJSON: statusJSON,
		loginUUID:  id.String(),
		joinGame:   buf.Bytes(),
	}, nil
}

// StatusJSON returns the status response body.
func (s *Settings) StatusJSON() string { return s.statusJSON }

// LoginUUID returns the canonical form of the login UUID.
func (s *Settings) LoginUUID() string { return s.loginUUID }

// MustDefaultSettings compiles DefaultProtocolCfg.
func MustDefaultSettings() *Settings {
	s, err := DefaultProtocolCfg().Compile()
	if err != nil {
		panic(err)
	}
	return s
}
