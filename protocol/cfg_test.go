package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettings(t *testing.T) {
	s, err := DefaultProtocolCfg().Compile()
	require.NoError(t, err)

	assert.Equal(t, _statusLiteral, s.StatusJSON())
	assert.Equal(t, "d99974de-50e1-4861-bb7a-60e0e59cf611", s.LoginUUID())
}

func TestCompile_NormalizesUUID(t *testing.T) {
	cfg := DefaultProtocolCfg()
	cfg.LoginUUID = "D99974DE-50E1-4861-BB7A-60E0E59CF611"

	s, err := cfg.Compile()
	require.NoError(t, err)
	assert.Equal(t, "d99974de-50e1-4861-bb7a-60e0e59cf611", s.LoginUUID())
}

func TestCompile_Rejects(t *testing.T) {
	badUUID := DefaultProtocolCfg()
	badUUID.LoginUUID = "not-a-uuid"
	_, err := badUUID.Compile()
	assert.Error(t, err)

	badJSON := DefaultProtocolCfg()
	badJSON.StatusJSON = `{"description":`
	_, err = badJSON.Compile()
	assert.Error(t, err)
}

func TestCompile_RawStatusOverride(t *testing.T) {
	cfg := DefaultProtocolCfg()
	cfg.StatusJSON = `{"description":{"text":"hello"}}`

	s, err := cfg.Compile()
	require.NoError(t, err)
	assert.Equal(t, cfg.StatusJSON, s.StatusJSON())
}

func TestFactory_ReloadAppliesToNewClients(t *testing.T) {
	f, err := NewFactory(nil, nil)
	require.NoError(t, err)

	before := f.NewClient(&fakeSender{}, nil)

	cfg := DefaultProtocolCfg()
	cfg.Status.Description = "Reloaded"
	require.NoError(t, f.OnConfigChanged("protocol", cfg, nil))
	require.NoError(t, f.OnConfigChanged("logger", nil, nil))

	after := f.NewClient(&fakeSender{}, nil)

	assert.Contains(t, before.Settings().StatusJSON(), "Bariumsulfate")
	assert.Contains(t, after.Settings().StatusJSON(), "Reloaded")

	broken := DefaultProtocolCfg()
	broken.LoginUUID = ""
	assert.Error(t, f.OnConfigChanged("protocol", broken, cfg))
	assert.Contains(t, f.Settings().StatusJSON(), "Reloaded")
}
