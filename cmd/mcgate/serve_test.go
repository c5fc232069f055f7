package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcx/mcgate/config"
	mcnet "github.com/lcx/mcgate/net"
)

func writeConfig(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(body), 0o644))
}

func quietConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeConfig(t, dir, "logger", "consoleAppender: false\nfileAppender: false\n")
	writeConfig(t, dir, "tcp_transport", "addr: 127.0.0.1:0\nshutdownTimeoutSec: 1\n")
	writeConfig(t, dir, "admin", "enabled: true\naddr: 127.0.0.1:0\n")
	return dir
}

func TestLoadOptional_MissingFileKeepsDefaults(t *testing.T) {
	cm := config.NewConfigManager()
	cm.SetBasePath(t.TempDir())
	t.Cleanup(func() { _ = cm.Close() })

	cfg := mcnet.DefaultTCPTransportCfg()
	require.NoError(t, loadOptional(cm, cfg))
	assert.Equal(t, mcnet.DefaultAddr, cfg.Addr)
}

func TestLoadOptional_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "tcp_transport", "maxPacketSize: -1\n")

	cm := config.NewConfigManager()
	cm.SetBasePath(dir)
	t.Cleanup(func() { _ = cm.Close() })

	assert.Error(t, loadOptional(cm, mcnet.DefaultTCPTransportCfg()))
}

func TestRunServe_StartsAndStops(t *testing.T) {
	dir := quietConfigDir(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runServe(ctx, serveOptions{configDir: dir, env: "test", quiet: true})
	assert.NoError(t, err)
}

func TestRunServe_BadProtocolConfig(t *testing.T) {
	dir := quietConfigDir(t)
	writeConfig(t, dir, "protocol", "loginUUID: not-a-uuid\n")

	err := runServe(context.Background(), serveOptions{configDir: dir, env: "test", quiet: true})
	assert.Error(t, err)
}

func TestVersionCmd_Short(t *testing.T) {
	cmd := versionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--short"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, version+"\n", out.String())
}
