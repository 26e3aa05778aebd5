package igd

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "igd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
bind:
  - 192.168.1.20:0
  - 0.0.0.0:0
multicast_addr: 239.255.255.250:1900
attempts: 5
attempt_timeout: 250ms
dial_timeout: 2s
control_point: my-node
log_level: debug
description: my-node p2p
lease: 1h
`)
	fc, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 5, fc.Attempts)
	assert.Equal(t, 250*time.Millisecond, fc.AttemptTimeout)
	assert.Equal(t, time.Hour, fc.Lease)
	assert.Equal(t, "debug", fc.LogLevel)

	opts, err := fc.Options()
	require.NoError(t, err)
	cfg := newConfig(opts)
	assert.Equal(t, netip.MustParseAddrPort("239.255.255.250:1900"), cfg.MulticastAddr)
	assert.Equal(t, 5, cfg.Attempts)
	assert.Equal(t, 250*time.Millisecond, cfg.AttemptTimeout)
	assert.Equal(t, 2*time.Second, cfg.DialTimeout)
	assert.Equal(t, "my-node", cfg.ControlPoint)

	addrs, err := fc.BindAddrs()
	require.NoError(t, err)
	assert.Equal(t, []netip.AddrPort{
		netip.MustParseAddrPort("192.168.1.20:0"),
		netip.MustParseAddrPort("0.0.0.0:0"),
	}, addrs)
}

func TestLoadConfigFileErrors(t *testing.T) {
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfigFile(writeConfig(t, "attempts: [1, 2"))
	assert.Error(t, err)

	fc := &FileConfig{MulticastAddr: "239.255.255.250"}
	_, err = fc.Options()
	assert.Error(t, err)
}

func TestNewConfigDefaults(t *testing.T) {
	cfg := newConfig(nil)
	assert.Equal(t, DefaultConfig().MulticastAddr, cfg.MulticastAddr)
	assert.Equal(t, 3, cfg.Attempts)
	assert.Equal(t, time.Second, cfg.AttemptTimeout)
	assert.Equal(t, "go-igd", cfg.ControlPoint)
	assert.NotNil(t, cfg.Clock)
	assert.Nil(t, cfg.Metrics)

	cfg = newConfig([]Option{WithAttempts(0), WithClock(nil)})
	assert.Equal(t, 3, cfg.Attempts)
	assert.NotNil(t, cfg.Clock)
}

func TestParseBindAddrs(t *testing.T) {
	addrs, err := ParseBindAddrs(nil)
	require.NoError(t, err)
	assert.Equal(t, []netip.AddrPort{netip.MustParseAddrPort("0.0.0.0:0")}, addrs)

	addrs, err = ParseBindAddrs([]string{"[::1]:1900"})
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddrPort("[::1]:1900"), addrs[0])

	_, err = ParseBindAddrs([]string{"localhost:0"})
	assert.Error(t, err)
}
