package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obdcore.dev/pkg/protocoltype"
)

func writeProfile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.ini")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadVehicleProfileAppliesAllSections(t *testing.T) {
	path := writeProfile(t, `
[protocol]
preferred = ISO157654CAN11Bit500K
target_ecu = 0x7E0
enable_j1939 = false

[timeouts]
response_ms = 1500
extended_ms = 6000
max_retries = 5
retry_backoff_ms = 300
keep_alive_ms = 2500

[isotp]
stmin_us = 1000
block_size = 8
enable_padding = true
padding_byte = 0xAA
`)

	cfg, err := LoadVehicleProfile(path)
	require.NoError(t, err)

	assert.Equal(t, 1500*time.Millisecond, cfg.ResponseTimeout())
	assert.Equal(t, 6*time.Second, cfg.ExtendedTimeout())
	assert.Equal(t, 5, cfg.MaxRetries())
	assert.Equal(t, 300*time.Millisecond, cfg.RetryBackoff())
	assert.Equal(t, 2500*time.Millisecond, cfg.KeepAliveInterval())
	assert.Equal(t, time.Millisecond, cfg.ISOTPSTmin())
	assert.Equal(t, 8, cfg.ISOTPBlockSize())
	assert.True(t, cfg.PaddingEnabled())
	assert.EqualValues(t, 0xAA, cfg.PaddingByte())
	assert.False(t, cfg.J1939Enabled())

	pref, ok := cfg.PreferredProtocol()
	require.True(t, ok)
	assert.Equal(t, protocoltype.ISO157654CAN11Bit500K, pref)

	addr, ok := cfg.TargetECUOverride()
	require.True(t, ok)
	assert.EqualValues(t, 0x7E0, addr)
}

func TestLoadVehicleProfileRejectsUnknownProtocolName(t *testing.T) {
	path := writeProfile(t, "[protocol]\npreferred = NOT_A_REAL_PROTOCOL\n")
	_, err := LoadVehicleProfile(path)
	assert.Error(t, err)
}

func TestLoadVehicleProfileMissingFileErrors(t *testing.T) {
	_, err := LoadVehicleProfile(filepath.Join(t.TempDir(), "missing.ini"))
	assert.Error(t, err)
}
