package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithNoFilePresentReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Address = "127.0.0.1:9999"
	cfg.Timeouts.CommandSeconds = 30

	require.NoError(t, cfg.Save(dir))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", loaded.Address)
	assert.Equal(t, 30, loaded.Timeouts.CommandSeconds)
}

func TestSaveWritesRestrictivePermissions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, DefaultConfig().Save(dir))

	info, err := os.Stat(filepath.Join(dir, ConfigFileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestTimeoutHelpersConvertSecondsToDuration(t *testing.T) {
	tc := TimeoutConfig{CommandSeconds: 5, InitializeSeconds: 7, ShutdownSeconds: 2, ConnectSeconds: 3}
	assert.Equal(t, 5e9, float64(tc.Command()))
	assert.Equal(t, 7e9, float64(tc.Initialize()))
	assert.Equal(t, 2e9, float64(tc.Shutdown()))
	assert.Equal(t, 3e9, float64(tc.Connect()))
}
