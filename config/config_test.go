package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadConfigOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"mode":"collateral","batch_size":32,"collateral":{"hidden":50}}`), 0o644))

	c, err := ReadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ModeCollateral, c.Mode)
	require.Equal(t, 32, c.BatchSize)
	require.Equal(t, 16, c.FracBits)
	require.Equal(t, 50, c.Collateral.Hidden)
	require.NoError(t, c.Validate())

	_, err = ReadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestOverrides(t *testing.T) {
	c := Default()
	c.ApplyOverrides(Overrides{Mode: ModeCompare, BatchSize: 5, DealerAddr: "127.0.0.1:7000", Verbose: true})
	require.Equal(t, ModeCompare, c.Mode)
	require.Equal(t, 5, c.BatchSize)
	require.Equal(t, "127.0.0.1:7000", c.DealerAddr)
	require.True(t, c.Verbose)
	require.Equal(t, 16, c.FracBits)
}

func TestValidate(t *testing.T) {
	c := Default()
	c.Mode = "nope"
	require.Error(t, c.Validate())

	c = Default()
	c.FracBits = 40
	require.Error(t, c.Validate())

	c = Default()
	c.Mode = ModeDealer
	require.Error(t, c.Validate())
	c.DealerAddr = ":7000"
	require.NoError(t, c.Validate())

	c = Default()
	c.Mode = ModeCollateral
	c.Epochs = 0
	require.Error(t, c.Validate())

	var nilConfig *Config
	require.Error(t, nilConfig.Validate())
}

func TestSampleConfig(t *testing.T) {
	c, err := ReadConfig("config.json")
	require.NoError(t, err)
	require.Equal(t, ModeCollateral, c.Mode)
	require.Equal(t, [2]int{10, 20}, c.Collateral.Channels)
	require.NoError(t, c.Validate())
}

func TestVerboseByDefault(t *testing.T) {
	c := Default()
	require.True(t, c.Verbose)
	require.False(t, c.Collateral.Secure)
	c.ApplyOverrides(Overrides{Quiet: true})
	require.False(t, c.Verbose)

	path := filepath.Join(t.TempDir(), "quiet.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"verbose":false,"collateral":{"secure":true}}`), 0o644))
	c, err := ReadConfig(path)
	require.NoError(t, err)
	require.False(t, c.Verbose)
	require.True(t, c.Collateral.Secure)
}
