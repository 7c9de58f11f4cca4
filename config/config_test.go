package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithNoConfigFile(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8, c.WindowSize)
	assert.Equal(t, 3, c.MaxNumOfRetries)
	assert.True(t, c.SeedEnabled)
}

func TestLoadReadsYAMLConfigFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "ntorrent-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString("WindowSize: 32\nSeedEnabled: false\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	c, err := Load(f.Name())
	require.NoError(t, err)
	assert.Equal(t, 32, c.WindowSize)
	assert.False(t, c.SeedEnabled)
}

func TestManagerConvertsFieldsVerbatim(t *testing.T) {
	c := &Config{AppdataPath: "/a", DataPath: "/d", WindowSize: 4, MaxNumOfRetries: 2, SortingInterval: 5, LifetimeSeconds: 1.5, SeedEnabled: true, AliveProbeSeconds: 15}
	mc := c.Manager()
	assert.Equal(t, "/a", mc.AppdataPath)
	assert.Equal(t, "/d", mc.DataPath)
	assert.Equal(t, 4, mc.WindowSize)
	assert.Equal(t, 2, mc.MaxNumOfRetries)
	assert.Equal(t, 5, mc.SortingInterval)
	assert.Equal(t, 1.5, mc.LifetimeSeconds)
	assert.True(t, mc.SeedEnabled)
	assert.Equal(t, 15.0, mc.AliveProbeSeconds)
}
