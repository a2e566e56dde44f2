package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveConfigPath(t *testing.T) {
	tests := []struct {
		name     string
		flag     string
		envValue string
		want     string
	}{
		{"flag takes precedence", "/path/from/flag", "/path/from/env", "/path/from/flag"},
		{"env when no flag", "", "/path/from/env", "/path/from/env"},
		{"empty when neither", "", "", ""},
		{"whitespace flag", "  ", "/path/from/env", "/path/from/env"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AKUMULID_CONFIG", tt.envValue)
			got := ResolveConfigPath(tt.flag)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8181, cfg.HTTP.Port)
	assert.Equal(t, 8282, cfg.TCP.Port)
	assert.Equal(t, 8383, cfg.UDP.Port)
	assert.Equal(t, 4242, cfg.OpenTSDB.Port)
	assert.EqualValues(t, 4<<30, cfg.VolumeSize)
	assert.Equal(t, 4, cfg.NVolumes)
}

func TestConfigRoundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "akumulid.ini")
	require.NoError(t, os.WriteFile(path, []byte(DefaultINI(false)), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8181, cfg.HTTP.Port)
	assert.Equal(t, 8282, cfg.TCP.Port)
	assert.Equal(t, 8383, cfg.UDP.Port)
	assert.Equal(t, 4242, cfg.OpenTSDB.Port)
	assert.EqualValues(t, 4<<30, cfg.VolumeSize)
	assert.Equal(t, 4, cfg.NVolumes)
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"1024", 1024},
		{"4GB", 4 << 30},
		{"4gb", 4 << 30},
		{"512MB", 512 << 20},
		{"1KB", 1 << 10},
		{"", 0},
	}
	for _, tt := range tests {
		got, err := parseSize(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseSizeInvalid(t *testing.T) {
	_, err := parseSize("not-a-size")
	assert.Error(t, err)
}

func TestWALDisabledWhenNVolumesOutOfRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "akumulid.ini")
	ini := "[WAL]\nnvolumes=1\nvolume_size=1MB\n"
	require.NoError(t, os.WriteFile(path, []byte(ini), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.WAL.Disabled)
	assert.NotEmpty(t, cfg.WAL.DisabledReason)
}

func TestWALDisabledWhenPathMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "akumulid.ini")
	ini := "[WAL]\nnvolumes=4\nvolume_size=1MB\npath=/nonexistent/path/xyz\n"
	require.NoError(t, os.WriteFile(path, []byte(ini), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.WAL.Disabled)
}

func TestWALEnabledWithValidSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "akumulid.ini")
	ini := "[WAL]\nnvolumes=4\nvolume_size=1MB\npath=" + dir + "\n"
	require.NoError(t, os.WriteFile(path, []byte(ini), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.WAL.Disabled)
}

func TestWALDefaultIsDisabled(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.WAL.NVolumes)
	assert.False(t, cfg.WAL.Disabled)
}

func TestStripWALSectionRemovesOnlyWAL(t *testing.T) {
	ini := DefaultINI(false)
	require.Contains(t, ini, "[WAL]")

	stripped := StripWALSection(ini)
	assert.NotContains(t, stripped, "[WAL]")
	assert.Contains(t, stripped, "[root]")
	assert.Contains(t, stripped, "[HTTP]")
}
