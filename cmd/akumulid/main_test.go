package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlagsVersion(t *testing.T) {
	f, err := parseFlags([]string{"--version"})
	require.NoError(t, err)
	assert.True(t, f.showVersion)
}

func TestParseFlagsCreateAllocate(t *testing.T) {
	f, err := parseFlags([]string{"--create", "--allocate", "--CI"})
	require.NoError(t, err)
	assert.True(t, f.create)
	assert.True(t, f.allocate)
	assert.True(t, f.ci)
}

func TestRunInitWritesDefaultConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	f, err := parseFlags([]string{"--init"})
	require.NoError(t, err)
	require.NoError(t, runInit(f))

	data, err := os.ReadFile(filepath.Join(home, ".akumulid"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "[HTTP]")
	assert.Contains(t, string(data), "[WAL]")
}

func TestRunInitWithDisableWALOmitsWALSection(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	f, err := parseFlags([]string{"--init", "--disable-wal"})
	require.NoError(t, err)
	require.NoError(t, runInit(f))

	data, err := os.ReadFile(filepath.Join(home, ".akumulid"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "[WAL]")
}

func TestRunCreateThenDeleteRoundtrip(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "akumulid.ini")
	dataPath := filepath.Join(dir, "data")
	require.NoError(t, os.WriteFile(configPath, []byte("[root]\npath="+dataPath+"\nnvolumes=0\nvolume_size=4GB\n"), 0o644))

	f, err := parseFlags([]string{"--config", configPath, "--create", "--CI"})
	require.NoError(t, err)
	require.NoError(t, runCreate(f))

	_, statErr := os.Stat(filepath.Join(dataPath, "db.akumuli"))
	require.NoError(t, statErr)

	df, err := parseFlags([]string{"--config", configPath, "--delete"})
	require.NoError(t, err)
	require.NoError(t, runDelete(df))

	_, statErr = os.Stat(dataPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunServerFailsWithoutDatabase(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "akumulid.ini")
	dataPath := filepath.Join(dir, "data")
	require.NoError(t, os.WriteFile(configPath, []byte("[root]\npath="+dataPath+"\n"), 0o644))

	f, err := parseFlags([]string{"--config", configPath})
	require.NoError(t, err)

	err = runServer(f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no database")
}
