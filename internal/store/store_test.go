package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	s := NewMappingStore(filepath.Join(t.TempDir(), "mappings.yaml"))
	require.NoError(t, s.Load())
	assert.Zero(t, s.Len())
}

func TestRecordLookupRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.yaml")

	s := NewMappingStore(path)
	require.NoError(t, s.Load())

	s.Record("WHOLEFDS SJO 10230", "Grocery")
	require.NoError(t, s.Save())

	reloaded := NewMappingStore(path)
	require.NoError(t, reloaded.Load())

	category, ok := reloaded.Lookup("wholefds sjo 10230")
	require.True(t, ok)
	assert.Equal(t, "Grocery", category)

	_, ok = reloaded.Lookup("NEVER SEEN")
	assert.False(t, ok)
}

func TestSaveSkipsWhenClean(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.yaml")

	s := NewMappingStore(path)
	require.NoError(t, s.Save())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	s.Record("MERCHANT", "Fun")
	require.NoError(t, s.Save())
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestRecordIgnoresEmptyValues(t *testing.T) {
	s := NewMappingStore(filepath.Join(t.TempDir(), "mappings.yaml"))
	s.Record("", "Fun")
	s.Record("MERCHANT", "")
	assert.Zero(t, s.Len())
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("[not a map"), 0o644))

	s := NewMappingStore(path)
	assert.Error(t, s.Load())
}
