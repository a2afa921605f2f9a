package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listing struct {
	IDs []string `json:"ids"`
}

func TestFileCacheRoundTrip(t *testing.T) {
	fc := NewFileCache[listing](t.TempDir(), 0)
	key := fc.Key("LANDSAT/LC09/C02/T1_TOA", "2024-08-01", 10)

	_, ok := fc.Get(key)
	assert.False(t, ok)

	require.NoError(t, fc.Set(key, listing{IDs: []string{"LC09_190031_20240811"}}))
	got, ok := fc.Get(key)
	require.True(t, ok)
	assert.Equal(t, []string{"LC09_190031_20240811"}, got.IDs)

	require.NoError(t, fc.Delete(key))
	_, ok = fc.Get(key)
	assert.False(t, ok)
	assert.NoError(t, fc.Delete(key))
}

func TestFileCacheKeyIsStable(t *testing.T) {
	fc := NewFileCache[listing](t.TempDir(), 0)
	assert.Equal(t, fc.Key("a", 1), fc.Key("a", 1))
	assert.NotEqual(t, fc.Key("a", 1), fc.Key("a", 2))
}

func TestFileCacheExpires(t *testing.T) {
	fc := NewFileCache[listing](t.TempDir(), time.Hour)
	now := time.Date(2024, 8, 11, 10, 0, 0, 0, time.UTC)
	fc.now = func() time.Time { return now }

	require.NoError(t, fc.Set("k", listing{IDs: []string{"x"}}))
	_, ok := fc.Get("k")
	assert.True(t, ok)

	now = now.Add(2 * time.Hour)
	_, ok = fc.Get("k")
	assert.False(t, ok)
}

func TestFileCacheRejectsTamperedEntries(t *testing.T) {
	dir := t.TempDir()
	fc := NewFileCache[listing](dir, 0)
	require.NoError(t, fc.Set("k", listing{IDs: []string{"x"}}))

	tampered := `{"data":{"ids":["y"]},"created_at":"2024-08-11T10:00:00Z","checksum":"0000"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "k.json"), []byte(tampered), 0600))
	_, ok := fc.Get("k")
	assert.False(t, ok)
}
