package history

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAddAndRecent(t *testing.T) {
	store := openTemp(t)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Add(Entry{
			URL:         fmt.Sprintf("https://example.com/f%d", i),
			FilePath:    fmt.Sprintf("/tmp/f%d", i),
			Size:        int64(i * 1000),
			Queue:       "General",
			Category:    "Other",
			CompletedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	entries, err := store.Recent(3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	// Newest first.
	assert.Equal(t, "https://example.com/f4", entries[0].URL)
	assert.Equal(t, "https://example.com/f2", entries[2].URL)
	assert.EqualValues(t, 4000, entries[0].Size)
}

func TestRecentDefaultsLimit(t *testing.T) {
	store := openTemp(t)
	require.NoError(t, store.Add(Entry{URL: "u", FilePath: "p"}))
	entries, err := store.Recent(0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.False(t, entries[0].CompletedAt.IsZero())
}

func TestPrune(t *testing.T) {
	store := openTemp(t)
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.Add(Entry{URL: "old", FilePath: "p", CompletedAt: old}))
	require.NoError(t, store.Add(Entry{URL: "new", FilePath: "p"}))

	removed, err := store.Prune(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	entries, err := store.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].URL)
}
