package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mmcdole/reel/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func openStores(t *testing.T) map[string]*StateStore {
	t.Helper()
	disk := NewStateStore(filepath.Join(t.TempDir(), "state", "state.db"), nil)
	require.True(t, disk.Persistent())
	t.Cleanup(func() { disk.Close() })

	mem := NewStateStore("", nil)
	require.False(t, mem.Persistent())

	return map[string]*StateStore{"bolt": disk, "memory": mem}
}

func TestHistoryRoundTrip(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			assert.Empty(t, s.LoadHistory())

			idx := 2
			entries := []domain.HistoryEntry{
				{Link: "http://m/a.mkv", Name: "A", Position: 30, Duration: 600, LastPlayedTs: 100},
				{Link: "http://m/b.mkv", Name: "B", LastPlayedTs: 200, TrackSelection: domain.TrackSelection{AudioTrackIndex: &idx, SubtitleEnabled: true}},
			}
			require.NoError(t, s.SaveHistory(entries))
			assert.ElementsMatch(t, entries, s.LoadHistory())

			require.NoError(t, s.SaveHistory(entries[:1]))
			assert.Equal(t, entries[:1], s.LoadHistory())
		})
	}
}

func TestPosterCacheDropsBlankValues(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.SavePosterCache(map[string]string{
				"iron man": "https://m.media-amazon.com/iron.jpg",
				"obscure":  "",
				"":         "https://x/y.jpg",
			}))
			assert.Equal(t, map[string]string{"iron man": "https://m.media-amazon.com/iron.jpg"}, s.LoadPosterCache())
		})
	}
}

func TestAiCacheNeverStoresEmpty(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			assert.Nil(t, s.LoadAiCache())

			cache := domain.AiCache{Timestamp: 1700000000000, Items: []domain.AiCacheItem{{Title: "Heat", Link: "http://m/heat.mkv", BaseName: "Heat"}}}
			require.NoError(t, s.SaveAiCache(&cache))
			got := s.LoadAiCache()
			require.NotNil(t, got)
			assert.Equal(t, cache, *got)

			require.NoError(t, s.SaveAiCache(&domain.AiCache{Timestamp: 1}))
			assert.Nil(t, s.LoadAiCache())
		})
	}
}

func TestCatalogVersion(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			assert.Empty(t, s.LocalCatalogVersion())
			require.NoError(t, s.SaveCatalogVersion(" 2024.06.01\n"))
			assert.Equal(t, "2024.06.01", s.LocalCatalogVersion())
		})
	}
}

func TestCorruptDocumentsDegradeToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	s := NewStateStore(path, nil)

	require.NoError(t, s.SaveHistory([]domain.HistoryEntry{{Link: "http://m/a.mkv", Name: "A"}}))
	require.NoError(t, s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketHistory).Put([]byte("http://m/broken"), []byte("{not json")); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put([]byte(keyAiCache), []byte("[]"))
	}))
	require.NoError(t, s.Close())

	s = NewStateStore(path, nil)
	require.True(t, s.Persistent())
	defer s.Close()

	history := s.LoadHistory()
	require.Len(t, history, 1)
	assert.Equal(t, "A", history[0].Name)
	assert.Nil(t, s.LoadAiCache())
}

func TestUnreadableDatabaseIsMovedAside(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.db")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a bolt database, just garbage bytes"), 0600))

	s := NewStateStore(path, nil)
	defer s.Close()

	require.True(t, s.Persistent())
	assert.Empty(t, s.LoadHistory())
	require.NoError(t, s.SaveCatalogVersion("v2"))
	assert.Equal(t, "v2", s.LocalCatalogVersion())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var moved []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "state.db.corrupt-") {
			moved = append(moved, e.Name())
		}
	}
	assert.Len(t, moved, 1)
}

func TestLockedDatabaseFallsBackToMemory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	first := NewStateStore(path, nil)
	require.True(t, first.Persistent())
	defer first.Close()

	second := NewStateStore(path, nil)
	assert.False(t, second.Persistent())
	require.NoError(t, second.SaveCatalogVersion("v3"))
	assert.Equal(t, "v3", second.LocalCatalogVersion())
}
