package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/mmcdole/reel/internal/domain"
	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	bucketHistory = []byte("history")
	bucketPosters = []byte("posters")
	bucketMeta    = []byte("meta")
)

// Keys in the meta bucket
const (
	keyAiCache        = "ai_cache"
	keyCatalogVersion = "catalog_version"
)

// StateStore persists the client's mutable state in BoltDB: watch history,
// the poster cache, the AI recommendation cache and the catalog version.
// Each document loads independently; a missing or corrupt one degrades to
// its empty value.
type StateStore struct {
	db     *bolt.DB
	logger *slog.Logger

	// Memory-only mode (no persistence)
	mu  sync.RWMutex
	mem map[string]map[string][]byte
}

// NewStateStore opens (or creates) the state database at path.
// An empty path gives a memory-only store.
//
// Opening never fails. A database that cannot be read is moved aside to
// "<path>.corrupt-<unix>" and recreated; when the file is locked by another
// process or cannot be recreated, the store runs memory-only for the session.
func NewStateStore(path string, logger *slog.Logger) *StateStore {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return newMemoryStore(logger)
	}

	db, err := openBolt(path)
	if err == nil {
		return &StateStore{db: db, logger: logger}
	}
	if errors.Is(err, bolt.ErrTimeout) {
		logger.Warn("state database is locked, keeping state in memory", "path", path, "error", err)
		return newMemoryStore(logger)
	}

	aside := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
	logger.Warn("state database is unreadable, starting fresh", "path", path, "moved_to", aside, "error", err)
	if rerr := os.Rename(path, aside); rerr != nil && !os.IsNotExist(rerr) {
		logger.Error("failed to move state database aside", "path", path, "error", rerr)
		return newMemoryStore(logger)
	}

	db, err = openBolt(path)
	if err != nil {
		logger.Error("failed to recreate state database, keeping state in memory", "path", path, "error", err)
		return newMemoryStore(logger)
	}
	return &StateStore{db: db, logger: logger}
}

func newMemoryStore(logger *slog.Logger) *StateStore {
	return &StateStore{logger: logger, mem: make(map[string]map[string][]byte)}
}

func openBolt(path string) (*bolt.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketHistory, bucketPosters, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Persistent reports whether state is written to disk.
func (s *StateStore) Persistent() bool {
	return s.db != nil
}

func (s *StateStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// === History ===

// LoadHistory returns every stored entry. Unreadable entries are skipped.
func (s *StateStore) LoadHistory() []domain.HistoryEntry {
	var entries []domain.HistoryEntry
	s.each(bucketHistory, func(key string, data []byte) {
		var e domain.HistoryEntry
		if err := json.Unmarshal(data, &e); err != nil || e.Link == "" {
			s.logger.Warn("skipping unreadable history entry", "key", key, "error", err)
			return
		}
		entries = append(entries, e)
	})
	return entries
}

// SaveHistory replaces the stored history with entries.
func (s *StateStore) SaveHistory(entries []domain.HistoryEntry) error {
	docs := make(map[string][]byte, len(entries))
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		docs[e.Link] = data
	}
	return s.replace(bucketHistory, docs)
}

// === Poster cache ===

// LoadPosterCache returns the persisted positive poster entries.
func (s *StateStore) LoadPosterCache() map[string]string {
	out := make(map[string]string)
	s.each(bucketPosters, func(key string, data []byte) {
		if v := strings.TrimSpace(string(data)); v != "" {
			out[key] = v
		}
	})
	return out
}

// SavePosterCache replaces the persisted poster cache. Blank values are
// negative-cache sentinels that only live in memory and are not written.
func (s *StateStore) SavePosterCache(cache map[string]string) error {
	docs := make(map[string][]byte, len(cache))
	for k, v := range cache {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		docs[k] = []byte(v)
	}
	return s.replace(bucketPosters, docs)
}

// === AI cache ===

// LoadAiCache returns the persisted recommendation cache, or nil when absent,
// unreadable or empty.
func (s *StateStore) LoadAiCache() *domain.AiCache {
	data := s.get(bucketMeta, keyAiCache)
	if data == nil {
		return nil
	}
	var cache domain.AiCache
	if err := json.Unmarshal(data, &cache); err != nil {
		s.logger.Warn("discarding unreadable ai cache", "error", err)
		return nil
	}
	if len(cache.Items) == 0 {
		return nil
	}
	return &cache
}

// SaveAiCache stores cache. A nil or empty cache removes the stored one.
func (s *StateStore) SaveAiCache(cache *domain.AiCache) error {
	if cache == nil || len(cache.Items) == 0 {
		return s.del(bucketMeta, keyAiCache)
	}
	data, err := json.Marshal(cache)
	if err != nil {
		return err
	}
	return s.put(bucketMeta, keyAiCache, data)
}

// === Catalog version ===

// LocalCatalogVersion returns the version of the installed catalog, or "".
func (s *StateStore) LocalCatalogVersion() string {
	return strings.TrimSpace(string(s.get(bucketMeta, keyCatalogVersion)))
}

// SaveCatalogVersion records the version of the installed catalog.
func (s *StateStore) SaveCatalogVersion(version string) error {
	return s.put(bucketMeta, keyCatalogVersion, []byte(strings.TrimSpace(version)))
}

// === Generic helpers ===

func (s *StateStore) get(bucket []byte, key string) []byte {
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.mem[string(bucket)][key]
	}

	var data []byte
	s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	return data
}

func (s *StateStore) put(bucket []byte, key string, data []byte) error {
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.mem[string(bucket)] == nil {
			s.mem[string(bucket)] = make(map[string][]byte)
		}
		s.mem[string(bucket)][key] = data
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

func (s *StateStore) del(bucket []byte, key string) error {
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.mem[string(bucket)], key)
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(key))
	})
}

// replace swaps the whole bucket for docs in one transaction.
func (s *StateStore) replace(bucket []byte, docs map[string][]byte) error {
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.mem[string(bucket)] = docs
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucket); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		b, err := tx.CreateBucket(bucket)
		if err != nil {
			return err
		}
		for k, v := range docs {
			if err := b.Put([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *StateStore) each(bucket []byte, fn func(key string, data []byte)) {
	if s.db == nil {
		s.mu.RLock()
		docs := make(map[string][]byte, len(s.mem[string(bucket)]))
		for k, v := range s.mem[string(bucket)] {
			docs[k] = v
		}
		s.mu.RUnlock()
		for k, v := range docs {
			fn(k, v)
		}
		return
	}

	s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			data := make([]byte, len(v))
			copy(data, v)
			fn(string(k), data)
			return nil
		})
	})
}
