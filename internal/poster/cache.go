package poster

import (
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/reel/internal/debounce"
)

// SaveDelay is the quiet period before poster cache changes are written.
const SaveDelay = 1500 * time.Millisecond

// Backend persists the positive poster entries.
type Backend interface {
	LoadPosterCache() map[string]string
	SavePosterCache(cache map[string]string) error
}

// Cache maps a normalized base name to a poster URL. An empty value is a
// negative entry: the key was looked up and nothing was found. Negative
// entries live only in memory.
type Cache struct {
	backend Backend
	logger  *slog.Logger
	saver   *debounce.Debouncer

	mu      sync.RWMutex
	entries map[string]string
}

// NewCache loads the persisted entries from backend, which may be nil.
func NewCache(backend Backend, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		backend: backend,
		logger:  logger,
		saver:   debounce.New(SaveDelay),
		entries: make(map[string]string),
	}
	if backend != nil {
		for k, v := range backend.LoadPosterCache() {
			if k = strings.TrimSpace(k); k != "" && strings.TrimSpace(v) != "" {
				c.entries[k] = v
			}
		}
	}
	return c
}

// Get returns the cached value for key and whether the key was looked up.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

// Put records value for key. An empty value records a negative entry.
func (c *Cache) Put(key, value string) {
	if key == "" {
		return
	}
	value = strings.TrimSpace(value)

	c.mu.Lock()
	old, existed := c.entries[key]
	c.entries[key] = value
	c.mu.Unlock()

	// Negative entries are never persisted. Writing one needs a save only
	// when it replaces a positive entry that is on disk.
	if (!existed || old != value) && (value != "" || old != "") {
		c.scheduleSave()
	}
}

// ClearNegatives forgets every negative entry so those keys are looked up again.
func (c *Cache) ClearNegatives() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, v := range c.entries {
		if v == "" {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Snapshot returns a copy of every entry, negatives included.
func (c *Cache) Snapshot() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.entries)
}

// Flush writes any pending change immediately.
func (c *Cache) Flush() {
	c.saver.Flush()
}

func (c *Cache) scheduleSave() {
	if c.backend == nil {
		return
	}
	c.saver.Trigger(c.save)
}

func (c *Cache) save() {
	positive := c.Snapshot()
	maps.DeleteFunc(positive, func(_, v string) bool { return v == "" })
	if err := c.backend.SavePosterCache(positive); err != nil {
		c.logger.Error("failed to save poster cache", "error", err)
	}
}
