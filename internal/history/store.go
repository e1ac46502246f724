// Package history keeps the watch history: one entry per playback link,
// ordered by recency, bounded in size, and persisted with a trailing debounce.
package history

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/reel/internal/debounce"
	"github.com/mmcdole/reel/internal/domain"
	"github.com/mmcdole/reel/internal/search"
	"github.com/sahilm/fuzzy"
)

const (
	// MaxEntries bounds the history; older entries are evicted.
	MaxEntries = 100

	// SaveDelay is the quiet period before a burst of updates is written.
	SaveDelay = 1500 * time.Millisecond
)

// Backend persists the history list.
type Backend interface {
	LoadHistory() []domain.HistoryEntry
	SaveHistory(entries []domain.HistoryEntry) error
}

type record struct {
	entry domain.HistoryEntry
	seq   uint64 // breaks LastPlayedTs ties within the same second
}

// Store is the in-memory history index. It is the source of truth for
// display; the backend may lag it by up to SaveDelay.
type Store struct {
	backend Backend
	logger  *slog.Logger
	saver   *debounce.Debouncer
	now     func() time.Time

	mu      sync.RWMutex
	records map[string]*record
	seq     uint64
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithSaveDelay overrides the persistence debounce window.
func WithSaveDelay(d time.Duration) Option {
	return func(s *Store) { s.saver = debounce.New(d) }
}

// New loads the persisted history from backend.
func New(backend Backend, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		backend: backend,
		logger:  logger,
		saver:   debounce.New(SaveDelay),
		now:     time.Now,
		records: make(map[string]*record),
	}
	for _, opt := range opts {
		opt(s)
	}

	if backend != nil {
		loaded := backend.LoadHistory()
		sort.SliceStable(loaded, func(i, j int) bool {
			return loaded[i].LastPlayedTs > loaded[j].LastPlayedTs
		})
		// Oldest first so newer entries get higher sequence numbers.
		for i := len(loaded) - 1; i >= 0; i-- {
			e := loaded[i]
			if e.Link == "" {
				continue
			}
			s.seq++
			s.records[e.Link] = &record{entry: e, seq: s.seq}
		}
		s.evictLocked()
	}
	return s
}

// RecordPlayback notes that link was opened.
func (s *Store) RecordPlayback(link, title, posterLink, baseName string) (domain.HistoryEntry, bool) {
	return s.upsert(link, title, baseName, func(e *domain.HistoryEntry) {
		if p := strings.TrimSpace(posterLink); p != "" {
			e.PosterLink = p
		}
	})
}

// RecordProgress stores the playback position. Inputs are milliseconds.
func (s *Store) RecordProgress(link, title string, positionMs, durationMs int64) (domain.HistoryEntry, bool) {
	return s.upsert(link, title, "", func(e *domain.HistoryEntry) {
		e.Position = max(0, positionMs/1000)
		e.Duration = max(0, durationMs/1000)
	})
}

// RecordTrackSelection stores the audio and subtitle choice for link.
func (s *Store) RecordTrackSelection(link, title string, sel domain.TrackSelection) (domain.HistoryEntry, bool) {
	return s.upsert(link, title, "", func(e *domain.HistoryEntry) {
		e.TrackSelection = sel
	})
}

// AttachPoster fills in poster information without touching recency.
func (s *Store) AttachPoster(link, posterLink, localPath string) bool {
	s.mu.Lock()
	r, ok := s.records[link]
	if !ok {
		s.mu.Unlock()
		return false
	}
	changed := false
	if p := strings.TrimSpace(posterLink); p != "" && p != r.entry.PosterLink {
		r.entry.PosterLink = p
		changed = true
	}
	if p := strings.TrimSpace(localPath); p != "" && p != r.entry.LocalPosterPath {
		r.entry.LocalPosterPath = p
		changed = true
	}
	s.mu.Unlock()

	if changed {
		s.scheduleSave()
	}
	return changed
}

func (s *Store) upsert(link, title, baseName string, mutate func(*domain.HistoryEntry)) (domain.HistoryEntry, bool) {
	if strings.TrimSpace(link) == "" {
		return domain.HistoryEntry{}, false
	}
	title = strings.TrimSpace(title)

	s.mu.Lock()
	r, ok := s.records[link]
	if !ok {
		name := title
		if name == "" {
			name = link
		}
		r = &record{entry: domain.HistoryEntry{Link: link, Name: name}}
		s.records[link] = r
	}
	if title != "" {
		r.entry.Name = title
	}
	if r.entry.BaseName == "" {
		if b := strings.TrimSpace(baseName); b != "" {
			r.entry.BaseName = b
		} else if r.entry.Name != link {
			// A name that fell back to the link says nothing about the movie.
			r.entry.BaseName = search.CleanBaseName(r.entry.Name)
		}
	}
	mutate(&r.entry)
	r.entry.LastPlayedTs = s.now().Unix()
	s.seq++
	r.seq = s.seq
	s.evictLocked()
	entry := r.entry
	s.mu.Unlock()

	s.scheduleSave()
	return entry, true
}

// Remove deletes the entry for link.
func (s *Store) Remove(link string) bool {
	s.mu.Lock()
	_, ok := s.records[link]
	delete(s.records, link)
	s.mu.Unlock()

	if ok {
		s.scheduleSave()
	}
	return ok
}

// Clear deletes every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	s.records = make(map[string]*record)
	s.mu.Unlock()
	s.scheduleSave()
}

// Get returns the entry for link.
func (s *Store) Get(link string) (domain.HistoryEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[link]
	if !ok {
		return domain.HistoryEntry{}, false
	}
	return r.entry, true
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// List returns the entries, most recently played first.
func (s *Store) List() []domain.HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked()
}

func (s *Store) listLocked() []domain.HistoryEntry {
	records := make([]*record, 0, len(s.records))
	for _, r := range s.records {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].entry.LastPlayedTs != records[j].entry.LastPlayedTs {
			return records[i].entry.LastPlayedTs > records[j].entry.LastPlayedTs
		}
		return records[i].seq > records[j].seq
	})
	if len(records) > MaxEntries {
		records = records[:MaxEntries]
	}

	out := make([]domain.HistoryEntry, len(records))
	for i, r := range records {
		out[i] = r.entry
	}
	return out
}

func (s *Store) evictLocked() {
	if len(s.records) <= MaxEntries {
		return
	}
	keep := s.listLocked()
	kept := make(map[string]*record, len(keep))
	for _, e := range keep {
		kept[e.Link] = s.records[e.Link]
	}
	s.records = kept
}

// Titles returns up to n display names, most recent first.
func (s *Store) Titles(n int) []string {
	entries := s.List()
	titles := make([]string, 0, min(n, len(entries)))
	for _, e := range entries {
		if len(titles) == n {
			break
		}
		if name := strings.TrimSpace(e.Name); name != "" {
			titles = append(titles, name)
		}
	}
	return titles
}

// entrySource adapts entries for fuzzy matching on their names.
type entrySource []domain.HistoryEntry

func (e entrySource) String(i int) string { return e[i].Name }
func (e entrySource) Len() int            { return len(e) }

// Filter returns the entries whose name fuzzily matches query, best match
// first. A blank query returns the whole list.
func (s *Store) Filter(query string) []domain.HistoryEntry {
	entries := s.List()
	query = strings.TrimSpace(query)
	if query == "" {
		return entries
	}

	matches := fuzzy.FindFrom(query, entrySource(entries))
	out := make([]domain.HistoryEntry, 0, len(matches))
	for _, m := range matches {
		out = append(out, entries[m.Index])
	}
	return out
}

func (s *Store) scheduleSave() {
	if s.backend == nil {
		return
	}
	s.saver.Trigger(s.save)
}

func (s *Store) save() {
	entries := s.List()
	if err := s.backend.SaveHistory(entries); err != nil {
		s.logger.Error("failed to save history", "error", err)
		return
	}
	s.logger.Debug("history saved", "count", len(entries))
}

// Flush writes any pending change immediately.
func (s *Store) Flush() {
	s.saver.Flush()
}
