package service

import (
	"slices"
	"time"

	"github.com/mmcdole/reel/internal/domain"
	"github.com/mmcdole/reel/internal/history"
	"github.com/mmcdole/reel/internal/recommend"
)

// Item is a search result or pick ready for display.
type Item struct {
	domain.MatchCandidate
	// Poster is what to render: a local image file when one is cached,
	// otherwise PosterLink.
	Poster string
}

// HistoryItem is a history entry ready for display.
type HistoryItem struct {
	domain.HistoryEntry
	Info   string // "12:04 / 1:58:10 | 2 hours ago"
	Poster string
}

// View is the aggregated state published to renderers. Slices are never
// mutated after publication.
type View struct {
	Status string

	CatalogReady    bool
	CatalogBusy     bool
	CatalogProgress string

	Mirrors domain.MirrorStatus

	Query       string
	Year        string
	Results     []Item
	Suggestions []string

	Picks        []Item
	PicksSource  recommend.Source
	PicksStatus  string
	PicksStale   bool
	PicksLoading bool

	History []HistoryItem
}

// Snapshot returns the current view.
func (s *Service) Snapshot() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// Subscribe returns a channel that receives the view after every change,
// starting with the current one. A slow subscriber only ever sees the newest
// view. The returned func unsubscribes and closes the channel.
func (s *Service) Subscribe() (<-chan View, func()) {
	ch := make(chan View, 1)

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.Snapshot()
	s.subMu.Unlock()

	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// update applies fn to the view and publishes the result.
func (s *Service) update(fn func(v *View)) {
	s.mu.Lock()
	fn(&s.view)
	s.mu.Unlock()
	s.publish()
}

func (s *Service) publish() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	v := s.Snapshot()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// setStatus shows a transient message that clears after statusTTL unless
// another message replaced it first.
func (s *Service) setStatus(msg string) {
	s.mu.Lock()
	s.statusGen++
	gen := s.statusGen
	s.view.Status = msg
	s.mu.Unlock()
	s.publish()

	if msg == "" {
		return
	}
	time.AfterFunc(s.statusTTL, func() {
		s.mu.Lock()
		if s.statusGen != gen || s.closed {
			s.mu.Unlock()
			return
		}
		s.view.Status = ""
		s.mu.Unlock()
		s.publish()
	})
}

func (s *Service) item(c domain.MatchCandidate) Item {
	return Item{MatchCandidate: c, Poster: s.posters.Display(c.Title, c.BaseName, c.PosterLink)}
}

func (s *Service) items(cands []domain.MatchCandidate) []Item {
	out := make([]Item, 0, len(cands))
	for _, c := range cands {
		out = append(out, s.item(c))
	}
	return out
}

func (s *Service) historyItems(entries []domain.HistoryEntry) []HistoryItem {
	now := s.now()
	out := make([]HistoryItem, 0, len(entries))
	for _, e := range entries {
		display := e.LocalPosterPath
		if display == "" {
			display = s.posters.Display(e.Name, e.BaseName, e.PosterLink)
		}
		out = append(out, HistoryItem{
			HistoryEntry: e,
			Info:         history.Describe(e, now),
			Poster:       display,
		})
	}
	return out
}

func (s *Service) refreshHistoryView() {
	items := s.historyItems(s.history.List())
	s.update(func(v *View) { v.History = items })
}

// cachedPicks returns the cached picks servable by mirrors with posters
// chosen from what is already known.
func (s *Service) cachedPicks(mirrors []string) []Item {
	if s.picks == nil {
		return nil
	}
	cands, _, ok := s.picks.Cached(mirrors)
	if !ok {
		return nil
	}
	for i := range cands {
		cands[i].PosterLink = s.posters.Choose(cands[i].PosterLink, cands[i].BaseName)
	}
	return s.items(cands)
}

// patchPosters replaces posters by link in a copy of items.
func (s *Service) patchPosters(items []Item, posters map[string]string) []Item {
	if len(posters) == 0 {
		return items
	}
	out := slices.Clone(items)
	for i := range out {
		if p, ok := posters[out[i].Link]; ok {
			out[i].PosterLink = p
			out[i] = s.item(out[i].MatchCandidate)
		}
	}
	return out
}

// staleness is reported separately so the view can say "refreshing".
func (s *Service) picksStale() bool {
	if s.picks == nil {
		return false
	}
	_, stale, ok := s.picks.Cached(nil)
	return ok && stale
}
