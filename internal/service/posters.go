package service

import (
	"context"
	"sync"

	"github.com/mmcdole/reel/internal/domain"
	"github.com/mmcdole/reel/internal/poster"
	"github.com/sourcegraph/conc/pool"
)

const posterWorkers = 4

// reevaluatePosters resolves posters for every shown item whose poster is
// missing or no longer usable. A newer pass supersedes an older one.
func (s *Service) reevaluatePosters() {
	ctx, token := s.posterRefresh.Begin(s.ctx)
	started := s.goBackground(func() {
		defer s.posterRefresh.End(token)
		s.resolvePosters(ctx)
	})
	if !started {
		s.posterRefresh.End(token)
	}
}

func (s *Service) resolvePosters(ctx context.Context) {
	s.mu.RLock()
	shown := make([]domain.MatchCandidate, 0, len(s.view.Results)+len(s.view.Picks))
	for _, it := range s.view.Results {
		shown = append(shown, it.MatchCandidate)
	}
	for _, it := range s.view.Picks {
		shown = append(shown, it.MatchCandidate)
	}
	s.mu.RUnlock()

	var mu sync.Mutex
	found := make(map[string]string)
	p := pool.New().WithMaxGoroutines(posterWorkers)
	for _, c := range shown {
		if !s.posters.ShouldReplace(c.PosterLink, c.BaseName) {
			continue
		}
		p.Go(func() {
			if ctx.Err() != nil {
				return
			}
			resolved := s.posters.Resolve(ctx, c.Title, c.BaseName, c.PosterLink)
			if resolved == "" || resolved == c.PosterLink {
				return
			}
			mu.Lock()
			found[c.Link] = resolved
			mu.Unlock()
		})
	}

	historyChanged := false
	for _, e := range s.history.List() {
		if ctx.Err() != nil {
			break
		}
		if !s.posters.ShouldReplace(e.PosterLink, e.BaseName) {
			continue
		}
		resolved := s.posters.Resolve(ctx, e.Name, e.BaseName, e.PosterLink)
		if resolved != "" && s.history.AttachPoster(e.Link, resolved, "") {
			historyChanged = true
		}
	}
	p.Wait()

	if ctx.Err() != nil {
		return
	}
	if len(found) > 0 {
		s.update(func(v *View) {
			v.Results = s.patchPosters(v.Results, found)
			v.Picks = s.patchPosters(v.Picks, found)
		})
	}
	if historyChanged {
		s.refreshHistoryView()
	}
}

// RefreshPosters forgets "no poster" answers and resolves posters again.
func (s *Service) RefreshPosters() int {
	cleared := s.posters.RefreshNegatives()
	s.logger.Info("poster negatives cleared", "count", cleared)
	s.setStatus("Refreshing posters...")
	s.reevaluatePosters()
	return cleared
}

// savePosterFile downloads the poster for a history entry so it can be shown
// without the network, and records the local path.
func (s *Service) savePosterFile(ctx context.Context, entry domain.HistoryEntry) {
	if s.files == nil || entry.LocalPosterPath != "" {
		return
	}
	link := entry.PosterLink
	if !s.posters.IsExternalPoster(link) && !s.posters.IsPosterServerAvailable(link) {
		link = s.posters.Resolve(ctx, entry.Name, entry.BaseName, link)
	}
	if link == "" {
		return
	}
	path, err := s.files.Download(ctx, link, poster.Key(entry.Name, entry.BaseName))
	if err != nil {
		s.logger.Debug("poster file not saved", "title", entry.Name, "error", err)
		return
	}
	if s.history.AttachPoster(entry.Link, link, path) {
		s.refreshHistoryView()
	}
}
