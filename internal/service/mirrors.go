package service

import (
	"context"
	"slices"

	"github.com/mmcdole/reel/internal/domain"
)

var _ domain.MirrorObserver = (*Service)(nil)

// CheckMirrors re-probes every mirror. Progress reaches the view through
// OnMirrorStatus as each probe resolves.
func (s *Service) CheckMirrors(ctx context.Context) domain.MirrorStatus {
	if s.mirrors == nil {
		return domain.MirrorStatus{Done: true}
	}
	return s.mirrors.Probe(ctx)
}

// OnMirrorStatus implements domain.MirrorObserver. When the reachable set
// changes, cached picks are re-filtered and posters re-evaluated, since a
// poster's usability depends on which mirrors answer.
func (s *Service) OnMirrorStatus(status domain.MirrorStatus) {
	s.mu.Lock()
	changed := !slices.Equal(s.view.Mirrors.Available, status.Available)
	s.view.Mirrors = status
	s.mu.Unlock()

	if !changed {
		s.publish()
		return
	}

	picks := s.cachedPicks(status.Available)
	s.update(func(v *View) { v.Picks = picks })
	s.reevaluatePosters()
}
