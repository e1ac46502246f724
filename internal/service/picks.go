package service

// RefreshPicks asks the recommendation engine for new picks in the
// background. A newer call supersedes one still in flight; only the latest
// outcome reaches the view. Until it lands the previous picks stay visible.
func (s *Service) RefreshPicks() {
	if s.picks == nil {
		return
	}
	ctx, token := s.refresh.Begin(s.ctx)
	mirrors := s.available()
	entries := s.history.List()

	s.update(func(v *View) { v.PicksLoading = true })
	started := s.goBackground(func() {
		defer s.refresh.End(token)

		out := s.picks.Refresh(ctx, mirrors, entries)
		if ctx.Err() != nil || !s.refresh.IsCurrent(token) {
			s.logger.Debug("picks refresh superseded", "request_id", out.RequestID)
			return
		}

		cands := out.Items
		for i := range cands {
			cands[i].PosterLink = s.posters.Choose(cands[i].PosterLink, cands[i].BaseName)
		}
		items := s.items(cands)
		s.update(func(v *View) {
			v.PicksLoading = false
			v.PicksStatus = out.Status
			if len(items) > 0 {
				v.PicksSource = out.Source
				v.PicksStale = false
				v.Picks = items
			}
		})
		s.logger.Info("picks refreshed", "request_id", out.RequestID, "source", string(out.Source), "count", len(out.Items), "status", out.Status)

		if len(out.Items) > 0 {
			s.reevaluatePosters()
		}
	})
	if !started {
		s.refresh.End(token)
	}
}

// Picks returns the picks currently shown.
func (s *Service) Picks() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view.Picks
}

// ClearPicks drops the cached picks.
func (s *Service) ClearPicks() {
	if s.picks != nil {
		s.picks.Clear()
	}
	s.update(func(v *View) {
		v.Picks = nil
		v.PicksSource = ""
		v.PicksStale = false
	})
}
