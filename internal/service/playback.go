package service

import (
	"errors"
	"strings"
	"time"

	"github.com/mmcdole/reel/internal/domain"
)

// PlayRequest is what the playback engine needs to start a title.
type PlayRequest struct {
	Link   string
	Title  string
	Start  time.Duration // resume position, zero to play from the start
	Tracks domain.TrackSelection
}

// Open records that link is being played and returns the start request.
// A history entry with a known position resumes there with its stored
// audio and subtitle selection.
func (s *Service) Open(link, title, posterLink, baseName string) (PlayRequest, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return PlayRequest{}, errors.New("empty link")
	}

	req := PlayRequest{Link: link, Title: title}
	if prev, ok := s.history.Get(link); ok {
		if prev.CanResume() {
			req.Start = time.Duration(prev.Position) * time.Second
		}
		req.Tracks = prev.TrackSelection
		if strings.TrimSpace(title) == "" {
			req.Title = prev.Name
		}
	}

	entry, _ := s.history.RecordPlayback(link, title, posterLink, baseName)
	s.refreshHistoryView()
	s.goBackground(func() { s.savePosterFile(s.ctx, entry) })

	s.logger.Info("opening", "title", req.Title, "link", link, "start", req.Start)
	return req, nil
}

// OpenExternal plays link in the external player, resuming like Open, and
// records the playback once the player has started.
func (s *Service) OpenExternal(link, title string) error {
	if s.launcher == nil {
		return errors.New("no external player configured")
	}
	link = strings.TrimSpace(link)
	if link == "" {
		return errors.New("empty link")
	}

	var start time.Duration
	if prev, ok := s.history.Get(link); ok && prev.CanResume() {
		start = time.Duration(prev.Position) * time.Second
	}
	if err := s.launcher.Launch(link, start); err != nil {
		s.logger.Error("failed to launch player", "link", link, "error", err)
		s.setStatus("Could not start the player: " + err.Error())
		return err
	}

	entry, _ := s.history.RecordPlayback(link, title, "", "")
	s.refreshHistoryView()
	s.goBackground(func() { s.savePosterFile(s.ctx, entry) })
	return nil
}

// RecordProgress stores the playback position reported by the player.
func (s *Service) RecordProgress(link, title string, positionMs, durationMs int64) {
	if _, ok := s.history.RecordProgress(link, title, positionMs, durationMs); ok {
		s.refreshHistoryView()
	}
}

// RecordTrackSelection stores the audio and subtitle choice for link.
func (s *Service) RecordTrackSelection(link, title string, sel domain.TrackSelection) {
	if _, ok := s.history.RecordTrackSelection(link, title, sel); ok {
		s.refreshHistoryView()
	}
}

// RemoveHistory deletes one history entry.
func (s *Service) RemoveHistory(link string) bool {
	removed := s.history.Remove(link)
	if removed {
		s.refreshHistoryView()
	}
	return removed
}

// ClearHistory deletes the whole history.
func (s *Service) ClearHistory() {
	s.history.Clear()
	s.refreshHistoryView()
	s.setStatus("History cleared.")
}

// FilterHistory returns history items whose title fuzzily matches query.
func (s *Service) FilterHistory(query string) []HistoryItem {
	return s.historyItems(s.history.Filter(query))
}
