package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mmcdole/reel/internal/domain"
)

// Search status messages.
const (
	StatusSearchNoMirrors = "Connect at least one server to search."
	StatusNoCatalog       = "Database is not ready yet."
	StatusQueryTooShort   = "Type at least 2 characters to search."
	StatusNoResults       = "No results found."

	minQueryLength = 2
	maxSuggestions = 3
)

// Search matches query (optionally restricted to an exact year) against the
// catalog on the reachable mirrors. Posters already known are attached
// immediately; missing ones are resolved in the background.
func (s *Service) Search(ctx context.Context, query, year string) ([]Item, error) {
	query = strings.TrimSpace(query)
	year = strings.TrimSpace(year)

	mirrors := s.available()
	switch {
	case len(mirrors) == 0:
		s.setStatus(StatusSearchNoMirrors)
		return nil, domain.ErrNoMirrors
	case !s.catalogReady() || s.matcher == nil:
		s.setStatus(StatusNoCatalog)
		return nil, domain.ErrCatalogUnavailable
	case utf8.RuneCountInString(query) < minQueryLength:
		s.setStatus(StatusQueryTooShort)
		return nil, nil
	}

	cands := s.matcher.Match(ctx, mirrors, query, year)
	for i := range cands {
		cands[i].PosterLink = s.posters.Choose(cands[i].PosterLink, cands[i].BaseName)
	}
	results := s.items(cands)

	var suggestions []string
	if len(results) == 0 {
		suggestions = s.matcher.Suggest(ctx, query, maxSuggestions)
	}

	s.update(func(v *View) {
		v.Query = query
		v.Year = year
		v.Results = results
		v.Suggestions = suggestions
	})
	if len(results) == 0 {
		s.setStatus(StatusNoResults)
	} else {
		s.setStatus(fmt.Sprintf("Found %d results.", len(results)))
	}

	s.logger.Info("search", "query", query, "year", year, "results", len(results))
	s.reevaluatePosters()
	return results, nil
}
