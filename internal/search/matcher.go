package search

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/mmcdole/reel/internal/domain"
)

const (
	// MaxResults caps every match result set.
	MaxResults = 20

	// PhraseBonus is added when the whole query appears inside the row name.
	// It is large enough that a phrase hit always outranks token overlap.
	PhraseBonus = 1000

	maxTitleLength = 55
)

// indexEntry is a catalog row with its name pre-tokenized for matching.
type indexEntry struct {
	row    domain.CatalogRow
	name   string // lower-cased, trimmed
	tokens []string
	year   int
}

// Matcher scores catalog rows against search queries.
// The catalog is read once into a tokenized in-memory index and reused until
// Invalidate is called (e.g. after a catalog update).
type Matcher struct {
	catalog domain.CatalogSource
	logger  *slog.Logger

	mu      sync.RWMutex
	entries []indexEntry
	loaded  bool
}

// NewMatcher creates a matcher over the given catalog
func NewMatcher(catalog domain.CatalogSource, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{catalog: catalog, logger: logger}
}

// Invalidate drops the in-memory index so the next match reloads the catalog.
func (m *Matcher) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	m.loaded = false
}

func (m *Matcher) index(ctx context.Context) ([]indexEntry, bool) {
	m.mu.RLock()
	if m.loaded {
		entries := m.entries
		m.mu.RUnlock()
		return entries, true
	}
	m.mu.RUnlock()

	if m.catalog == nil || !m.catalog.Ready() {
		return nil, false
	}

	rows, err := m.catalog.Rows(ctx, "")
	if err != nil {
		m.logger.Error("failed to load catalog rows", "error", err)
		return nil, false
	}

	entries := make([]indexEntry, 0, len(rows))
	for _, row := range rows {
		if strings.TrimSpace(row.Link) == "" || row.Name == "" {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(row.Name))
		year, _ := strconv.Atoi(strings.TrimSpace(row.Year))
		entries = append(entries, indexEntry{
			row:    row,
			name:   name,
			tokens: strings.Fields(name),
			year:   year,
		})
	}

	m.mu.Lock()
	m.entries = entries
	m.loaded = true
	m.mu.Unlock()

	m.logger.Debug("indexed catalog", "rows", len(entries))
	return entries, true
}

// Match returns up to MaxResults candidates for query, best first.
// Only rows with a positive score whose link contains one of the available
// mirrors are returned. A blank query or an unavailable catalog yields nil.
// An empty year means no year filter.
func (m *Matcher) Match(ctx context.Context, mirrors []string, query, year string) []domain.MatchCandidate {
	if strings.TrimSpace(query) == "" {
		return nil
	}

	normalized := strings.ToLower(strings.TrimSpace(query))
	queryTokens := strings.Fields(normalized)
	if len(queryTokens) == 0 {
		return nil
	}

	entries, ok := m.index(ctx)
	if !ok {
		return nil
	}
	year = strings.TrimSpace(year)

	var matched []domain.MatchCandidate
	for _, e := range entries {
		if year != "" && strings.TrimSpace(e.row.Year) != year {
			continue
		}
		score := scoreTokens(normalized, queryTokens, e.name, e.tokens)
		if score <= 0 || !IsValidLink(mirrors, e.row.Link) {
			continue
		}
		matched = append(matched, domain.MatchCandidate{
			Title:      truncateTitle(e.row.DisplayTitle()),
			Link:       e.row.Link,
			Score:      score,
			PosterLink: e.row.PosterLink,
			BaseName:   e.row.Name,
			Year:       e.year,
		})
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Score > matched[j].Score
	})
	if len(matched) > MaxResults {
		matched = matched[:MaxResults]
	}
	return matched
}

// Suggest returns up to n catalog names that fuzzily resemble query, for
// "did you mean" hints when a search comes back empty.
func (m *Matcher) Suggest(ctx context.Context, query string, n int) []string {
	query = strings.TrimSpace(query)
	if query == "" || n <= 0 {
		return nil
	}
	entries, ok := m.index(ctx)
	if !ok {
		return nil
	}

	names := make([]string, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if seen[e.name] {
			continue
		}
		seen[e.name] = true
		names = append(names, e.row.Name)
	}

	ranks := fuzzy.RankFindNormalizedFold(query, names)
	sort.Sort(ranks)

	out := make([]string, 0, n)
	for _, r := range ranks {
		out = append(out, r.Target)
		if len(out) == n {
			break
		}
	}
	return out
}

// Score computes the match score of a query against a catalog row name:
// one point per equal (query token, name token) pair, plus PhraseBonus when
// the whole normalized query is a substring of the normalized name.
func Score(query, rowName string) int {
	normalized := strings.ToLower(strings.TrimSpace(query))
	name := strings.ToLower(strings.TrimSpace(rowName))
	return scoreTokens(normalized, strings.Fields(normalized), name, strings.Fields(name))
}

func scoreTokens(query string, queryTokens []string, name string, nameTokens []string) int {
	score := 0
	for _, q := range queryTokens {
		for _, t := range nameTokens {
			if q == t {
				score++
			}
		}
	}
	if strings.Contains(name, query) {
		score += PhraseBonus
	}
	return score
}

// IsValidLink reports whether link is served by one of the mirrors.
func IsValidLink(mirrors []string, link string) bool {
	for _, mirror := range mirrors {
		if mirror != "" && strings.Contains(link, mirror) {
			return true
		}
	}
	return false
}

func truncateTitle(title string) string {
	runes := []rune(title)
	if len(runes) > maxTitleLength {
		return string(runes[:maxTitleLength]) + "..."
	}
	return title
}
