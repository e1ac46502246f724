package recommend

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/mmcdole/reel/internal/domain"
	"github.com/mmcdole/reel/internal/search"
)

const (
	// MaxSuggestions caps how many AI titles are considered.
	MaxSuggestions = 50

	// MaxPicks caps the reconciled result.
	MaxPicks = 20
)

// Source names the strategy that produced a result.
type Source string

const (
	SourceNone           Source = ""
	SourceAI             Source = "ai"
	SourceHistoryMatches Source = "history-matches"
	SourceHistory        Source = "history"
)

// StatusNoSuggestions is reported when every strategy came up empty.
const StatusNoSuggestions = "no AI suggestions"

// Matcher finds catalog candidates for a query.
type Matcher interface {
	Match(ctx context.Context, mirrors []string, query, year string) []domain.MatchCandidate
}

// Result is the outcome of a reconciliation.
type Result struct {
	Items  []domain.MatchCandidate
	Source Source
	Status string
}

type input struct {
	titles  []string
	mirrors []string
	history []domain.HistoryEntry
}

// strategy is one rung of the fallback ladder.
type strategy struct {
	source Source
	run    func(ctx context.Context, in input) []domain.MatchCandidate
}

// Reconciler maps free-text AI titles onto catalog entries. When the AI
// titles produce nothing it falls back, in order, to catalog matches for the
// user's own history and then to the history entries themselves.
type Reconciler struct {
	matcher    Matcher
	logger     *slog.Logger
	strategies []strategy
}

// NewReconciler creates a reconciler over matcher.
func NewReconciler(matcher Matcher, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reconciler{matcher: matcher, logger: logger}
	r.strategies = []strategy{
		{SourceAI, r.fromTitles},
		{SourceHistoryMatches, r.fromHistoryMatches},
		{SourceHistory, fromRawHistory},
	}
	return r
}

// Reconcile returns at most MaxPicks candidates for the AI titles.
func (r *Reconciler) Reconcile(ctx context.Context, titles, mirrors []string, history []domain.HistoryEntry) Result {
	in := input{titles: titles, mirrors: mirrors, history: history}
	for _, s := range r.strategies {
		if ctx.Err() != nil {
			return Result{Status: StatusNoSuggestions}
		}
		if items := s.run(ctx, in); len(items) > 0 {
			r.logger.Debug("reconciled picks", "source", string(s.source), "count", len(items))
			return Result{Items: items, Source: s.source}
		}
	}
	return Result{Status: StatusNoSuggestions}
}

func (r *Reconciler) fromTitles(ctx context.Context, in input) []domain.MatchCandidate {
	titles := in.titles
	if len(titles) > MaxSuggestions {
		titles = titles[:MaxSuggestions]
	}
	return r.collect(ctx, titles, in.mirrors, nil, nil)
}

// fromHistoryMatches looks for catalog entries like the watched titles that
// the user has not played yet.
func (r *Reconciler) fromHistoryMatches(ctx context.Context, in input) []domain.MatchCandidate {
	if len(in.history) == 0 {
		return nil
	}
	played := make(map[string]bool, len(in.history))
	watched := make(map[string]bool, len(in.history))
	titles := make([]string, 0, len(in.history))
	for _, e := range in.history {
		played[e.Link] = true
		if e.BaseName != "" {
			watched[search.NormalizeKey(e.BaseName)] = true
		}
		if len(titles) < MaxPromptTitles && strings.TrimSpace(e.Name) != "" {
			titles = append(titles, e.Name)
		}
	}
	return r.collect(ctx, titles, in.mirrors, played, watched)
}

func fromRawHistory(_ context.Context, in input) []domain.MatchCandidate {
	out := make([]domain.MatchCandidate, 0, min(len(in.history), MaxPicks))
	for _, e := range in.history {
		if len(out) == MaxPicks {
			break
		}
		base := e.BaseName
		if base == "" {
			base = search.CleanBaseName(e.Name)
		}
		out = append(out, domain.MatchCandidate{
			Title:      e.Name,
			Link:       e.Link,
			PosterLink: e.PosterLink,
			BaseName:   base,
		})
	}
	return out
}

// collect accepts one candidate per title, in title order, then tops up from
// the remaining candidates. Each link and each movie appears at most once;
// excluded links and movies are never returned.
func (r *Reconciler) collect(ctx context.Context, titles, mirrors []string, excludeLinks, excludeMovies map[string]bool) []domain.MatchCandidate {
	var (
		accepted []domain.MatchCandidate
		links    = make(map[string]bool)
		movies   = make(map[string]bool)
		overflow []ranked
	)
	take := func(c domain.MatchCandidate) bool {
		key := search.NormalizeKey(c.BaseName)
		if links[c.Link] || excludeLinks[c.Link] || (key != "" && (movies[key] || excludeMovies[key])) {
			return false
		}
		links[c.Link] = true
		if key != "" {
			movies[key] = true
		}
		accepted = append(accepted, c)
		return true
	}

	for _, title := range titles {
		if len(accepted) >= MaxPicks || ctx.Err() != nil {
			break
		}
		candidates, used := r.candidatesFor(ctx, mirrors, title)
		if len(candidates) == 0 {
			continue
		}
		ranks := rank(candidates, used)
		overflow = append(overflow, ranks...)
		for _, rc := range ranks {
			if take(rc.MatchCandidate) {
				break
			}
		}
	}

	// Top-up draws from every title's leftovers under the same ordering.
	sortRanked(overflow)
	for _, rc := range overflow {
		if len(accepted) >= MaxPicks {
			break
		}
		take(rc.MatchCandidate)
	}
	return accepted
}

// candidatesFor tries each query variant, then each fallback token, and
// returns the first non-empty match set with the query that produced it.
func (r *Reconciler) candidatesFor(ctx context.Context, mirrors []string, title string) ([]domain.MatchCandidate, string) {
	for _, q := range search.Variants(title) {
		if found := r.matcher.Match(ctx, mirrors, q, ""); len(found) > 0 {
			return found, q
		}
	}
	for _, q := range search.FallbackTokens(title) {
		if found := r.matcher.Match(ctx, mirrors, q, ""); len(found) > 0 {
			return found, q
		}
	}
	return nil, ""
}

// ranked is a candidate with whether its title contains the query that matched it.
type ranked struct {
	domain.MatchCandidate
	containsQuery bool
}

// rank sorts the candidates found for one title.
func rank(cands []domain.MatchCandidate, used string) []ranked {
	used = strings.ToLower(used)
	out := make([]ranked, len(cands))
	for i, c := range cands {
		out[i] = ranked{
			MatchCandidate: c,
			containsQuery:  used != "" && strings.Contains(strings.ToLower(c.Title), used),
		}
	}
	sortRanked(out)
	return out
}

// sortRanked orders by poster presence, then whether the title contains
// the query that matched, then score, then year, all descending.
func sortRanked(cands []ranked) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.HasPoster() != b.HasPoster() {
			return a.HasPoster()
		}
		if a.containsQuery != b.containsQuery {
			return a.containsQuery
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Year > b.Year
	})
}
