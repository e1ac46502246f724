package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/reel/internal/domain"
	"github.com/mmcdole/reel/internal/search"
)

// CacheTTL is how long reconciled picks stay fresh.
const CacheTTL = 12 * time.Hour

// Status messages reported with an Outcome.
const (
	StatusNoHistory   = "Watch some movies to get AI recommendations."
	StatusNoMirrors   = "Connect at least one server to get recommendations."
	StatusNoCatalog   = "Database is not ready yet."
	StatusFromHistory = "Showing picks based on your history."
	StatusReady       = "AI recommended movies"
)

// CacheStore persists the reconciled picks.
type CacheStore interface {
	LoadAiCache() *domain.AiCache
	SaveAiCache(cache *domain.AiCache) error
}

// Outcome is the result of one refresh.
type Outcome struct {
	RequestID string
	Items     []domain.MatchCandidate
	Source    Source
	Status    string
	Err       error
}

// Engine runs the refresh pipeline: history titles to the recommender, the
// answer through the reconciler, and successful results into the cache.
type Engine struct {
	recommender domain.Recommender
	reconciler  *Reconciler
	catalog     interface{ Ready() bool }
	store       CacheStore
	logger      *slog.Logger
	now         func() time.Time

	mu    sync.RWMutex
	cache *domain.AiCache
}

// EngineConfig wires an Engine. Recommender may be nil when no API key is set.
type EngineConfig struct {
	Recommender domain.Recommender
	Reconciler  *Reconciler
	Catalog     interface{ Ready() bool }
	Store       CacheStore
	Logger      *slog.Logger
	Now         func() time.Time
}

// NewEngine creates an engine and loads the persisted cache.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	e := &Engine{
		recommender: cfg.Recommender,
		reconciler:  cfg.Reconciler,
		catalog:     cfg.Catalog,
		store:       cfg.Store,
		logger:      cfg.Logger,
		now:         cfg.Now,
	}
	if e.store != nil {
		e.cache = e.store.LoadAiCache()
	}
	return e
}

// Refresh produces a new set of picks. It never returns an error directly;
// failures are described by Outcome.Status and Outcome.Err.
func (e *Engine) Refresh(ctx context.Context, mirrors []string, history []domain.HistoryEntry) Outcome {
	out := Outcome{RequestID: uuid.NewString()}
	logger := e.logger.With("request_id", out.RequestID)

	switch {
	case len(history) == 0:
		out.Status = StatusNoHistory
		return out
	case len(mirrors) == 0:
		out.Status = StatusNoMirrors
		out.Err = domain.ErrNoMirrors
		return out
	case e.catalog != nil && !e.catalog.Ready():
		out.Status = StatusNoCatalog
		out.Err = domain.ErrCatalogUnavailable
		return out
	}

	titles := historyTitles(history, MaxPromptTitles)
	var suggestions []string
	var aiErr error
	if e.recommender == nil {
		aiErr = domain.ErrMissingAPIKey
	} else {
		suggestions, aiErr = e.recommender.Recommend(ctx, titles, MaxPromptTitles)
	}
	if ctx.Err() != nil {
		out.Err = ctx.Err()
		return out
	}
	if aiErr != nil {
		logger.Warn("ai recommendation failed", "error", aiErr)
		suggestions = nil
	} else {
		logger.Info("ai recommendations received", "count", len(suggestions))
	}

	res := e.reconciler.Reconcile(ctx, suggestions, mirrors, history)
	if ctx.Err() != nil {
		out.Err = ctx.Err()
		return out
	}
	out.Items = res.Items
	out.Source = res.Source

	switch {
	case aiErr != nil:
		out.Err = aiErr
		out.Status = "AI failed: " + failureReason(aiErr)
	case len(res.Items) == 0:
		out.Status = res.Status
	case res.Source == SourceAI:
		out.Status = StatusReady
	default:
		out.Status = StatusFromHistory
	}

	if len(res.Items) > 0 {
		e.save(domain.NewAiCache(e.now().UnixMilli(), res.Items), logger)
	}
	return out
}

func (e *Engine) save(cache domain.AiCache, logger *slog.Logger) {
	e.mu.Lock()
	e.cache = &cache
	e.mu.Unlock()

	if e.store == nil {
		return
	}
	if err := e.store.SaveAiCache(&cache); err != nil {
		logger.Error("failed to save ai cache", "error", err)
	}
}

// Cached returns the cached picks servable by mirrors (all of them while no
// mirror is known yet) and whether the cache is older than CacheTTL.
// ok is false when nothing is cached.
func (e *Engine) Cached(mirrors []string) (items []domain.MatchCandidate, stale, ok bool) {
	e.mu.RLock()
	cache := e.cache
	e.mu.RUnlock()
	if cache == nil || len(cache.Items) == 0 {
		return nil, false, false
	}

	items = cache.Candidates()
	if len(mirrors) > 0 {
		filtered := items[:0]
		for _, c := range items {
			if search.IsValidLink(mirrors, c.Link) {
				filtered = append(filtered, c)
			}
		}
		items = filtered
	}
	return items, e.isStale(cache), true
}

// NeedsRefresh reports whether the cache is absent or stale.
func (e *Engine) NeedsRefresh() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cache == nil || len(e.cache.Items) == 0 || e.isStale(e.cache)
}

func (e *Engine) isStale(cache *domain.AiCache) bool {
	age := e.now().Sub(time.UnixMilli(cache.Timestamp))
	return age > CacheTTL
}

// Clear drops the cached picks.
func (e *Engine) Clear() {
	e.mu.Lock()
	e.cache = nil
	e.mu.Unlock()
	if e.store != nil {
		if err := e.store.SaveAiCache(nil); err != nil {
			e.logger.Error("failed to clear ai cache", "error", err)
		}
	}
}

func historyTitles(history []domain.HistoryEntry, n int) []string {
	titles := make([]string, 0, min(n, len(history)))
	for _, h := range history {
		if len(titles) == n {
			break
		}
		if name := strings.TrimSpace(h.Name); name != "" {
			titles = append(titles, name)
		}
	}
	return titles
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrMissingAPIKey):
		return "missing API key"
	case errors.Is(err, context.DeadlineExceeded):
		return "request timed out"
	default:
		return fmt.Sprint(err)
	}
}
