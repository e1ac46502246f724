package recommend

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmcdole/reel/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecommender struct {
	titles []string
	err    error
	calls  atomic.Int32
	got    []string
}

func (f *fakeRecommender) Recommend(_ context.Context, titles []string, _ int) ([]string, error) {
	f.calls.Add(1)
	f.got = titles
	return f.titles, f.err
}

type memCacheStore struct {
	cache *domain.AiCache
	saves int
}

func (m *memCacheStore) LoadAiCache() *domain.AiCache { return m.cache }

func (m *memCacheStore) SaveAiCache(c *domain.AiCache) error {
	m.saves++
	if c == nil || len(c.Items) == 0 {
		m.cache = nil
		return nil
	}
	copied := *c
	m.cache = &copied
	return nil
}

type readiness bool

func (r readiness) Ready() bool { return bool(r) }

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(rec domain.Recommender, store CacheStore, ready bool) *Engine {
	return NewEngine(EngineConfig{
		Recommender: rec,
		Reconciler: newTestReconciler(
			movie("Iron Man", "2008", "https://m.media-amazon.com/ironman.jpg"),
			movie("The Avengers", "2012", ""),
			movie("Heat", "1995", ""),
		),
		Catalog: readiness(ready),
		Store:   store,
		Now:     func() time.Time { return testNow },
	})
}

var watched = []domain.HistoryEntry{{Link: "http://10.0.0.1/1995/Heat.mkv", Name: "Heat", BaseName: "Heat"}}

func TestRefreshSuccessPersists(t *testing.T) {
	rec := &fakeRecommender{titles: []string{"Iron Man", "The Avengers"}}
	store := &memCacheStore{}
	e := newTestEngine(rec, store, true)

	out := e.Refresh(context.Background(), []string{mirror}, watched)
	require.NoError(t, out.Err)
	assert.NotEmpty(t, out.RequestID)
	assert.Equal(t, SourceAI, out.Source)
	assert.Equal(t, StatusReady, out.Status)
	assert.Len(t, out.Items, 2)
	assert.Equal(t, []string{"Heat"}, rec.got)

	require.NotNil(t, store.cache)
	assert.Equal(t, testNow.UnixMilli(), store.cache.Timestamp)
	assert.Len(t, store.cache.Items, 2)

	items, stale, ok := e.Cached([]string{mirror})
	assert.True(t, ok)
	assert.False(t, stale)
	assert.Len(t, items, 2)
	assert.False(t, e.NeedsRefresh())
}

func TestRefreshPreconditionsSkipAI(t *testing.T) {
	rec := &fakeRecommender{titles: []string{"Heat"}}

	out := newTestEngine(rec, nil, true).Refresh(context.Background(), []string{mirror}, nil)
	assert.Equal(t, StatusNoHistory, out.Status)
	assert.Empty(t, out.Items)

	out = newTestEngine(rec, nil, true).Refresh(context.Background(), nil, watched)
	assert.Equal(t, StatusNoMirrors, out.Status)
	assert.ErrorIs(t, out.Err, domain.ErrNoMirrors)

	out = newTestEngine(rec, nil, false).Refresh(context.Background(), []string{mirror}, watched)
	assert.Equal(t, StatusNoCatalog, out.Status)
	assert.ErrorIs(t, out.Err, domain.ErrCatalogUnavailable)

	assert.Zero(t, rec.calls.Load())
}

func TestRefreshAIFailureFallsBackToHistory(t *testing.T) {
	rec := &fakeRecommender{err: errors.New("connection refused")}
	store := &memCacheStore{}
	e := newTestEngine(rec, store, true)

	history := []domain.HistoryEntry{{Link: "http://elsewhere/iron.mkv", Name: "Iron Man", BaseName: "Iron Man Legacy"}}
	out := e.Refresh(context.Background(), []string{mirror}, history)
	assert.Equal(t, "AI failed: connection refused", out.Status)
	assert.Error(t, out.Err)
	assert.Equal(t, SourceHistoryMatches, out.Source)
	require.Len(t, out.Items, 1)
	assert.Equal(t, "Iron Man", out.Items[0].BaseName)
	assert.NotNil(t, store.cache, "fallback results are cached too")
}

func TestRefreshMissingKey(t *testing.T) {
	e := newTestEngine(nil, nil, true)
	out := e.Refresh(context.Background(), []string{mirror}, watched)
	assert.Equal(t, "AI failed: missing API key", out.Status)
	assert.ErrorIs(t, out.Err, domain.ErrMissingAPIKey)
	assert.Equal(t, SourceHistory, out.Source)
}

func TestRefreshEmptyAIListUsesFallback(t *testing.T) {
	rec := &fakeRecommender{titles: nil}
	out := newTestEngine(rec, nil, true).Refresh(context.Background(), []string{mirror}, watched)
	assert.NoError(t, out.Err)
	assert.Equal(t, StatusFromHistory, out.Status)
	assert.NotEmpty(t, out.Items)
}

func TestRefreshCancelledDoesNotPersist(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := &cancellingRecommender{cancel: cancel}
	store := &memCacheStore{}

	out := newTestEngine(rec, store, true).Refresh(ctx, []string{mirror}, watched)
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Empty(t, out.Items)
	assert.Zero(t, store.saves)
}

type cancellingRecommender struct{ cancel context.CancelFunc }

func (c *cancellingRecommender) Recommend(context.Context, []string, int) ([]string, error) {
	c.cancel()
	return []string{"Iron Man"}, nil
}

func TestCachedStalenessAndMirrorFilter(t *testing.T) {
	store := &memCacheStore{cache: &domain.AiCache{
		Timestamp: testNow.Add(-13 * time.Hour).UnixMilli(),
		Items: []domain.AiCacheItem{
			{Title: "Heat", Link: "http://10.0.0.1/heat.mkv", BaseName: "Heat"},
			{Title: "Ronin", Link: "http://10.0.0.2/ronin.mkv", BaseName: "Ronin"},
		},
	}}
	e := newTestEngine(nil, store, true)

	items, stale, ok := e.Cached(nil)
	assert.True(t, ok)
	assert.True(t, stale)
	assert.Len(t, items, 2, "unfiltered until mirrors are known")

	items, _, _ = e.Cached([]string{"10.0.0.2"})
	require.Len(t, items, 1)
	assert.Equal(t, "Ronin", items[0].Title)
	assert.True(t, e.NeedsRefresh())

	e.Clear()
	_, _, ok = e.Cached(nil)
	assert.False(t, ok)
	assert.Nil(t, store.cache)
}

func TestCachedFreshWithinTTL(t *testing.T) {
	store := &memCacheStore{cache: &domain.AiCache{
		Timestamp: testNow.Add(-11 * time.Hour).UnixMilli(),
		Items:     []domain.AiCacheItem{{Title: "Heat", Link: "http://10.0.0.1/heat.mkv", BaseName: "Heat"}},
	}}
	_, stale, ok := newTestEngine(nil, store, true).Cached(nil)
	assert.True(t, ok)
	assert.False(t, stale)
}
