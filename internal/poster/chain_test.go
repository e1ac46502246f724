package poster

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmcdole/reel/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMirrors struct{ up []string }

func (m fakeMirrors) Available() []string { return m.up }

func (m fakeMirrors) IsServable(link string) bool {
	for _, u := range m.up {
		if strings.Contains(link, u) {
			return true
		}
	}
	return false
}

type fakeLookup map[string]string

func (l fakeLookup) PosterByBaseName(_ context.Context, name string) (string, error) {
	return l[strings.ToLower(name)], nil
}

type countingSearcher struct {
	result string
	delay  time.Duration
	calls  atomic.Int32
}

func (s *countingSearcher) SearchPoster(ctx context.Context, title string) (string, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.result, nil
}

const (
	trusted     = "https://m.media-amazon.com/images/iron.jpg"
	upMirror    = "10.0.0.1"
	downMirror  = "10.0.0.9"
	upPoster    = "http://10.0.0.1/posters/iron.jpg"
	downPoster  = "http://10.0.0.9/posters/iron.jpg"
	otherPoster = "http://example.org/iron.jpg"
)

func newTestChain(cfg ChainConfig) *Chain {
	cfg.TrustedHosts = []string{"m.media-amazon.com"}
	cfg.KnownMirrors = []string{upMirror, downMirror}
	if cfg.Mirrors == nil {
		cfg.Mirrors = fakeMirrors{up: []string{upMirror}}
	}
	return NewChain(cfg)
}

func TestPredicates(t *testing.T) {
	c := newTestChain(ChainConfig{})
	assert.True(t, c.IsExternalPoster(trusted))
	assert.True(t, c.IsExternalPoster("https://img.m.media-amazon.com/x.jpg"))
	assert.False(t, c.IsExternalPoster("https://m.media-amazon.com.evil.io/x.jpg"))
	assert.False(t, c.IsExternalPoster("file:///tmp/x.jpg"))
	assert.True(t, c.IsPosterServerAvailable(upPoster))
	assert.False(t, c.IsPosterServerAvailable(downPoster))
}

func TestChoosePrefersCachedOverUnreachableCatalogPoster(t *testing.T) {
	c := newTestChain(ChainConfig{})
	c.Cache().Put("iron man", trusted)

	assert.Equal(t, trusted, c.Choose(downPoster, "Iron Man"))
	assert.Equal(t, upPoster, c.Choose(upPoster, "Iron Man"))
	assert.Equal(t, "", c.Choose(downPoster, "Unknown"))
}

func TestShouldReplace(t *testing.T) {
	c := newTestChain(ChainConfig{})
	assert.True(t, c.ShouldReplace("", "Iron Man"))
	assert.False(t, c.ShouldReplace(trusted, "Iron Man"))
	assert.False(t, c.ShouldReplace(upPoster, "Iron Man"))
	assert.False(t, c.ShouldReplace(otherPoster, "Iron Man"))
	assert.True(t, c.ShouldReplace(downPoster, "Iron Man"))

	c.Cache().Put("iron man", trusted)
	assert.False(t, c.ShouldReplace(downPoster, "Iron Man"))
}

func TestShouldReplaceFollowsMirrorChanges(t *testing.T) {
	mirrors := &switchableMirrors{}
	c := newTestChain(ChainConfig{Mirrors: mirrors})
	assert.True(t, c.ShouldReplace(upPoster, "Iron Man"))

	mirrors.set(upMirror)
	assert.False(t, c.ShouldReplace(upPoster, "Iron Man"))
}

type switchableMirrors struct {
	mu sync.Mutex
	up []string
}

func (m *switchableMirrors) set(up ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.up = up
}

func (m *switchableMirrors) Available() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.up
}

func (m *switchableMirrors) IsServable(link string) bool {
	return fakeMirrors{up: m.Available()}.IsServable(link)
}

func TestResolveTiers(t *testing.T) {
	searcher := &countingSearcher{result: "https://m.media-amazon.com/api.jpg"}
	c := newTestChain(ChainConfig{
		Catalog:  fakeLookup{"dune": "https://m.media-amazon.com/dune.jpg"},
		Searcher: searcher,
	})
	ctx := context.Background()

	// Tier 1: usable catalog poster, nothing else consulted.
	assert.Equal(t, upPoster, c.Resolve(ctx, "Iron Man", "Iron Man", upPoster))

	// Tier 3: catalog by base name, cached afterwards.
	assert.Equal(t, "https://m.media-amazon.com/dune.jpg", c.Resolve(ctx, "Dune (2021)", "Dune", downPoster))
	v, ok := c.Cache().Get("dune")
	assert.True(t, ok)
	assert.Equal(t, "https://m.media-amazon.com/dune.jpg", v)

	// Tier 4: remote search, then served from cache.
	assert.Equal(t, "https://m.media-amazon.com/api.jpg", c.Resolve(ctx, "Heat (1995) 1080p", "", ""))
	assert.Equal(t, "https://m.media-amazon.com/api.jpg", c.Resolve(ctx, "Heat", "", ""))
	assert.Equal(t, int32(1), searcher.calls.Load())
}

func TestResolveNegativeCache(t *testing.T) {
	searcher := &countingSearcher{}
	lookup := fakeLookup{}
	c := newTestChain(ChainConfig{Catalog: lookup, Searcher: searcher})
	ctx := context.Background()

	assert.Equal(t, "", c.Resolve(ctx, "Obscure Film", "", ""))
	assert.Equal(t, "", c.Resolve(ctx, "Obscure Film", "", ""))
	assert.Equal(t, int32(1), searcher.calls.Load(), "negative entry short-circuits the api")

	v, ok := c.Cache().Get("obscure film")
	assert.True(t, ok)
	assert.Empty(t, v)

	// The catalog is still re-checked for negative keys.
	lookup["obscure film"] = "https://m.media-amazon.com/obscure.jpg"
	assert.Equal(t, "https://m.media-amazon.com/obscure.jpg", c.Resolve(ctx, "Obscure Film", "", ""))
	assert.Equal(t, int32(1), searcher.calls.Load())
}

func TestRefreshNegativesRetriesSearch(t *testing.T) {
	searcher := &countingSearcher{}
	c := newTestChain(ChainConfig{Searcher: searcher})
	ctx := context.Background()

	c.Resolve(ctx, "Obscure", "", "")
	assert.Equal(t, 1, c.RefreshNegatives())
	searcher.result = "https://m.media-amazon.com/found.jpg"
	assert.Equal(t, "https://m.media-amazon.com/found.jpg", c.Resolve(ctx, "Obscure", "", ""))
	assert.Equal(t, int32(2), searcher.calls.Load())
}

func TestResolveSingleFlightPerKey(t *testing.T) {
	searcher := &countingSearcher{result: "https://m.media-amazon.com/x.jpg", delay: 50 * time.Millisecond}
	c := newTestChain(ChainConfig{Searcher: searcher})

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.Resolve(context.Background(), "Inception", "", "")
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), searcher.calls.Load())
	for _, r := range results {
		assert.Equal(t, "https://m.media-amazon.com/x.jpg", r)
	}
}

func TestEnrich(t *testing.T) {
	c := newTestChain(ChainConfig{Catalog: fakeLookup{"iron man": trusted}})
	list := []domain.MatchCandidate{
		{Title: "Iron Man", BaseName: "Iron Man", PosterLink: downPoster},
		{Title: "Dune", BaseName: "Dune", PosterLink: upPoster},
	}
	c.Enrich(context.Background(), list)
	require.Len(t, list, 2)
	assert.Equal(t, trusted, list[0].PosterLink)
	assert.Equal(t, upPoster, list[1].PosterLink)
}

// gatedSearcher blocks until released and honours its context.
type gatedSearcher struct {
	result  string
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (s *gatedSearcher) SearchPoster(ctx context.Context, _ string) (string, error) {
	if s.calls.Add(1) == 1 {
		close(s.started)
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.release:
		return s.result, nil
	}
}

func TestSharedSearchSurvivesFirstCallerCancel(t *testing.T) {
	searcher := &gatedSearcher{
		result:  "https://m.media-amazon.com/heat.jpg",
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	c := newTestChain(ChainConfig{Searcher: searcher})

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	first := make(chan string, 1)
	go func() { first <- c.Resolve(firstCtx, "Heat", "", "") }()
	<-searcher.started

	second := make(chan string, 1)
	go func() { second <- c.Resolve(context.Background(), "Heat", "", "") }()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	select {
	case got := <-first:
		assert.Equal(t, "", got)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting on the shared search")
	}

	close(searcher.release)
	select {
	case got := <-second:
		assert.Equal(t, searcher.result, got)
	case <-time.After(time.Second):
		t.Fatal("live caller never got the shared result")
	}

	v, ok := c.Cache().Get("heat")
	assert.True(t, ok)
	assert.Equal(t, searcher.result, v)
	assert.Equal(t, int32(1), searcher.calls.Load())
}
