// Package poster resolves a display poster for a title through a fixed chain
// of sources: the catalog row, the poster cache, a catalog lookup by base
// name and finally a remote poster API.
package poster

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/reel/internal/domain"
	"github.com/mmcdole/reel/internal/search"
	"golang.org/x/sync/singleflight"
)

// SharedSearchTimeout bounds one remote poster search shared by concurrent callers.
const SharedSearchTimeout = 20 * time.Second

// Chain resolves posters. All dependencies except cache are optional.
type Chain struct {
	cache    *Cache
	catalog  domain.PosterLookup
	searcher domain.PosterSearcher
	mirrors  domain.MirrorSet
	files    *FileCache
	logger   *slog.Logger

	trustedHosts []string
	knownMirrors []string

	inflight singleflight.Group
}

// ChainConfig wires a Chain.
type ChainConfig struct {
	Cache    *Cache
	Catalog  domain.PosterLookup
	Searcher domain.PosterSearcher
	Mirrors  domain.MirrorSet
	Files    *FileCache
	Logger   *slog.Logger

	// TrustedHosts are remote image hosts whose URLs are always usable.
	TrustedHosts []string
	// KnownMirrors is every configured mirror, reachable or not.
	KnownMirrors []string
}

// NewChain creates a resolution chain.
func NewChain(cfg ChainConfig) *Chain {
	if cfg.Cache == nil {
		cfg.Cache = NewCache(nil, cfg.Logger)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	hosts := make([]string, 0, len(cfg.TrustedHosts))
	for _, h := range cfg.TrustedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			hosts = append(hosts, h)
		}
	}
	return &Chain{
		cache:        cfg.Cache,
		catalog:      cfg.Catalog,
		searcher:     cfg.Searcher,
		mirrors:      cfg.Mirrors,
		files:        cfg.Files,
		logger:       cfg.Logger,
		trustedHosts: hosts,
		knownMirrors: cfg.KnownMirrors,
	}
}

// Cache returns the chain's poster cache.
func (c *Chain) Cache() *Cache {
	return c.cache
}

// Key is the cache key for a title: the normalized base name, derived from
// the title when no base name is known.
func Key(title, baseName string) string {
	if strings.TrimSpace(baseName) == "" {
		baseName = search.CleanBaseName(title)
	}
	return search.NormalizeKey(baseName)
}

// IsExternalPoster reports whether link is hosted on a trusted image host.
func (c *Chain) IsExternalPoster(link string) bool {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range c.trustedHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// IsPosterServerAvailable reports whether link is served by a reachable mirror.
func (c *Chain) IsPosterServerAvailable(link string) bool {
	return c.mirrors != nil && c.mirrors.IsServable(link)
}

func (c *Chain) usable(link string) bool {
	link = strings.TrimSpace(link)
	return link != "" && (c.IsExternalPoster(link) || c.IsPosterServerAvailable(link))
}

func (c *Chain) pointsAtMirror(link string) bool {
	for _, m := range c.knownMirrors {
		if m != "" && strings.Contains(link, m) {
			return true
		}
	}
	return false
}

// Choose picks a poster without any I/O: the catalog poster when usable,
// otherwise a positive cache entry for baseName, otherwise "".
func (c *Chain) Choose(catalogPoster, baseName string) string {
	if c.usable(catalogPoster) {
		return strings.TrimSpace(catalogPoster)
	}
	if cached, _ := c.cache.Get(search.NormalizeKey(baseName)); c.usable(cached) {
		return cached
	}
	return ""
}

// ShouldReplace reports whether current warrants a new lookup. It depends on
// mirror reachability and must be re-evaluated when that changes.
func (c *Chain) ShouldReplace(current, baseName string) bool {
	current = strings.TrimSpace(current)
	switch {
	case current == "":
		return true
	case c.IsExternalPoster(current):
		return false
	case c.IsPosterServerAvailable(current):
		return false
	case c.pointsAtMirror(current):
		cached, _ := c.cache.Get(search.NormalizeKey(baseName))
		return !c.usable(cached)
	default:
		return false
	}
}

// Resolve returns the best poster for a title, consulting each source only
// when the previous one produced nothing. "" means no poster.
func (c *Chain) Resolve(ctx context.Context, title, baseName, catalogPoster string) string {
	if c.usable(catalogPoster) {
		return strings.TrimSpace(catalogPoster)
	}

	key := Key(title, baseName)
	if key == "" {
		return ""
	}

	cached, looked := c.cache.Get(key)
	if c.usable(cached) {
		return cached
	}

	// The catalog may have been updated since a negative entry was recorded.
	if p := c.fromCatalog(ctx, baseName, title); p != "" {
		c.cache.Put(key, p)
		return p
	}
	if looked && cached == "" {
		return ""
	}

	return c.fromSearch(ctx, key, title, baseName)
}

func (c *Chain) fromCatalog(ctx context.Context, baseName, title string) string {
	if c.catalog == nil {
		return ""
	}
	name := strings.TrimSpace(baseName)
	if name == "" {
		name = search.CleanBaseName(title)
	}
	p, err := c.catalog.PosterByBaseName(ctx, name)
	if err != nil {
		c.logger.Debug("catalog poster lookup failed", "name", name, "error", err)
		return ""
	}
	if !c.usable(p) {
		return ""
	}
	return p
}

// fromSearch queries the poster API, allowing one request per key at a time.
func (c *Chain) fromSearch(ctx context.Context, key, title, baseName string) string {
	if c.searcher == nil {
		return ""
	}
	query := strings.TrimSpace(baseName)
	if query == "" {
		query = search.CleanBaseName(title)
	}
	if query == "" {
		return ""
	}

	// The search is shared by every caller waiting on key, so it runs detached
	// from the first caller's cancellation and is bounded on its own.
	results := c.inflight.DoChan(key, func() (any, error) {
		// Another caller may have finished while we waited to enter.
		if cached, ok := c.cache.Get(key); ok && (cached == "" || c.usable(cached)) {
			return cached, nil
		}
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), SharedSearchTimeout)
		defer cancel()
		p, err := c.searcher.SearchPoster(sctx, query)
		if err != nil {
			return "", err
		}
		c.cache.Put(key, p)
		return p, nil
	})

	select {
	case <-ctx.Done():
		return ""
	case res := <-results:
		if res.Err != nil {
			c.logger.Debug("poster search failed", "query", query, "error", res.Err)
			return ""
		}
		if res.Shared {
			c.logger.Debug("poster search shared", "key", key)
		}
		return res.Val.(string)
	}
}

// Display returns what a renderer should show for a resolved poster: a local
// image file when one exists for the title, otherwise resolved.
func (c *Chain) Display(title, baseName, resolved string) string {
	if c.files != nil {
		if path, ok := c.files.LocalPath(Key(title, baseName)); ok {
			return path
		}
	}
	return resolved
}

// Enrich resolves posters for candidates in place.
func (c *Chain) Enrich(ctx context.Context, candidates []domain.MatchCandidate) {
	for i := range candidates {
		if ctx.Err() != nil {
			return
		}
		cand := &candidates[i]
		if !c.ShouldReplace(cand.PosterLink, cand.BaseName) {
			continue
		}
		if p := c.Resolve(ctx, cand.Title, cand.BaseName, cand.PosterLink); p != "" {
			cand.PosterLink = p
		}
	}
}

// RefreshNegatives forgets "no poster" answers so they are retried.
func (c *Chain) RefreshNegatives() int {
	return c.cache.ClearNegatives()
}
