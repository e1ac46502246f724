// Package service is the discovery core's facade. It owns the mutable state
// (catalog readiness, mirror availability, results, picks, history), runs the
// background work, and publishes an aggregated View to any renderer.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mmcdole/reel/internal/debounce"
	"github.com/mmcdole/reel/internal/domain"
	"github.com/mmcdole/reel/internal/history"
	"github.com/mmcdole/reel/internal/poster"
	"github.com/mmcdole/reel/internal/recommend"
	"github.com/sourcegraph/conc"
)

// StatusTTL is how long a transient status message stays visible.
const StatusTTL = 7 * time.Second

// CatalogStore is the catalog file the service keeps up to date.
type CatalogStore interface {
	Ready() bool
	Path() string
	Reload() error
}

// CatalogDownloader fetches a new catalog file.
type CatalogDownloader interface {
	Download(ctx context.Context, url, dest string, onProgress domain.ProgressFunc) error
}

// VersionStore persists the version of the local catalog.
type VersionStore interface {
	LocalCatalogVersion() string
	SaveCatalogVersion(version string) error
}

// Matcher searches the catalog.
type Matcher interface {
	Match(ctx context.Context, mirrors []string, query, year string) []domain.MatchCandidate
	Suggest(ctx context.Context, query string, n int) []string
	Invalidate()
}

// MirrorResolver probes mirrors and reports progress to an observer.
type MirrorResolver interface {
	Probe(ctx context.Context) domain.MirrorStatus
	Status() domain.MirrorStatus
	Available() []string
	SetObserver(observer domain.MirrorObserver)
}

// Launcher starts the external player.
type Launcher interface {
	Launch(url string, startOffset time.Duration) error
}

// Config wires a Service. Downloader, Launcher and PosterFiles are optional.
type Config struct {
	Catalog       CatalogStore
	Downloader    CatalogDownloader
	Versions      VersionStore
	RemoteVersion func(ctx context.Context) (string, error)
	CatalogURL    string

	Matcher     Matcher
	Mirrors     MirrorResolver
	Posters     *poster.Chain
	PosterFiles *poster.FileCache
	Picks       *recommend.Engine
	History     *history.Store
	Launcher    Launcher

	Logger *slog.Logger
	Now    func() time.Time
}

// Service coordinates the discovery core.
type Service struct {
	catalog       CatalogStore
	downloader    CatalogDownloader
	versions      VersionStore
	remoteVersion func(ctx context.Context) (string, error)
	catalogURL    string

	matcher  Matcher
	mirrors  MirrorResolver
	posters  *poster.Chain
	files    *poster.FileCache
	picks    *recommend.Engine
	history  *history.Store
	launcher Launcher

	logger    *slog.Logger
	now       func() time.Time
	statusTTL time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup

	refresh       debounce.Latest
	posterRefresh debounce.Latest

	mu        sync.RWMutex
	view      View
	statusGen uint64
	closed    bool

	subMu   sync.Mutex
	subs    map[int]chan View
	nextSub int
}

// New creates a service and registers it as the mirror observer.
func New(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Posters == nil {
		cfg.Posters = poster.NewChain(poster.ChainConfig{Logger: cfg.Logger})
	}
	if cfg.History == nil {
		cfg.History = history.New(nil, cfg.Logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		catalog:       cfg.Catalog,
		downloader:    cfg.Downloader,
		versions:      cfg.Versions,
		remoteVersion: cfg.RemoteVersion,
		catalogURL:    cfg.CatalogURL,
		matcher:       cfg.Matcher,
		mirrors:       cfg.Mirrors,
		posters:       cfg.Posters,
		files:         cfg.PosterFiles,
		picks:         cfg.Picks,
		history:       cfg.History,
		launcher:      cfg.Launcher,
		logger:        cfg.Logger,
		now:           cfg.Now,
		statusTTL:     StatusTTL,
		ctx:           ctx,
		cancel:        cancel,
		subs:          make(map[int]chan View),
	}

	s.view.CatalogReady = s.catalogReady()
	if s.mirrors != nil {
		s.view.Mirrors = s.mirrors.Status()
		s.mirrors.SetObserver(s)
	}
	s.view.History = s.historyItems(s.history.List())
	s.view.Picks = s.cachedPicks(nil)
	s.view.PicksStale = s.picksStale()
	return s
}

// Start brings the core up: the catalog is checked (and downloaded when
// needed) while the mirrors are probed, then stale or missing picks are
// refreshed in the background. The returned error is the catalog outcome;
// it is also reported through the view.
func (s *Service) Start(ctx context.Context) error {
	var catalogErr error
	var wg conc.WaitGroup
	wg.Go(func() { catalogErr = s.EnsureCatalog(ctx) })
	wg.Go(func() { s.CheckMirrors(ctx) })
	wg.Wait()

	if s.picks != nil && s.picks.NeedsRefresh() {
		s.RefreshPicks()
	}
	return catalogErr
}

// Close cancels background work, waits for it and flushes pending writes.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.refresh.Cancel()
	s.posterRefresh.Cancel()
	s.cancel()
	s.wg.Wait()

	s.history.Flush()
	s.posters.Cache().Flush()

	s.subMu.Lock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.subMu.Unlock()
}

// goBackground runs fn as a tracked background task unless the service is closed.
func (s *Service) goBackground(fn func()) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	s.wg.Go(fn)
	return true
}

func (s *Service) catalogReady() bool {
	return s.catalog != nil && s.catalog.Ready()
}

func (s *Service) available() []string {
	if s.mirrors == nil {
		return nil
	}
	return s.mirrors.Available()
}
