package domain

import "context"

// CatalogSource is the read-only view of the catalog database.
// An empty year means no year filter.
type CatalogSource interface {
	Ready() bool
	Rows(ctx context.Context, year string) ([]CatalogRow, error)
}

// PosterLookup finds a catalog poster by exact, case-insensitive base name.
type PosterLookup interface {
	PosterByBaseName(ctx context.Context, baseName string) (string, error)
}

// Recommender turns watched titles into free-text movie title suggestions.
type Recommender interface {
	Recommend(ctx context.Context, historyTitles []string, maxCount int) ([]string, error)
}

// PosterSearcher looks up a poster URL for a title. An empty string means no poster.
type PosterSearcher interface {
	SearchPoster(ctx context.Context, title string) (string, error)
}

// MirrorProber checks whether a mirror address is reachable. It never returns an error;
// any failure counts as unreachable.
type MirrorProber interface {
	Probe(ctx context.Context, address string) bool
}

// MirrorSet answers whether a link is currently servable by a reachable mirror.
type MirrorSet interface {
	Available() []string
	IsServable(link string) bool
}
