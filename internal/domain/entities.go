package domain

import "strings"

// CatalogRow is one title as stored in the catalog database.
// Link is never empty; Name is the canonical matching key.
type CatalogRow struct {
	Name       string
	FullName   string
	Year       string
	Link       string
	PosterLink string
}

// DisplayTitle returns FullName when present, otherwise Name.
func (r CatalogRow) DisplayTitle() string {
	if t := strings.TrimSpace(r.FullName); t != "" {
		return t
	}
	return strings.TrimSpace(r.Name)
}

// MatchCandidate is a catalog row that matched a query, with its derived score.
// Candidates sharing a BaseName are the same movie served from different mirrors.
type MatchCandidate struct {
	Title      string `json:"title"`
	Link       string `json:"link"`
	Score      int    `json:"-"`
	PosterLink string `json:"posterLink,omitempty"`
	BaseName   string `json:"baseName"`
	Year       int    `json:"-"`
}

// HasPoster reports whether the candidate carries a non-blank poster URL.
func (c MatchCandidate) HasPoster() bool {
	return strings.TrimSpace(c.PosterLink) != ""
}

// TrackSelection records the audio and subtitle choice made in the player.
type TrackSelection struct {
	AudioLabel         string `json:"audioLabel,omitempty"`
	AudioLanguage      string `json:"audioLanguage,omitempty"`
	AudioGroupIndex    *int   `json:"audioGroupIndex,omitempty"`
	AudioTrackIndex    *int   `json:"audioTrackIndex,omitempty"`
	SubtitleLabel      string `json:"subtitleLabel,omitempty"`
	SubtitleLanguage   string `json:"subtitleLanguage,omitempty"`
	SubtitleGroupIndex *int   `json:"subtitleGroupIndex,omitempty"`
	SubtitleTrackIndex *int   `json:"subtitleTrackIndex,omitempty"`
	SubtitleEnabled    bool   `json:"subtitleEnabled"`
	SubtitleURI        string `json:"subtitleUri,omitempty"`
}

// HistoryEntry is a persisted watch-history record keyed by playback link.
// Position and Duration are seconds, LastPlayedTs is epoch seconds.
type HistoryEntry struct {
	Link            string `json:"link"`
	Name            string `json:"name"`
	Position        int64  `json:"position"`
	Duration        int64  `json:"duration"`
	LastPlayedTs    int64  `json:"lastPlayedTs"`
	BaseName        string `json:"baseName,omitempty"`
	PosterLink      string `json:"posterLink,omitempty"`
	LocalPosterPath string `json:"localPosterPath,omitempty"`
	TrackSelection
}

// CanResume reports whether playback should continue from Position.
func (e HistoryEntry) CanResume() bool {
	return e.Duration > 0 && e.Position > 0
}

// AiCacheItem is one reconciled recommendation as persisted.
type AiCacheItem struct {
	Title      string `json:"title"`
	Link       string `json:"link"`
	PosterLink string `json:"posterLink,omitempty"`
	BaseName   string `json:"baseName"`
}

// AiCache is the persisted result of the last successful reconciliation.
// Timestamp is epoch milliseconds. A cache with no items is never stored.
type AiCache struct {
	Timestamp int64         `json:"timestamp"`
	Items     []AiCacheItem `json:"items"`
}

// Candidates converts cached items back into match candidates.
func (c AiCache) Candidates() []MatchCandidate {
	out := make([]MatchCandidate, 0, len(c.Items))
	for _, it := range c.Items {
		out = append(out, MatchCandidate{
			Title:      it.Title,
			Link:       it.Link,
			PosterLink: it.PosterLink,
			BaseName:   it.BaseName,
		})
	}
	return out
}

// NewAiCache builds a cache document from reconciled candidates.
func NewAiCache(timestampMs int64, items []MatchCandidate) AiCache {
	cache := AiCache{Timestamp: timestampMs, Items: make([]AiCacheItem, 0, len(items))}
	for _, c := range items {
		cache.Items = append(cache.Items, AiCacheItem{
			Title:      c.Title,
			Link:       c.Link,
			PosterLink: c.PosterLink,
			BaseName:   c.BaseName,
		})
	}
	return cache
}
