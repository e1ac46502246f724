package history

import (
	"fmt"
	"time"

	"github.com/mmcdole/reel/internal/domain"
)

// Describe renders the info column for an entry: the playback position when
// the duration is known, "Player" otherwise, followed by how long ago it was
// last played.
func Describe(e domain.HistoryEntry, now time.Time) string {
	info := "Player"
	if e.Duration > 0 {
		info = FormatClock(e.Position) + " / " + FormatClock(e.Duration)
	}
	if e.LastPlayedTs > 0 {
		return info + " | " + Ago(e.LastPlayedTs, now)
	}
	return info
}

// FormatClock formats seconds as MM:SS, or HH:MM:SS from one hour up.
func FormatClock(seconds int64) string {
	if seconds <= 0 {
		return "00:00"
	}
	h := seconds / 3600
	m := (seconds / 60) % 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// Ago renders an epoch-seconds timestamp relative to now.
func Ago(ts int64, now time.Time) string {
	if ts <= 0 {
		return ""
	}
	delta := now.Unix() - ts
	switch {
	case delta < 60:
		return "just now"
	case delta < 3600:
		return fmt.Sprintf("%d min ago", delta/60)
	case delta < 86400:
		if h := delta / 3600; h != 1 {
			return fmt.Sprintf("%d hours ago", h)
		}
		return "1 hour ago"
	default:
		if d := delta / 86400; d != 1 {
			return fmt.Sprintf("%d days ago", d)
		}
		return "1 day ago"
	}
}
