package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mmcdole/reel/internal/catalog"
	"github.com/mmcdole/reel/internal/domain"
)

const progressInterval = 300 * time.Millisecond

// Catalog status messages.
const (
	StatusCatalogChecking    = "Checking database..."
	StatusCatalogDownloading = "Downloading database..."
	StatusCatalogUpdated     = "Database updated."
	StatusCatalogKeptLocal   = "Database update failed, using the local copy."
)

// EnsureCatalog makes sure a usable catalog is present. A missing catalog is
// downloaded; an existing one is replaced only when the published version
// differs from the local one. A failed update keeps the local catalog.
func (s *Service) EnsureCatalog(ctx context.Context) error {
	if s.catalog == nil {
		return domain.ErrCatalogUnavailable
	}
	s.update(func(v *View) {
		v.CatalogBusy = true
		v.CatalogProgress = StatusCatalogChecking
	})
	defer s.update(func(v *View) {
		v.CatalogBusy = false
		v.CatalogProgress = ""
		v.CatalogReady = s.catalogReady()
	})

	ready := s.catalog.Ready()
	local := ""
	if s.versions != nil {
		local = s.versions.LocalCatalogVersion()
	}

	var remote string
	remoteErr := errors.New("no version source")
	if s.remoteVersion != nil {
		remote, remoteErr = s.remoteVersion(ctx)
	}
	if remoteErr != nil {
		s.logger.Warn("catalog version unavailable", "error", remoteErr)
	}

	if !catalog.NeedsDownload(ready, local, remote, remoteErr) {
		s.logger.Info("catalog is current", "version", local)
		return nil
	}
	if s.downloader == nil || s.catalogURL == "" {
		if ready {
			return nil
		}
		s.setStatus(fmt.Sprintf("Database download failed: %v", domain.ErrCatalogUnavailable))
		return domain.ErrCatalogUnavailable
	}

	s.logger.Info("downloading catalog", "local", local, "remote", remote, "present", ready)
	err := s.downloader.Download(ctx, s.catalogURL, s.catalog.Path(), s.progressReporter())
	if err != nil {
		s.logger.Error("catalog download failed", "error", err)
		if ready {
			s.setStatus(StatusCatalogKeptLocal)
			return nil
		}
		s.setStatus(fmt.Sprintf("Database download failed: %v", err))
		return err
	}

	if err := s.catalog.Reload(); err != nil {
		s.logger.Error("failed to open downloaded catalog", "error", err)
		s.setStatus(fmt.Sprintf("Database download failed: %v", err))
		return err
	}
	if s.matcher != nil {
		s.matcher.Invalidate()
	}
	if remote != "" && s.versions != nil {
		if err := s.versions.SaveCatalogVersion(remote); err != nil {
			s.logger.Error("failed to save catalog version", "error", err)
		}
	}
	s.setStatus(StatusCatalogUpdated)
	return nil
}

// progressReporter turns byte counts into throttled progress text.
func (s *Service) progressReporter() domain.ProgressFunc {
	var (
		mu      sync.Mutex
		last    time.Time
		lastPct = -1
	)
	return func(downloaded, total int64) {
		mu.Lock()
		now := s.now()
		pct := -1
		if total > 0 {
			pct = int(downloaded * 100 / total)
		}
		throttled := now.Sub(last) < progressInterval
		switch {
		case pct >= 0 && pct == lastPct:
			mu.Unlock()
			return
		case throttled && pct != 100:
			mu.Unlock()
			return
		}
		last, lastPct = now, pct
		mu.Unlock()

		text := ProgressText(downloaded, total)
		s.update(func(v *View) { v.CatalogProgress = text })
	}
}

// ProgressText renders download progress: a percentage when the total is
// known, megabytes otherwise.
func ProgressText(downloaded, total int64) string {
	if total > 0 {
		pct := min(downloaded*100/total, 100)
		return fmt.Sprintf("%s %d%%", StatusCatalogDownloading, pct)
	}
	return fmt.Sprintf("%s %.1fMB", StatusCatalogDownloading, float64(downloaded)/(1024*1024))
}
