package catalog

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/gabriel-vasile/mimetype"
	"github.com/mmcdole/reel/internal/domain"
	"github.com/spf13/afero"
)

const (
	sqliteMIME = "application/vnd.sqlite3"
	zipMIME    = "application/zip"

	defaultAttempts      = 3
	defaultBaseDelay     = 1500 * time.Millisecond
	defaultStallTimeout  = 30 * time.Second
	responseHeaderTimeout = 30 * time.Second
)

// ErrStalled is returned for an attempt that received no bytes for StallTimeout.
var ErrStalled = errors.New("download stalled")

// Downloader fetches a catalog (raw SQLite or zipped) and commits it over
// the previous one only after it validates. A failed download never touches
// the existing catalog.
type Downloader struct {
	fs     afero.Fs
	client *http.Client
	logger *slog.Logger

	// Attempts bounds the number of tries; BaseDelay*(n+1) is slept before retry n+1.
	Attempts  uint
	BaseDelay time.Duration
	// StallTimeout aborts an attempt that has made no progress for this long.
	StallTimeout time.Duration
}

// NewDownloader creates a downloader writing through fs.
func NewDownloader(fs afero.Fs, client *http.Client, logger *slog.Logger) *Downloader {
	if client == nil {
		// No overall timeout: a large catalog on a slow link is fine as long
		// as bytes keep arriving, which the stall watchdog enforces.
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = responseHeaderTimeout
		client = &http.Client{Transport: transport}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{
		fs:        fs,
		client:    client,
		logger:    logger,
		Attempts:     defaultAttempts,
		BaseDelay:    defaultBaseDelay,
		StallTimeout: defaultStallTimeout,
	}
}

// Download fetches url into dest. onProgress may be nil.
func (d *Downloader) Download(ctx context.Context, url, dest string, onProgress domain.ProgressFunc) error {
	tmpDB := dest + ".tmp"
	tmpArchive := dest + ".tmp.zip"

	err := retry.Do(
		func() error {
			d.cleanup(tmpDB, tmpArchive)
			return d.attempt(ctx, url, dest, tmpDB, tmpArchive, onProgress)
		},
		retry.Context(ctx),
		retry.Attempts(d.Attempts),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return d.BaseDelay * time.Duration(n+1)
		}),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			d.logger.Warn("catalog download failed, retrying", "attempt", n+1, "error", err)
		}),
	)
	d.cleanup(tmpDB, tmpArchive)
	if err != nil {
		return fmt.Errorf("download catalog: %w", err)
	}
	return nil
}

func (d *Downloader) attempt(ctx context.Context, url, dest, tmpDB, tmpArchive string, onProgress domain.ProgressFunc) error {
	if err := d.fs.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	attemptCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	watchdog := newStallWatchdog(d.StallTimeout, func() { cancel(ErrStalled) })
	defer watchdog.stop()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return retry.Unrecoverable(err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return stallCause(attemptCtx, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body := &watchedReader{r: resp.Body, watchdog: watchdog}
	if err := d.save(tmpArchive, body, resp.ContentLength, onProgress); err != nil {
		return stallCause(attemptCtx, err)
	}
	watchdog.stop()

	mime, err := d.detect(tmpArchive)
	if err != nil {
		return err
	}
	if isKind(mime, zipMIME) {
		if err := d.extract(tmpArchive, tmpDB); err != nil {
			return err
		}
	} else if err := d.fs.Rename(tmpArchive, tmpDB); err != nil {
		return err
	}

	mime, err = d.detect(tmpDB)
	if err != nil {
		return err
	}
	if !isKind(mime, sqliteMIME) {
		_ = d.fs.Remove(tmpDB)
		return fmt.Errorf("%w: detected %s", domain.ErrInvalidCatalog, mime.String())
	}

	if err := d.fs.Rename(tmpDB, dest); err != nil {
		return fmt.Errorf("commit catalog: %w", err)
	}
	d.logger.Info("catalog downloaded", "dest", dest)
	return nil
}

func (d *Downloader) save(path string, body io.Reader, total int64, onProgress domain.ProgressFunc) error {
	f, err := d.fs.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var w io.Writer = f
	if onProgress != nil {
		if total <= 0 {
			total = -1
		}
		w = &progressWriter{w: f, total: total, report: onProgress}
	}
	if _, err := io.Copy(w, body); err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	return f.Sync()
}

// extract copies the first entry that looks like the catalog out of the archive.
func (d *Downloader) extract(archive, out string) error {
	f, err := d.fs.Open(archive)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidCatalog, err)
	}

	for _, entry := range zr.File {
		name := strings.ToLower(entry.Name)
		if entry.FileInfo().IsDir() || !(strings.HasSuffix(name, ".db") || strings.Contains(name, "movie_database")) {
			continue
		}
		rc, err := entry.Open()
		if err != nil {
			return err
		}
		defer rc.Close()

		dst, err := d.fs.Create(out)
		if err != nil {
			return err
		}
		defer dst.Close()
		if _, err := io.Copy(dst, rc); err != nil {
			return fmt.Errorf("extract %s: %w", entry.Name, err)
		}
		return nil
	}
	return fmt.Errorf("%w: no database entry in archive", domain.ErrInvalidCatalog)
}

func (d *Downloader) detect(path string) (*mimetype.MIME, error) {
	f, err := d.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return mimetype.DetectReader(f)
}

func (d *Downloader) cleanup(paths ...string) {
	for _, p := range paths {
		if ok, _ := afero.Exists(d.fs, p); ok {
			_ = d.fs.Remove(p)
		}
	}
}

// isKind reports whether m is target or a subtype of it (e.g. a docx is a zip).
func isKind(m *mimetype.MIME, target string) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is(target) {
			return true
		}
	}
	return false
}

type progressWriter struct {
	w          io.Writer
	downloaded int64
	total      int64
	report     domain.ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.downloaded += int64(n)
	p.report(p.downloaded, p.total)
	return n, err
}

// stallCause replaces err with ErrStalled when the watchdog cancelled the attempt.
func stallCause(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); errors.Is(cause, ErrStalled) {
		return fmt.Errorf("%w after %v", ErrStalled, err)
	}
	return err
}

// stallWatchdog fires once when kick has not been called for timeout.
type stallWatchdog struct {
	timer   *time.Timer
	timeout time.Duration
}

func newStallWatchdog(timeout time.Duration, fire func()) *stallWatchdog {
	if timeout <= 0 {
		return &stallWatchdog{}
	}
	return &stallWatchdog{timer: time.AfterFunc(timeout, fire), timeout: timeout}
}

func (w *stallWatchdog) kick() {
	if w.timer != nil {
		w.timer.Reset(w.timeout)
	}
}

func (w *stallWatchdog) stop() {
	if w.timer != nil {
		w.timer.Stop()
	}
}

type watchedReader struct {
	r        io.Reader
	watchdog *stallWatchdog
}

func (w *watchedReader) Read(p []byte) (int, error) {
	n, err := w.r.Read(p)
	if n > 0 {
		w.watchdog.kick()
	}
	return n, err
}
