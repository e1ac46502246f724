package poster

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/mozillazg/go-unidecode"
	"github.com/spf13/afero"
)

const (
	fileTimeout  = 20 * time.Second
	maxImageSize = 10 << 20
)

var unsafeFileChars = regexp.MustCompile(`[^a-z0-9]+`)

// FileCache stores poster images on disk as <dir>/<key>.jpg.
type FileCache struct {
	fs     afero.Fs
	dir    string
	client *http.Client
	logger *slog.Logger
}

// NewFileCache creates a file cache rooted at dir.
func NewFileCache(fs afero.Fs, dir string, logger *slog.Logger) *FileCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileCache{
		fs:     fs,
		dir:    dir,
		client: &http.Client{Timeout: fileTimeout},
		logger: logger,
	}
}

// FileKey converts a title into a file-system safe name.
func FileKey(key string) string {
	safe := strings.ToLower(unidecode.Unidecode(key))
	safe = unsafeFileChars.ReplaceAllString(safe, "_")
	return strings.Trim(safe, "_")
}

func (f *FileCache) pathFor(key string) string {
	return filepath.Join(f.dir, FileKey(key)+".jpg")
}

// LocalPath returns the cached image path for key, if present.
func (f *FileCache) LocalPath(key string) (string, bool) {
	if FileKey(key) == "" {
		return "", false
	}
	path := f.pathFor(key)
	info, err := f.fs.Stat(path)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return "", false
	}
	return path, true
}

// Download saves the image at url under key and returns its local path.
// file:// URLs are already local and are returned unchanged.
func (f *FileCache) Download(ctx context.Context, url, key string) (string, error) {
	url = strings.TrimSpace(url)
	if url == "" || FileKey(key) == "" {
		return "", fmt.Errorf("poster download: empty url or key")
	}
	if strings.HasPrefix(url, "file://") {
		return url, nil
	}

	if err := f.fs.MkdirAll(f.dir, 0o755); err != nil {
		return "", err
	}
	path := f.pathFor(key)
	tmp := path + ".tmp"
	defer f.fs.Remove(tmp)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("poster download: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize))
	if err != nil {
		return "", err
	}
	if len(body) == 0 {
		return "", fmt.Errorf("poster download: empty body")
	}
	if mime := mimetype.Detect(body); !strings.HasPrefix(mime.String(), "image/") {
		return "", fmt.Errorf("poster download: not an image (%s)", mime.String())
	}

	if err := afero.WriteFile(f.fs, tmp, body, 0o644); err != nil {
		return "", err
	}
	if err := f.fs.Rename(tmp, path); err != nil {
		return "", err
	}
	f.logger.Debug("poster saved", "key", key, "path", path)
	return path, nil
}

// Clear removes every cached image.
func (f *FileCache) Clear() error {
	return f.fs.RemoveAll(f.dir)
}
