package catalog

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmcdole/reel/internal/domain"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeSQLite() []byte {
	return append([]byte("SQLite format 3\x00"), bytes.Repeat([]byte{0}, 512)...)
}

func zipped(t *testing.T, name string, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("readme.txt")
	require.NoError(t, err)
	_, _ = w.Write([]byte("catalog"))
	w, err = zw.Create(name)
	require.NoError(t, err)
	_, err = w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newTestDownloader(fs afero.Fs) *Downloader {
	d := NewDownloader(fs, nil, nil)
	d.BaseDelay = time.Millisecond
	return d
}

func TestDownloadRawDatabase(t *testing.T) {
	payload := fakeSQLite()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	var last int64
	err := newTestDownloader(fs).Download(context.Background(), srv.URL+"/movie_database.db", "/data/movie_database.db",
		func(downloaded, total int64) { last = downloaded })
	require.NoError(t, err)

	got, err := afero.ReadFile(fs, "/data/movie_database.db")
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, int64(len(payload)), last)

	for _, tmp := range []string{"/data/movie_database.db.tmp", "/data/movie_database.db.tmp.zip"} {
		exists, _ := afero.Exists(fs, tmp)
		assert.False(t, exists, tmp)
	}
}

func TestDownloadZippedDatabase(t *testing.T) {
	payload := fakeSQLite()
	archive := zipped(t, "export/movie_database.db", payload)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	require.NoError(t, newTestDownloader(fs).Download(context.Background(), srv.URL, "/data/movie_database.db", nil))

	got, err := afero.ReadFile(fs, "/data/movie_database.db")
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestDownloadRetriesThenSucceeds(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write(fakeSQLite())
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	require.NoError(t, newTestDownloader(fs).Download(context.Background(), srv.URL, "/data/movie_database.db", nil))
	assert.Equal(t, int32(3), hits.Load())
}

func TestDownloadInvalidKeepsExistingCatalog(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("<html>rate limited</html>"))
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	previous := fakeSQLite()
	require.NoError(t, afero.WriteFile(fs, "/data/movie_database.db", previous, 0o644))

	err := newTestDownloader(fs).Download(context.Background(), srv.URL, "/data/movie_database.db", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidCatalog)
	assert.Equal(t, int32(3), hits.Load())

	got, err := afero.ReadFile(fs, "/data/movie_database.db")
	require.NoError(t, err)
	assert.Equal(t, previous, got)
}

func TestDownloadZipWithoutDatabase(t *testing.T) {
	archive := zipped(t, "notes.txt", []byte("nothing here"))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	d := newTestDownloader(afero.NewMemMapFs())
	d.Attempts = 1
	err := d.Download(context.Background(), srv.URL, "/data/movie_database.db", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidCatalog)
}

func TestDownloadStalledBodyIsRetriedThenFails(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Length", "1000000")
		_, _ = w.Write([]byte("SQLite format 3\x00"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	d := newTestDownloader(fs)
	d.Attempts = 2
	d.StallTimeout = 100 * time.Millisecond

	done := make(chan error, 1)
	go func() {
		done <- d.Download(context.Background(), srv.URL, "/data/movie_database.db", nil)
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrStalled)
	case <-time.After(5 * time.Second):
		t.Fatal("download did not give up on a stalled body")
	}
	assert.Equal(t, int32(2), hits.Load())

	exists, _ := afero.Exists(fs, "/data/movie_database.db")
	assert.False(t, exists)
}

func TestDownloadSlowButSteadyBodyCompletes(t *testing.T) {
	payload := fakeSQLite()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < len(payload); i += 128 {
			_, _ = w.Write(payload[i:min(i+128, len(payload))])
			w.(http.Flusher).Flush()
			time.Sleep(20 * time.Millisecond)
		}
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	d := newTestDownloader(fs)
	d.StallTimeout = 250 * time.Millisecond

	require.NoError(t, d.Download(context.Background(), srv.URL, "/data/movie_database.db", nil))
	got, err := afero.ReadFile(fs, "/data/movie_database.db")
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}
