// Package catalog provides read-only access to the movie catalog database
// and the download/version lifecycle that keeps it current.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mmcdole/reel/internal/domain"
	_ "modernc.org/sqlite"
)

const (
	rowsQuery       = `SELECT name, full_name, year, link, poster_link FROM Movies`
	rowsByYearQuery = rowsQuery + ` WHERE year = ?`
	posterQuery     = `SELECT poster_link FROM Movies WHERE name = ? COLLATE NOCASE AND poster_link IS NOT NULL AND poster_link != '' LIMIT 1`
	namesQuery      = `SELECT DISTINCT name FROM Movies WHERE name IS NOT NULL AND name != ''`
)

// Store is a read-only handle on the catalog SQLite file.
// A missing file is not an error: the store simply reports !Ready until
// Reload succeeds after a download.
type Store struct {
	path   string
	logger *slog.Logger

	mu sync.RWMutex
	db *sql.DB
}

// Open returns a store for the catalog at path, opening it if it exists.
func Open(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{path: path, logger: logger}
	if err := s.Reload(); err != nil && !errors.Is(err, domain.ErrCatalogUnavailable) {
		logger.Warn("failed to open catalog", "path", path, "error", err)
	}
	return s
}

// Path returns the catalog file location.
func (s *Store) Path() string {
	return s.path
}

// Ready reports whether the catalog is open and queryable.
func (s *Store) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db != nil
}

// Reload closes the current handle, if any, and reopens the catalog file.
// Called after a new catalog has been committed over the old one.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		_ = s.db.Close()
		s.db = nil
	}

	if _, err := os.Stat(s.path); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCatalogUnavailable, err)
	}

	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)", s.path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping catalog: %w", err)
	}

	s.db = db
	s.logger.Info("catalog opened", "path", s.path)
	return nil
}

// Rows returns every catalog row, or only those whose year equals year
// exactly when year is non-empty. Rows without a link are skipped.
func (s *Store) Rows(ctx context.Context, year string) ([]domain.CatalogRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, domain.ErrCatalogUnavailable
	}

	var (
		rows *sql.Rows
		err  error
	)
	if year = strings.TrimSpace(year); year != "" {
		rows, err = s.db.QueryContext(ctx, rowsByYearQuery, year)
	} else {
		rows, err = s.db.QueryContext(ctx, rowsQuery)
	}
	if err != nil {
		return nil, fmt.Errorf("query catalog: %w", err)
	}
	defer rows.Close()

	var out []domain.CatalogRow
	for rows.Next() {
		var name, fullName, yr, link, poster sql.NullString
		if err := rows.Scan(&name, &fullName, &yr, &link, &poster); err != nil {
			return nil, fmt.Errorf("scan catalog row: %w", err)
		}
		if strings.TrimSpace(link.String) == "" {
			continue
		}
		out = append(out, domain.CatalogRow{
			Name:       name.String,
			FullName:   fullName.String,
			Year:       yr.String,
			Link:       link.String,
			PosterLink: poster.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog: %w", err)
	}
	return out, nil
}

// PosterByBaseName returns the first non-blank poster of a row whose name
// equals baseName, ignoring case. An empty string means none was found.
func (s *Store) PosterByBaseName(ctx context.Context, baseName string) (string, error) {
	baseName = strings.TrimSpace(baseName)
	if baseName == "" {
		return "", nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return "", domain.ErrCatalogUnavailable
	}

	var poster string
	err := s.db.QueryRowContext(ctx, posterQuery, baseName).Scan(&poster)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query poster: %w", err)
	}
	return strings.TrimSpace(poster), nil
}

// Names returns the distinct catalog names.
func (s *Store) Names(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, domain.ErrCatalogUnavailable
	}

	rows, err := s.db.QueryContext(ctx, namesQuery)
	if err != nil {
		return nil, fmt.Errorf("query names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
