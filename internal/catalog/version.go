package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const versionTimeout = 8 * time.Second

// FetchRemoteVersion reads the published catalog version string.
func FetchRemoteVersion(ctx context.Context, client *http.Client, url string) (string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch catalog version: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch catalog version: HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("read catalog version: %w", err)
	}
	version := strings.TrimSpace(string(body))
	if version == "" {
		return "", fmt.Errorf("fetch catalog version: empty response")
	}
	return version, nil
}

// NeedsDownload decides whether the catalog must be (re)downloaded.
// A missing catalog always needs one; an unknown remote version keeps the
// local copy; otherwise any difference from the local version triggers one.
func NeedsDownload(ready bool, local, remote string, remoteErr error) bool {
	if !ready {
		return true
	}
	if remoteErr != nil || remote == "" {
		return false
	}
	return strings.TrimSpace(local) != strings.TrimSpace(remote)
}
