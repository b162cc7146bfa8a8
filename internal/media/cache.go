// Package media deduplicates and persists fetched remote media so
// outbound adapters can upload by file path.
package media

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Cache stores downloads under dir keyed by md5(url).
type Cache struct {
	dir    string
	client *http.Client
}

func NewCache(dir string) *Cache {
	return &Cache{
		dir:    dir,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Fetch downloads url into the cache and returns the local path. A second
// fetch of the same url returns the cached file without a network
// round-trip.
func (c *Cache) Fetch(ctx context.Context, url string) (string, error) {
	key := fmt.Sprintf("%x", md5.Sum([]byte(url)))

	if matches, _ := filepath.Glob(filepath.Join(c.dir, key+"*")); len(matches) > 0 {
		return matches[0], nil
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %s", url, resp.Status)
	}

	path := filepath.Join(c.dir, key+extForContentType(resp.Header.Get("Content-Type")))
	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create cache file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("write cache file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", err
	}
	return path, nil
}

// extForContentType maps a response Content-Type to a file extension.
// JPEG is pinned to .jpg; unknown image types fall back to the subtype.
func extForContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	switch mediaType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	if idx := strings.IndexByte(mediaType, '/'); idx >= 0 && idx+1 < len(mediaType) {
		return "." + mediaType[idx+1:]
	}
	return ""
}
