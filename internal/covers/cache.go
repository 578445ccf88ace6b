// Package covers keeps local copies of book thumbnails so the companion API
// can serve them without reaching the image host every time.
package covers

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mrlokans/shelfscan/internal/entities"
)

const (
	filePrefix   = "cover_"
	maxCoverSize = 5 << 20
)

var (
	// ErrNoThumbnail means the book has no thumbnail URL.
	ErrNoThumbnail = errors.New("book has no thumbnail")

	// ErrNotImage means the thumbnail URL did not return an image.
	ErrNotImage = errors.New("thumbnail is not an image")
)

// Cache handles local caching of book thumbnails.
type Cache struct {
	dir        string
	httpClient *http.Client
	userAgent  string
	logger     *slog.Logger
	fetches    singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Cache) {
		c.httpClient = hc
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Cache) {
		c.userAgent = ua
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// New creates a cover cache at dir, creating the directory if needed.
func New(dir string, opts ...Option) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cover dir: %w", err)
	}

	c := &Cache{
		dir:        dir,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userAgent:  "shelfscan",
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Get returns the path of the cached thumbnail for book, downloading it on
// first use. Concurrent requests for the same image share one download.
func (c *Cache) Get(ctx context.Context, book entities.Book) (string, error) {
	if book.Thumbnail == "" {
		return "", ErrNoThumbnail
	}

	base := c.baseName(book)
	if path, ok := c.existing(base); ok {
		return path, nil
	}

	v, err, _ := c.fetches.Do(base, func() (any, error) {
		if path, ok := c.existing(base); ok {
			return path, nil
		}
		return c.fetch(ctx, book.Thumbnail, base)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate removes every cached thumbnail of book.
func (c *Cache) Invalidate(book entities.Book) error {
	matches, err := filepath.Glob(filepath.Join(c.dir, filePrefix+keyHash(book)+"_*"))
	if err != nil {
		return err
	}
	for _, match := range matches {
		if err := os.Remove(match); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// Prune deletes thumbnails of books that are no longer in keep and returns
// how many files were removed.
func (c *Cache) Prune(keep []entities.Book) (int, error) {
	wanted := make(map[string]struct{}, len(keep))
	for _, b := range keep {
		wanted[keyHash(b)] = struct{}{}
	}

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) {
			continue
		}
		hash, _, _ := strings.Cut(strings.TrimPrefix(name, filePrefix), "_")
		if _, ok := wanted[hash]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, name)); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// baseName is the file name without extension: the book identity hash
// followed by the URL hash, so a changed thumbnail URL is fetched again.
func (c *Cache) baseName(book entities.Book) string {
	url := sha256.Sum256([]byte(book.Thumbnail))
	return fmt.Sprintf("%s%s_%x", filePrefix, keyHash(book), url[:8])
}

func keyHash(book entities.Book) string {
	sum := sha256.Sum256([]byte(book.Key()))
	return fmt.Sprintf("%x", sum[:8])
}

func (c *Cache) existing(base string) (string, bool) {
	matches, err := filepath.Glob(filepath.Join(c.dir, base+".*"))
	if err != nil || len(matches) == 0 {
		return "", false
	}
	return matches[0], true
}

func (c *Cache) fetch(ctx context.Context, url, base string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch thumbnail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch thumbnail: status %d", resp.StatusCode)
	}
	ext, ok := extension(resp.Header.Get("Content-Type"))
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotImage, resp.Header.Get("Content-Type"))
	}

	// Write to a temp file in the same directory, then rename.
	tmp, err := os.CreateTemp(c.dir, "tmp_")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpPath)
	}()

	if _, err := io.Copy(tmp, io.LimitReader(resp.Body, maxCoverSize)); err != nil {
		return "", fmt.Errorf("store thumbnail: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	path := filepath.Join(c.dir, base+ext)
	if err := os.Rename(tmpPath, path); err != nil {
		return "", err
	}
	c.logger.Debug("cached thumbnail", "path", path)
	return path, nil
}

func extension(contentType string) (string, bool) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", false
	}
	switch mediaType {
	case "image/jpeg", "image/jpg":
		return ".jpg", true
	case "image/png":
		return ".png", true
	case "image/gif":
		return ".gif", true
	case "image/webp":
		return ".webp", true
	}
	return "", false
}
