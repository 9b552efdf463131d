// Package media resolves installation media to local files through a
// content-addressed download cache.
//
// Cache entries are keyed by the digest of their source URL, so repeated
// builds of the same template hit the cache instead of the mirror. Entries
// are verified against their published checksum on every resolve; a
// corrupted entry is discarded and fetched again.
package media

import (
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/kdomanski/iso9660"
)

// Format identifies what kind of media a source provides.
type Format string

const (
	FormatISO  Format = "iso"
	FormatQCOW Format = "qcow2"
	FormatRaw  Format = "raw"
)

// Source identifies one piece of installation media.
type Source struct {
	URL string

	// Checksum is "<algo>:<hex>" with algo sha256 or sha1, matching how
	// mirrors publish them. "none" or empty skips verification.
	Checksum string

	Format Format
}

// Cache is a content-addressed store of downloaded media.
type Cache struct {
	dir string
}

// NewCache opens (creating if needed) a cache rooted at dir. An empty dir
// places the cache under the user cache directory.
func NewCache(dir string) (*Cache, error) {
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate user cache directory: %w", err)
		}
		dir = filepath.Join(base, "smelter")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media cache at %s: %w", dir, err)
	}
	return &Cache{dir: dir}, nil
}

// Get returns a local path for the source, downloading it on a cache miss.
// The returned file has passed checksum verification and, for ISO sources,
// a structural readability check.
func (c *Cache) Get(ctx context.Context, src Source) (string, error) {
	key := sha256.Sum256([]byte(src.URL))
	path := filepath.Join(c.dir, hex.EncodeToString(key[:]))

	if _, err := os.Stat(path); err == nil {
		if err := verifyChecksum(path, src.Checksum); err == nil {
			log.Printf("Media cache hit: %s", src.URL)
			return path, nil
		}
		log.Printf("Cached media failed verification, refetching: %s", src.URL)
		if err := os.Remove(path); err != nil {
			return "", fmt.Errorf("failed to discard corrupt cache entry: %w", err)
		}
	}

	if err := c.download(ctx, src.URL, path); err != nil {
		return "", err
	}
	if err := verifyChecksum(path, src.Checksum); err != nil {
		return "", err
	}
	if src.Format == FormatISO {
		if err := verifyISO(path); err != nil {
			return "", err
		}
	}
	return path, nil
}

// download fetches url into path through a temp file, so partial downloads
// never appear as cache entries.
func (c *Cache) download(ctx context.Context, url, path string) error {
	log.Printf("Downloading media: %s", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build media request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("media download returned %s for %s", resp.Status, url)
	}

	tmp, err := os.CreateTemp(c.dir, "download-*")
	if err != nil {
		return fmt.Errorf("failed to create download temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("media download interrupted: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to finish download: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to commit download to cache: %w", err)
	}
	return nil
}

// verifyChecksum checks path against an "<algo>:<hex>" checksum. "none" and
// empty checksums pass unconditionally.
func verifyChecksum(path, checksum string) error {
	if checksum == "" || checksum == "none" {
		return nil
	}

	algo, want, ok := strings.Cut(checksum, ":")
	if !ok {
		return fmt.Errorf("malformed checksum %q, want algo:hex", checksum)
	}

	var h hash.Hash
	switch algo {
	case "sha256":
		h = sha256.New()
	case "sha1":
		h = sha1.New()
	default:
		return fmt.Errorf("unsupported checksum algorithm %q", algo)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open media for verification: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("failed to hash media: %w", err)
	}
	got := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(got, want) {
		return fmt.Errorf("media checksum mismatch: got %s:%s, want %s", algo, got, checksum)
	}
	return nil
}

// verifyISO confirms the file is a readable ISO-9660 image before a build
// attaches it as install media.
func verifyISO(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open ISO: %w", err)
	}
	defer f.Close()

	img, err := iso9660.OpenImage(f)
	if err != nil {
		return fmt.Errorf("media is not a valid ISO-9660 image: %w", err)
	}
	root, err := img.RootDir()
	if err != nil {
		return fmt.Errorf("ISO root directory unreadable: %w", err)
	}
	log.Printf("Verified ISO media (volume root: %s)", root.Name())
	return nil
}
