// Package cache is a TTL-bound JSON file cache for discovery results. A
// scrape-backed query takes minutes; repeating one inside the freshness
// window should take milliseconds.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// envelopeVersion is bumped when the cached payload shape changes; old
// entries then read as misses.
const envelopeVersion = 1

type envelope struct {
	Version  int             `json:"version"`
	CachedAt time.Time       `json:"cached_at"`
	Data     json.RawMessage `json:"data"`
}

// Cache stores one JSON file per key under a directory.
type Cache struct {
	dir string
	ttl time.Duration
	log *slog.Logger
}

// New creates a cache rooted at dir. Entries older than ttl read as misses;
// ttl <= 0 disables expiry.
func New(dir string, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{dir: dir, ttl: ttl, log: logger}
}

// Key derives a stable cache key from the query identity. Inputs are
// normalized (trimmed, lowercased, sorted) so equivalent queries written
// differently share an entry.
func Key(countries, modules []string, college string) string {
	canon := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, s := range in {
			out = append(out, strings.ToLower(strings.TrimSpace(s)))
		}
		sort.Strings(out)
		return out
	}

	h := sha256.New()
	for _, c := range canon(countries) {
		h.Write([]byte("country:" + c + "\n"))
	}
	for _, m := range canon(modules) {
		h.Write([]byte("module:" + m + "\n"))
	}
	h.Write([]byte("college:" + strings.ToLower(strings.TrimSpace(college)) + "\n"))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// Get loads the entry into dest. Returns false on a miss; absent, expired,
// corrupt, and version-mismatched entries are all misses, never errors.
func (c *Cache) Get(key string, dest any) bool {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return false
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Version != envelopeVersion {
		return false
	}
	if c.ttl > 0 && time.Since(env.CachedAt) > c.ttl {
		return false
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		c.log.Warn("cache: entry payload unreadable", "key", key, "error", err)
		return false
	}
	return true
}

// Put writes the entry atomically.
func (c *Cache) Put(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode value: %w", err)
	}
	env, err := json.Marshal(envelope{
		Version:  envelopeVersion,
		CachedAt: time.Now(),
		Data:     data,
	})
	if err != nil {
		return fmt.Errorf("cache: encode envelope: %w", err)
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("cache: mkdir: %w", err)
	}
	path := c.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, env, 0o644); err != nil {
		return fmt.Errorf("cache: write entry: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("cache: replace entry: %w", err)
	}
	return nil
}

// Invalidate removes one entry. Missing is not an error.
func (c *Cache) Invalidate(key string) error {
	err := os.Remove(c.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("cache: invalidate %s: %w", key, err)
	}
	return nil
}

// Clear removes every entry and returns how many were deleted.
func (c *Cache) Clear() (int, error) {
	entries, err := os.ReadDir(c.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache: read dir: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, e.Name())); err != nil {
			return removed, fmt.Errorf("cache: remove %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}
