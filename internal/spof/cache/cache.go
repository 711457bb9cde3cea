// Package cache persists external API responses between runs in a bbolt file,
// expiring entries after a fixed TTL.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"
	"k8s.io/utils/clock"
)

const (
	fileName   = "spof.db"
	bucketName = "responses"
)

// ErrLocked is returned by Open when another process holds the database.
var ErrLocked = errors.New("cache is in use by another process")

// entry is the stored envelope around a cached value.
type entry struct {
	Key      string          `json:"key"`
	CachedAt time.Time       `json:"cached_at"`
	Value    json.RawMessage `json:"value"`
}

// Stats describes the cache contents.
type Stats struct {
	Entries   int     `json:"entries"`
	SizeBytes int64   `json:"size_bytes"`
	SizeMB    float64 `json:"size_mb"`
	Enabled   bool    `json:"enabled"`
	Path      string  `json:"path"`
}

// Cache is a TTL key/value store safe for concurrent use.
type Cache struct {
	db      *bolt.DB
	path    string
	ttl     time.Duration
	clock   clock.PassiveClock
	logger  *slog.Logger
	enabled atomic.Bool
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock sets the time source used for TTL checks.
func WithClock(clk clock.PassiveClock) Option {
	return func(c *Cache) { c.clock = clk }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// Path returns the database file used for a cache directory.
func Path(dir string) string {
	return filepath.Join(dir, fileName)
}

// Open opens (creating if needed) the cache database in dir.
func Open(dir string, ttl time.Duration, opts ...Option) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	c := &Cache{
		path:   Path(dir),
		ttl:    ttl,
		clock:  clock.RealClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	db, err := bolt.Open(c.path, 0o600, &bolt.Options{Timeout: time.Second})
	if errors.Is(err, bolt.ErrTimeout) {
		return nil, fmt.Errorf("opening cache %s: %w", c.path, ErrLocked)
	}
	if err != nil {
		return nil, fmt.Errorf("opening cache %s: %w", c.path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache bucket: %w", err)
	}

	c.db = db
	c.enabled.Store(true)
	return c, nil
}

// Close releases the database file.
func (c *Cache) Close() error {
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("closing cache: %w", err)
	}
	return nil
}

// Get decodes the cached value for key into v. It reports false on a miss,
// when the entry has expired, or when the cache is disabled. Expired and
// unreadable entries are removed.
func (c *Cache) Get(key string, v any) (bool, error) {
	if !c.enabled.Load() {
		return false, nil
	}

	var raw []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket([]byte(bucketName)).Get([]byte(key)); b != nil {
			raw = append([]byte(nil), b...)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("reading cache entry %s: %w", key, err)
	}
	if raw == nil {
		c.logger.Debug("cache miss", "key", key)
		return false, nil
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		c.logger.Warn("invalid cache entry", "key", key, "error", err)
		return false, c.delete(key)
	}
	if c.clock.Since(e.CachedAt) > c.ttl {
		c.logger.Debug("cache expired", "key", key)
		return false, c.delete(key)
	}
	if err := json.Unmarshal(e.Value, v); err != nil {
		c.logger.Warn("invalid cache entry", "key", key, "error", err)
		return false, c.delete(key)
	}

	c.logger.Debug("cache hit", "key", key)
	return true, nil
}

// Set stores v under key.
func (c *Cache) Set(key string, v any) error {
	if !c.enabled.Load() {
		return nil
	}

	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding cache value %s: %w", key, err)
	}
	data, err := json.Marshal(entry{Key: key, CachedAt: c.clock.Now(), Value: value})
	if err != nil {
		return fmt.Errorf("encoding cache entry %s: %w", key, err)
	}

	err = c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("writing cache entry %s: %w", key, err)
	}
	c.logger.Debug("cached", "key", key)
	return nil
}

func (c *Cache) delete(key string) error {
	err := c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("deleting cache entry %s: %w", key, err)
	}
	return nil
}

// Clear removes every entry and returns how many there were.
func (c *Cache) Clear() (int, error) {
	var n int
	err := c.db.Update(func(tx *bolt.Tx) error {
		n = count(tx.Bucket([]byte(bucketName)))
		if err := tx.DeleteBucket([]byte(bucketName)); err != nil {
			return err
		}
		_, err := tx.CreateBucket([]byte(bucketName))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("clearing cache: %w", err)
	}
	c.logger.Info("cleared cache", "entries", n)
	return n, nil
}

// Stats reports entry count and database size.
func (c *Cache) Stats() (Stats, error) {
	s := Stats{Enabled: c.enabled.Load(), Path: c.path}
	err := c.db.View(func(tx *bolt.Tx) error {
		s.Entries = count(tx.Bucket([]byte(bucketName)))
		s.SizeBytes = tx.Size()
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("reading cache stats: %w", err)
	}
	s.SizeMB = float64(s.SizeBytes) / 1024 / 1024
	return s, nil
}

func count(b *bolt.Bucket) int {
	n := 0
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		n++
	}
	return n
}

// Disable turns Get and Set into no-ops.
func (c *Cache) Disable() {
	c.enabled.Store(false)
	c.logger.Info("cache disabled")
}

// Enable reverses Disable.
func (c *Cache) Enable() {
	c.enabled.Store(true)
}
