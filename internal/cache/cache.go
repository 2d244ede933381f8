package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"scriptreel/internal/config"
	"scriptreel/internal/fingerprint"
	"scriptreel/internal/logging"
	"scriptreel/internal/metrics"
	"scriptreel/internal/services"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Entry maps a request fingerprint to a finished clip.
type Entry struct {
	Fingerprint     string    `json:"fingerprint"`
	RemoteURL       string    `json:"remote_url"`
	LocalPath       string    `json:"local_path"`
	DurationSeconds float64   `json:"duration_seconds"`
	CreatedAt       time.Time `json:"created_at"`
}

// LocalFileExists reports whether the cached clip is still present on disk.
func (e Entry) LocalFileExists() bool {
	if strings.TrimSpace(e.LocalPath) == "" {
		return false
	}
	info, err := os.Stat(e.LocalPath)
	return err == nil && info.Mode().IsRegular()
}

func (e Entry) validate() error {
	if strings.TrimSpace(e.Fingerprint) == "" {
		return &services.ValidationError{Field: "fingerprint", Reason: "must not be empty"}
	}
	if strings.TrimSpace(e.LocalPath) == "" {
		return &services.ValidationError{Field: "local_path", Reason: "must not be empty"}
	}
	return nil
}

// Size summarizes what the cache holds.
type Size struct {
	Entries int64
	Bytes   int64
}

// Store is implemented by every cache backend. Put is an upsert: at most one entry
// exists per fingerprint and the last writer wins.
type Store interface {
	Get(ctx context.Context, fp string) (Entry, bool, error)
	Put(ctx context.Context, entry Entry) error
	EvictAll(ctx context.Context) error
	SizeEstimate(ctx context.Context) (Size, error)
	Close() error
}

// Stats reports lookup counters since the cache was opened.
type Stats struct {
	Backend string
	Hits    int64
	Misses  int64
	Puts    int64
}

// Cache wraps a backend with counters, metrics, and logging.
type Cache struct {
	backend Store
	name    string
	logger  *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
	puts   atomic.Int64
}

// New wraps backend. name labels metrics and logs.
func New(backend Store, name string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Cache{
		backend: backend,
		name:    name,
		logger:  logging.NewComponentLogger(logger, "cache"),
	}
}

// Open builds the backend selected by cfg.Cache.Backend.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Cache, error) {
	if cfg == nil {
		return nil, errors.New("cache: config is nil")
	}
	var (
		backend Store
		err     error
	)
	switch cfg.Cache.Backend {
	case BackendMemory:
		backend = NewMemory()
	case BackendSQLite, "":
		backend, err = OpenSQLite(ctx, cfg.Cache.Path)
	case BackendRedis:
		backend, err = OpenRedis(ctx, RedisOptions{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			Prefix:   cfg.Cache.RedisPrefix,
		})
	default:
		return nil, services.Wrap(services.ErrConfiguration, "cache", "open",
			fmt.Sprintf("unknown cache backend %q", cfg.Cache.Backend), nil)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "cache", "open",
			fmt.Sprintf("open %s cache", cfg.Cache.Backend), err)
	}
	name := cfg.Cache.Backend
	if name == "" {
		name = BackendSQLite
	}
	return New(backend, name, logger), nil
}

// Backend returns the backend name.
func (c *Cache) Backend() string { return c.name }

// Get looks up fp. A backend error is returned as-is and counted as a miss.
func (c *Cache) Get(ctx context.Context, fp string) (Entry, bool, error) {
	entry, ok, err := c.backend.Get(ctx, fp)
	switch {
	case err != nil:
		c.misses.Add(1)
		metrics.CacheLookups.WithLabelValues(c.name, "error").Inc()
		return Entry{}, false, err
	case ok:
		c.hits.Add(1)
		metrics.CacheLookups.WithLabelValues(c.name, "hit").Inc()
	default:
		c.misses.Add(1)
		metrics.CacheLookups.WithLabelValues(c.name, "miss").Inc()
	}
	c.logger.Debug("cache lookup",
		logging.String(logging.FieldFingerprint, fingerprint.Short(fp)),
		logging.Bool("hit", ok))
	return entry, ok, nil
}

// Put validates and stores entry, stamping CreatedAt when unset.
func (c *Cache) Put(ctx context.Context, entry Entry) error {
	if err := entry.validate(); err != nil {
		return err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := c.backend.Put(ctx, entry); err != nil {
		return err
	}
	c.puts.Add(1)
	metrics.CachePuts.WithLabelValues(c.name).Inc()
	c.logger.Debug("cache entry stored",
		logging.String(logging.FieldFingerprint, fingerprint.Short(entry.Fingerprint)),
		logging.String("local_path", entry.LocalPath))
	return nil
}

// EvictAll removes every entry. Clip files on disk are left alone.
func (c *Cache) EvictAll(ctx context.Context) error {
	if err := c.backend.EvictAll(ctx); err != nil {
		return err
	}
	c.logger.Info("cache cleared", logging.String("backend", c.name))
	return nil
}

// SizeEstimate reports entry count and the bytes of clip files the entries reference.
func (c *Cache) SizeEstimate(ctx context.Context) (Size, error) {
	return c.backend.SizeEstimate(ctx)
}

// Stats returns a snapshot of the lookup counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Backend: c.name,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Puts:    c.puts.Load(),
	}
}

// Close releases the backend.
func (c *Cache) Close() error {
	if c == nil || c.backend == nil {
		return nil
	}
	return c.backend.Close()
}

func fileBytes(path string) int64 {
	if path == "" {
		return 0
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return 0
	}
	return info.Size()
}
