package dataset

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Observer is told about cache outcomes. The metrics middleware implements it.
type Observer interface {
	CacheHit()
	CacheMiss()
	CacheReload(d time.Duration)
}

type nopObserver struct{}

func (nopObserver) CacheHit()                 {}
func (nopObserver) CacheMiss()                {}
func (nopObserver) CacheReload(time.Duration) {}

// Source yields the current snapshot.
type Source interface {
	Get(ctx context.Context) (*Snapshot, error)
}

// Cache is a read-through snapshot cache keyed by the store's content
// version. Every Get costs one version query; the full load only happens
// when the version moved or the cache was invalidated.
type Cache struct {
	loader   *Loader
	observer Observer
	logger   zerolog.Logger

	mu   sync.Mutex
	snap *Snapshot
}

func NewCache(loader *Loader, observer Observer, logger zerolog.Logger) *Cache {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Cache{loader: loader, observer: observer, logger: logger}
}

// Get returns the cached snapshot if the store version is unchanged,
// otherwise reloads.
func (c *Cache) Get(ctx context.Context) (*Snapshot, error) {
	version, err := c.loader.Version(ctx)
	if err != nil {
		return nil, fmt.Errorf("check store version: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snap != nil && c.snap.Version == version {
		c.observer.CacheHit()
		return c.snap, nil
	}
	c.observer.CacheMiss()

	start := time.Now()
	snap, err := c.loader.Load(ctx, version)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	c.observer.CacheReload(elapsed)
	c.logger.Info().
		Str("version", string(version)).
		Int("observations", len(snap.Observations)).
		Int("skipped", snap.Skipped).
		Dur("elapsed", elapsed).
		Msg("dataset reloaded")

	c.snap = snap
	return snap, nil
}

// Invalidate drops the cached snapshot; the next Get reloads.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.snap = nil
	c.mu.Unlock()
	c.logger.Info().Msg("dataset cache invalidated")
}

// Static is a Source that always returns the same snapshot.
type Static struct {
	Snapshot *Snapshot
	Err      error
}

func (s Static) Get(context.Context) (*Snapshot, error) { return s.Snapshot, s.Err }
