package questionset

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/abhisek/examrun/internal/module"
)

// DefaultPrefetchConcurrency bounds parallel loads during Prefetch.
const DefaultPrefetchConcurrency = 4

// CachedLoader caches sets with a TTL so switching between components in a
// retake does not hit the disk again. Concurrent loads of the same set are
// collapsed.
type CachedLoader struct {
	loader      Loader
	ttl         time.Duration
	clock       func() time.Time
	sf          singleflight.Group
	concurrency int

	mu    sync.RWMutex
	cache map[string]cachedSet
}

type cachedSet struct {
	data      *Data
	expiresAt time.Time // zero: never
}

// NewCachedLoader wraps loader. A non-positive ttl keeps entries for the
// life of the process.
func NewCachedLoader(loader Loader, ttl time.Duration) *CachedLoader {
	return &CachedLoader{
		loader:      loader,
		ttl:         ttl,
		clock:       time.Now,
		concurrency: DefaultPrefetchConcurrency,
		cache:       make(map[string]cachedSet),
	}
}

func (c *CachedLoader) Load(ctx context.Context, typ string, setID int) (*Data, error) {
	key := cacheKey(typ, setID)
	if d, ok := c.lookup(key); ok {
		return d, nil
	}

	// The shared load ignores cancellation; each caller stops waiting when
	// its own ctx ends.
	ch := c.sf.DoChan(key, func() (interface{}, error) {
		if d, ok := c.lookup(key); ok {
			return d, nil
		}
		d, err := c.loader.Load(context.WithoutCancel(ctx), typ, setID)
		if err != nil {
			return nil, err
		}

		entry := cachedSet{data: d}
		if ttl := c.ttlWithJitter(); ttl > 0 {
			entry.expiresAt = c.clock().Add(ttl)
		}
		c.mu.Lock()
		c.cache[key] = entry
		c.mu.Unlock()
		return d, nil
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*Data), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *CachedLoader) lookup(key string) (*Data, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[key]
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.IsZero() && !entry.expiresAt.After(c.clock()) {
		return nil, false
	}
	return entry.data, true
}

// Prefetch loads every distinct set in specs in parallel. It returns the
// first error; sets loaded before it stay cached.
func (c *CachedLoader) Prefetch(ctx context.Context, specs []module.ComponentSpec) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		key := cacheKey(spec.Type, spec.SetID)
		if seen[key] {
			continue
		}
		seen[key] = true

		g.Go(func() error {
			_, err := c.Load(gctx, spec.Type, spec.SetID)
			return err
		})
	}
	return g.Wait()
}

// Forget drops every cached set.
func (c *CachedLoader) Forget() {
	c.mu.Lock()
	c.cache = make(map[string]cachedSet)
	c.mu.Unlock()
}

func (c *CachedLoader) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(rand.Int64N(jitterMax+1))
}
