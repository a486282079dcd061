package render

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"reveal-challenge-service/internal/domain"
)

// loadTimeout bounds a shared fetch once it no longer follows any caller.
const loadTimeout = 30 * time.Second

// Loader fetches and decodes a source image by asset reference.
type Loader interface {
	LoadImage(ctx context.Context, ref string) (image.Image, error)
}

// Cache keeps decoded sources for the process lifetime. Sources are immutable
// once fetched, so entries are never invalidated; failed loads are not cached
// and are retried by the next caller.
type Cache struct {
	loader Loader
	sf     singleflight.Group

	mu      sync.RWMutex
	sources map[string]image.Image
}

func NewCache(loader Loader) *Cache {
	return &Cache{
		loader:  loader,
		sources: make(map[string]image.Image),
	}
}

// Get returns a cached source without loading.
func (c *Cache) Get(ref string) (image.Image, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	img, ok := c.sources[ref]
	return img, ok
}

// Load returns the cached source or fetches it once for concurrent callers.
// The fetch is detached from the caller that started it; ctx only bounds how
// long this caller waits, so one caller giving up never fails the others.
func (c *Cache) Load(ctx context.Context, ref string) (image.Image, error) {
	if img, ok := c.Get(ref); ok {
		return img, nil
	}
	ch := c.sf.DoChan(ref, func() (interface{}, error) {
		if img, ok := c.Get(ref); ok {
			return img, nil
		}
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		img, err := c.loader.LoadImage(loadCtx, ref)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.sources[ref] = img
		c.mu.Unlock()
		return img, nil
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrImageLoad, ref, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrImageLoad, ref, res.Err)
		}
		return res.Val.(image.Image), nil
	}
}
