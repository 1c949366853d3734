package cms

import (
	"context"
	"sync"
	"time"
)

type cacheEntry[T any] struct {
	value   T
	expires time.Time
}

// CachedSource memoises list queries of another Source for ttl. Errors are never cached, and
// single-article lookups are served from the cached list when it is warm.
type CachedSource struct {
	next Source
	ttl  time.Duration
	now  func() time.Time

	mu       sync.RWMutex
	articles *cacheEntry[[]Article]
	gallery  *cacheEntry[[]GalleryItem]
}

// NewCachedSource wraps next. A non-positive ttl disables caching.
func NewCachedSource(next Source, ttl time.Duration) *CachedSource {
	return &CachedSource{next: next, ttl: ttl, now: time.Now}
}

// Articles implements Source.
func (c *CachedSource) Articles(ctx context.Context) ([]Article, error) {
	c.mu.RLock()
	entry := c.articles
	c.mu.RUnlock()
	if entry != nil && c.now().Before(entry.expires) {
		return append([]Article(nil), entry.value...), nil
	}

	articles, err := c.next.Articles(ctx)
	if err != nil {
		return nil, err
	}
	if c.ttl > 0 {
		c.mu.Lock()
		c.articles = &cacheEntry[[]Article]{value: append([]Article(nil), articles...), expires: c.now().Add(c.ttl)}
		c.mu.Unlock()
	}
	return articles, nil
}

// Article implements Source.
func (c *CachedSource) Article(ctx context.Context, slug string) (Article, error) {
	c.mu.RLock()
	entry := c.articles
	c.mu.RUnlock()
	if entry != nil && c.now().Before(entry.expires) {
		for _, a := range entry.value {
			if a.Slug == slug {
				return a, nil
			}
		}
	}
	return c.next.Article(ctx, slug)
}

// GalleryItems implements Source.
func (c *CachedSource) GalleryItems(ctx context.Context) ([]GalleryItem, error) {
	c.mu.RLock()
	entry := c.gallery
	c.mu.RUnlock()
	if entry != nil && c.now().Before(entry.expires) {
		return append([]GalleryItem(nil), entry.value...), nil
	}

	items, err := c.next.GalleryItems(ctx)
	if err != nil {
		return nil, err
	}
	if c.ttl > 0 {
		c.mu.Lock()
		c.gallery = &cacheEntry[[]GalleryItem]{value: append([]GalleryItem(nil), items...), expires: c.now().Add(c.ttl)}
		c.mu.Unlock()
	}
	return items, nil
}

// Invalidate drops cached lists.
func (c *CachedSource) Invalidate() {
	c.mu.Lock()
	c.articles = nil
	c.gallery = nil
	c.mu.Unlock()
}
