// Package cms reads articles and gallery items from the headless CMS.
package cms

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a CMS resource cannot be located.
	ErrNotFound = errors.New("cms: not found")
	// ErrNotConfigured is returned when no CMS backend is configured.
	ErrNotConfigured = errors.New("cms: not configured")
	// ErrUnavailable wraps transport and backend failures.
	ErrUnavailable = errors.New("cms: unavailable")
)

// Article is a blog post.
type Article struct {
	Slug        string    `json:"slug" firestore:"slug"`
	Title       string    `json:"title" firestore:"title"`
	Excerpt     string    `json:"excerpt,omitempty" firestore:"excerpt"`
	Body        string    `json:"body,omitempty" firestore:"body"`
	CoverImage  string    `json:"coverImage,omitempty" firestore:"coverImage"`
	PublishedAt time.Time `json:"publishedAt" firestore:"publishedAt"`
	UpdatedAt   time.Time `json:"updatedAt" firestore:"updatedAt"`
	Categories  []string  `json:"categories,omitempty" firestore:"categories"`
	Featured    bool      `json:"featured" firestore:"featured"`
}

// LastModified is the update time, or the publish time for never-edited articles.
func (a Article) LastModified() time.Time {
	if !a.UpdatedAt.IsZero() {
		return a.UpdatedAt
	}
	return a.PublishedAt
}

// Published reports whether the article is visible at now.
func (a Article) Published(now time.Time) bool {
	return !a.PublishedAt.IsZero() && !a.PublishedAt.After(now)
}

// GalleryItem is one realisation shown in the gallery.
type GalleryItem struct {
	ID          string    `json:"id" firestore:"-"`
	Title       string    `json:"title,omitempty" firestore:"title"`
	Description string    `json:"description,omitempty" firestore:"description"`
	ImageURL    string    `json:"imageUrl,omitempty" firestore:"imageUrl"`
	CreatedAt   time.Time `json:"createdAt" firestore:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt" firestore:"updatedAt"`
	Featured    bool      `json:"featured" firestore:"featured"`
}

// LastModified is the update time, or the creation time.
func (g GalleryItem) LastModified() time.Time {
	if !g.UpdatedAt.IsZero() {
		return g.UpdatedAt
	}
	return g.CreatedAt
}

// Source is the read-only CMS contract. Articles returns published articles ordered by publish
// date descending; GalleryItems returns items ordered by creation date descending.
type Source interface {
	Articles(ctx context.Context) ([]Article, error)
	Article(ctx context.Context, slug string) (Article, error)
	GalleryItems(ctx context.Context) ([]GalleryItem, error)
}

// ArticleFilter narrows article listings.
type ArticleFilter struct {
	Category string
	Featured bool
	Limit    int
}

// FilterArticles applies f, keeping input order.
func FilterArticles(articles []Article, f ArticleFilter) []Article {
	category := strings.ToLower(strings.TrimSpace(f.Category))
	out := make([]Article, 0, len(articles))
	for _, a := range articles {
		if f.Featured && !a.Featured {
			continue
		}
		if category != "" && !containsFold(a.Categories, category) {
			continue
		}
		out = append(out, a)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

// FilterGallery keeps featured items when featuredOnly is set.
func FilterGallery(items []GalleryItem, featuredOnly bool, limit int) []GalleryItem {
	out := make([]GalleryItem, 0, len(items))
	for _, item := range items {
		if featuredOnly && !item.Featured {
			continue
		}
		out = append(out, item)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// SortArticles orders by publish date desc, then last modification desc, then slug.
func SortArticles(items []Article) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.PublishedAt.Equal(b.PublishedAt) {
			return a.PublishedAt.After(b.PublishedAt)
		}
		if am, bm := a.LastModified(), b.LastModified(); !am.Equal(bm) {
			return am.After(bm)
		}
		return a.Slug < b.Slug
	})
}

// SortGallery orders by creation date desc, then id.
func SortGallery(items []GalleryItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// publishedOnly drops articles without a slug or with a future publish date.
func publishedOnly(articles []Article, now time.Time) []Article {
	out := articles[:0]
	for _, a := range articles {
		a.Slug = strings.TrimSpace(a.Slug)
		if a.Slug == "" || !a.Published(now) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func containsFold(list []string, val string) bool {
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), val) {
			return true
		}
	}
	return false
}
