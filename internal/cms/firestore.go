package cms

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/thobenayann/hexoprint-sub001/internal/platform/firestore"
)

const (
	articlesCollection = "articles"
	galleryCollection  = "gallery"
	maxGalleryDocs     = 2000
)

// FirestoreSource reads content from the articles and gallery collections. Article documents
// are keyed by slug.
type FirestoreSource struct {
	articles *pfirestore.Collection[Article]
	gallery  *pfirestore.Collection[GalleryItem]
	now      func() time.Time
}

// NewFirestoreSource binds the source to provider.
func NewFirestoreSource(provider *pfirestore.Provider) *FirestoreSource {
	return &FirestoreSource{
		articles: pfirestore.NewCollection[Article](provider, articlesCollection, nil),
		gallery:  pfirestore.NewCollection[GalleryItem](provider, galleryCollection, nil),
		now:      time.Now,
	}
}

// Articles returns published articles, newest first.
func (s *FirestoreSource) Articles(ctx context.Context) ([]Article, error) {
	now := s.now()
	docs, err := s.articles.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("publishedAt", "<=", now).OrderBy("publishedAt", firestore.Desc)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	articles := make([]Article, 0, len(docs))
	for _, doc := range docs {
		articles = append(articles, articleFromDoc(doc))
	}
	articles = publishedOnly(articles, now)
	SortArticles(articles)
	return articles, nil
}

// Article returns one published article by slug.
func (s *FirestoreSource) Article(ctx context.Context, slug string) (Article, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return Article{}, ErrNotFound
	}
	doc, err := s.articles.Get(ctx, slug)
	if err != nil {
		if pfirestore.IsNotFound(err) {
			return Article{}, ErrNotFound
		}
		return Article{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	article := articleFromDoc(doc)
	if !article.Published(s.now()) {
		return Article{}, ErrNotFound
	}
	return article, nil
}

// GalleryItems returns gallery items, newest first.
func (s *FirestoreSource) GalleryItems(ctx context.Context) ([]GalleryItem, error) {
	docs, err := s.gallery.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("createdAt", firestore.Desc).Limit(maxGalleryDocs)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	items := make([]GalleryItem, 0, len(docs))
	for _, doc := range docs {
		items = append(items, galleryItemFromDoc(doc))
	}
	SortGallery(items)
	return items, nil
}

func articleFromDoc(doc pfirestore.Document[Article]) Article {
	article := doc.Data
	if strings.TrimSpace(article.Slug) == "" {
		article.Slug = doc.ID
	}
	if article.UpdatedAt.IsZero() {
		article.UpdatedAt = doc.UpdateTime
	}
	return article
}

func galleryItemFromDoc(doc pfirestore.Document[GalleryItem]) GalleryItem {
	item := doc.Data
	item.ID = doc.ID
	if item.CreatedAt.IsZero() {
		item.CreatedAt = doc.CreateTime
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = doc.UpdateTime
	}
	return item
}
