package cms

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/thobenayann/hexoprint-sub001/internal/platform/config"
	pfirestore "github.com/thobenayann/hexoprint-sub001/internal/platform/firestore"
)

func TestArticleFromDocFallsBackToDocumentMetadata(t *testing.T) {
	created := time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC)
	updated := time.Date(2025, 1, 3, 9, 0, 0, 0, time.UTC)

	got := articleFromDoc(pfirestore.Document[Article]{
		ID:         "pla-vs-petg",
		Data:       Article{Title: "PLA ou PETG ?"},
		CreateTime: created,
		UpdateTime: updated,
	})
	if got.Slug != "pla-vs-petg" {
		t.Fatalf("expected slug from document id, got %q", got.Slug)
	}
	if !got.UpdatedAt.Equal(updated) {
		t.Fatalf("expected update time fallback, got %v", got.UpdatedAt)
	}

	explicit := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	got = articleFromDoc(pfirestore.Document[Article]{
		ID:         "doc-1",
		Data:       Article{Slug: "resine", UpdatedAt: explicit},
		UpdateTime: updated,
	})
	if got.Slug != "resine" || !got.UpdatedAt.Equal(explicit) {
		t.Fatalf("explicit fields must win, got %+v", got)
	}
}

func TestGalleryItemFromDocFallsBackToDocumentMetadata(t *testing.T) {
	created := time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC)
	updated := time.Date(2025, 1, 3, 9, 0, 0, 0, time.UTC)

	got := galleryItemFromDoc(pfirestore.Document[GalleryItem]{
		ID:         "g1",
		Data:       GalleryItem{Title: "Vase"},
		CreateTime: created,
		UpdateTime: updated,
	})
	if got.ID != "g1" || !got.CreatedAt.Equal(created) || !got.UpdatedAt.Equal(updated) {
		t.Fatalf("unexpected item %+v", got)
	}

	explicit := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	got = galleryItemFromDoc(pfirestore.Document[GalleryItem]{
		ID:         "g2",
		Data:       GalleryItem{CreatedAt: explicit},
		CreateTime: created,
	})
	if !got.CreatedAt.Equal(explicit) {
		t.Fatalf("explicit createdAt must win, got %v", got.CreatedAt)
	}
}

func TestFirestoreSourceAgainstEmulator(t *testing.T) {
	host := strings.TrimSpace(os.Getenv("FIRESTORE_EMULATOR_HOST"))
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	provider := pfirestore.NewProvider(config.FirestoreConfig{
		ProjectID:    fmt.Sprintf("hexoprint-cms-%d", time.Now().UnixNano()),
		EmulatorHost: host,
	})
	t.Cleanup(func() { _ = provider.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("firestore client: %v", err)
	}

	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	articles := map[string]map[string]any{
		"ancien":      {"title": "Ancien", "publishedAt": now.Add(-48 * time.Hour)},
		"recent":      {"title": "Récent", "publishedAt": now.Add(-time.Hour), "featured": true},
		"futur":       {"title": "Futur", "publishedAt": now.Add(time.Hour)},
		"autre-id-01": {"slug": "slug-explicite", "title": "Explicite", "publishedAt": now.Add(-72 * time.Hour)},
	}
	for id, data := range articles {
		if _, err := client.Collection(articlesCollection).Doc(id).Set(ctx, data); err != nil {
			t.Fatalf("seed article %s: %v", id, err)
		}
	}
	gallery := map[string]map[string]any{
		"g1": {"title": "Vase", "createdAt": now.Add(-48 * time.Hour)},
		"g2": {"title": "Support", "createdAt": now.Add(-time.Hour), "imageUrl": "https://cdn.hexoprint.fr/g2.jpg"},
	}
	for id, data := range gallery {
		if _, err := client.Collection(galleryCollection).Doc(id).Set(ctx, data); err != nil {
			t.Fatalf("seed gallery %s: %v", id, err)
		}
	}

	source := NewFirestoreSource(provider)
	source.now = func() time.Time { return now }

	list, err := source.Articles(ctx)
	if err != nil {
		t.Fatalf("Articles: %v", err)
	}
	var slugs []string
	for _, a := range list {
		slugs = append(slugs, a.Slug)
		if a.UpdatedAt.IsZero() {
			t.Fatalf("expected update time fallback for %s", a.Slug)
		}
	}
	if strings.Join(slugs, ",") != "recent,ancien,slug-explicite" {
		t.Fatalf("unexpected articles %v", slugs)
	}

	if _, err := source.Article(ctx, "recent"); err != nil {
		t.Fatalf("Article(recent): %v", err)
	}
	if _, err := source.Article(ctx, "futur"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected unpublished article to be not found, got %v", err)
	}
	if _, err := source.Article(ctx, "absent"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected missing article to be not found, got %v", err)
	}

	items, err := source.GalleryItems(ctx)
	if err != nil {
		t.Fatalf("GalleryItems: %v", err)
	}
	if len(items) != 2 || items[0].ID != "g2" || items[1].ID != "g1" {
		t.Fatalf("unexpected gallery %+v", items)
	}
}
