package sitemap

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/thobenayann/hexoprint-sub001/internal/cms"
	"github.com/thobenayann/hexoprint-sub001/internal/site"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const baseURL = "https://hexoprint.fr"

var fixedNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type stubSource struct {
	articles func(context.Context) ([]cms.Article, error)
	gallery  func(context.Context) ([]cms.GalleryItem, error)
}

func (s stubSource) Articles(ctx context.Context) ([]cms.Article, error) {
	if s.articles == nil {
		return nil, nil
	}
	return s.articles(ctx)
}

func (s stubSource) GalleryItems(ctx context.Context) ([]cms.GalleryItem, error) {
	if s.gallery == nil {
		return nil, nil
	}
	return s.gallery(ctx)
}

func articles(list ...cms.Article) func(context.Context) ([]cms.Article, error) {
	return func(context.Context) ([]cms.Article, error) { return list, nil }
}

func gallery(list ...cms.GalleryItem) func(context.Context) ([]cms.GalleryItem, error) {
	return func(context.Context) ([]cms.GalleryItem, error) { return list, nil }
}

func newBuilder(source Source) *Builder {
	opts := []Option{WithClock(func() time.Time { return fixedNow })}
	if source != nil {
		opts = append(opts, WithSource(source))
	}
	return NewBuilder(site.Default(baseURL), opts...)
}

func urls(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.URL)
	}
	return out
}

func find(t *testing.T, entries []Entry, url string) Entry {
	t.Helper()
	for _, e := range entries {
		if e.URL == url {
			return e
		}
	}
	t.Fatalf("entry %s not found in %v", url, urls(entries))
	return Entry{}
}

func count(entries []Entry, url string) int {
	n := 0
	for _, e := range entries {
		if e.URL == url {
			n++
		}
	}
	return n
}

func TestBuildWithoutCMSReturnsStaticAndLegal(t *testing.T) {
	res := newBuilder(nil).Build(context.Background())

	assert.Equal(t, ModeDegraded, res.Mode)
	assert.Len(t, res.Entries, 8)

	home := find(t, res.Entries, baseURL+"/")
	assert.Equal(t, 1.0, home.Priority)
	assert.Equal(t, Weekly, home.ChangeFrequency)
	assert.Equal(t, res.Entries[0].URL, home.URL, "home sorts first")

	services := find(t, res.Entries, baseURL+"/services")
	assert.Equal(t, 0.9, services.Priority)
	assert.Equal(t, Monthly, services.ChangeFrequency)

	for _, path := range []string{"/mentions-legales", "/politique-de-confidentialite"} {
		legal := find(t, res.Entries, baseURL+path)
		assert.Equal(t, 0.3, legal.Priority)
		assert.Equal(t, Yearly, legal.ChangeFrequency)
	}

	for _, e := range res.Entries {
		require.NoError(t, e.Validate())
		assert.Equal(t, fixedNow, e.LastModified)
	}
}

func TestBuildSkipsInactiveRoutes(t *testing.T) {
	routes := site.Default(baseURL).Routes()
	for i := range routes {
		if routes[i].Path == site.PathGallery {
			routes[i].Status = site.StatusComingSoon
		}
		if routes[i].Path == site.PathAbout {
			routes[i].Status = site.StatusInactive
		}
	}
	s := site.New(baseURL, site.Company{}, routes)

	res := NewBuilder(s, WithClock(func() time.Time { return fixedNow })).Build(context.Background())

	assert.Len(t, res.Entries, 6)
	assert.NotContains(t, urls(res.Entries), baseURL+"/galerie")
	assert.NotContains(t, urls(res.Entries), baseURL+"/a-propos")
}

func TestBuildFullMode(t *testing.T) {
	older := fixedNow.Add(-72 * time.Hour)
	newer := fixedNow.Add(-24 * time.Hour)
	src := stubSource{
		articles: articles(
			cms.Article{Slug: "choisir-son-filament", PublishedAt: older, Featured: true},
			cms.Article{Slug: "pla-vs-petg", PublishedAt: older, UpdatedAt: newer},
			cms.Article{Slug: "", PublishedAt: older},
			cms.Article{Slug: "brouillon", PublishedAt: fixedNow.Add(time.Hour)},
		),
		gallery: gallery(
			cms.GalleryItem{ID: "a", ImageURL: "https://cdn.hexoprint.fr/a.jpg", CreatedAt: older},
			cms.GalleryItem{ID: "b", CreatedAt: newer},
		),
	}

	res := newBuilder(src).Build(context.Background())
	require.Equal(t, ModeFull, res.Mode)

	featured := find(t, res.Entries, baseURL+"/blog/choisir-son-filament")
	assert.Equal(t, 0.7, featured.Priority)
	assert.Equal(t, Monthly, featured.ChangeFrequency)
	assert.Equal(t, older, featured.LastModified)

	regular := find(t, res.Entries, baseURL+"/blog/pla-vs-petg")
	assert.Equal(t, 0.6, regular.Priority)
	assert.Equal(t, newer, regular.LastModified)

	assert.NotContains(t, urls(res.Entries), baseURL+"/blog/brouillon")
	assert.NotContains(t, urls(res.Entries), baseURL+"/blog/")

	assert.Equal(t, 1, count(res.Entries, baseURL+"/blog"))
	blog := find(t, res.Entries, baseURL+"/blog")
	assert.Equal(t, 0.8, blog.Priority)
	assert.Equal(t, newer, blog.LastModified)

	assert.Equal(t, 1, count(res.Entries, baseURL+"/galerie"))
	gal := find(t, res.Entries, baseURL+"/galerie")
	assert.Equal(t, 0.8, gal.Priority)
	assert.Equal(t, newer, gal.LastModified)
	assert.Equal(t, []string{"https://cdn.hexoprint.fr/a.jpg"}, gal.Images)

	for i := 1; i < len(res.Entries); i++ {
		assert.GreaterOrEqual(t, res.Entries[i-1].Priority, res.Entries[i].Priority)
	}
}

func TestBuildEmptyCollectionsHaveNoIndexEntries(t *testing.T) {
	res := newBuilder(stubSource{}).Build(context.Background())

	assert.Equal(t, ModeFull, res.Mode)
	blog := find(t, res.Entries, baseURL+"/blog")
	assert.Equal(t, 0.7, blog.Priority, "only the static route remains")
	assert.Empty(t, find(t, res.Entries, baseURL+"/galerie").Images)
	assert.Len(t, res.Entries, 8)
}

func TestBuildCapsGalleryImages(t *testing.T) {
	items := make([]cms.GalleryItem, 0, MaxImages+50)
	for i := 0; i < MaxImages+50; i++ {
		items = append(items, cms.GalleryItem{
			ID:        fmt.Sprint(i),
			ImageURL:  fmt.Sprintf("https://cdn.hexoprint.fr/%d.jpg", i),
			CreatedAt: fixedNow.Add(-time.Duration(i) * time.Minute),
		})
	}

	res := newBuilder(stubSource{gallery: gallery(items...)}).Build(context.Background())

	assert.Len(t, find(t, res.Entries, baseURL+"/galerie").Images, MaxImages)
}

func TestBuildGalleryCapCountsOnlyValidImages(t *testing.T) {
	items := make([]cms.GalleryItem, 0, MaxImages+10)
	for i := 0; i < MaxImages+10; i++ {
		img := fmt.Sprintf("https://cdn.hexoprint.fr/%d.jpg", i)
		if i < 10 {
			img = fmt.Sprintf("cdn/%d.jpg", i)
		}
		items = append(items, cms.GalleryItem{ID: fmt.Sprint(i), ImageURL: img, CreatedAt: fixedNow})
	}

	res := newBuilder(stubSource{gallery: gallery(items...)}).Build(context.Background())

	images := find(t, res.Entries, baseURL+"/galerie").Images
	require.Len(t, images, MaxImages)
	assert.Equal(t, "https://cdn.hexoprint.fr/10.jpg", images[0])
	assert.Equal(t, fmt.Sprintf("https://cdn.hexoprint.fr/%d.jpg", MaxImages+9), images[MaxImages-1])
}

func TestBuildIsolatesFetchFailures(t *testing.T) {
	src := stubSource{
		articles: func(context.Context) ([]cms.Article, error) {
			return nil, errors.New("boom")
		},
		gallery: gallery(cms.GalleryItem{ID: "a", ImageURL: "https://cdn.hexoprint.fr/a.jpg", CreatedAt: fixedNow}),
	}

	res := newBuilder(src).Build(context.Background())

	assert.Equal(t, ModeFull, res.Mode)
	assert.Len(t, find(t, res.Entries, baseURL+"/galerie").Images, 1)
	assert.Equal(t, 0.7, find(t, res.Entries, baseURL+"/blog").Priority)
}

func TestBuildTotalCMSFailureDegrades(t *testing.T) {
	src := stubSource{
		articles: func(context.Context) ([]cms.Article, error) {
			return nil, cms.ErrUnavailable
		},
		gallery: func(context.Context) ([]cms.GalleryItem, error) {
			panic("gallery exploded")
		},
	}

	res := newBuilder(src).Build(context.Background())

	assert.Equal(t, ModeDegraded, res.Mode)
	assert.Len(t, res.Entries, 8)
}

func TestBuildFetchTimeout(t *testing.T) {
	src := stubSource{
		articles: func(ctx context.Context) ([]cms.Article, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
		gallery: func(ctx context.Context) ([]cms.GalleryItem, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	b := NewBuilder(site.Default(baseURL),
		WithSource(src),
		WithClock(func() time.Time { return fixedNow }),
		WithFetchTimeout(20*time.Millisecond),
	)

	res := b.Build(context.Background())

	assert.Equal(t, ModeDegraded, res.Mode)
}

func TestBuildCatastrophicFailureReturnsMinimal(t *testing.T) {
	b := NewBuilder(site.Default(baseURL), WithClock(func() time.Time {
		panic("clock failure")
	}))

	res := b.Build(context.Background())

	assert.Equal(t, ModeMinimal, res.Mode)
	assert.Equal(t, []string{baseURL + "/", baseURL + "/services", baseURL + "/contact"}, urls(res.Entries))
	assert.Equal(t, []float64{1.0, 0.9, 0.8}, []float64{res.Entries[0].Priority, res.Entries[1].Priority, res.Entries[2].Priority})
}

func TestBuildNoValidEntriesReturnsMinimal(t *testing.T) {
	s := site.New("https://hexoprint.fr", site.Company{}, []site.Route{
		{Path: "/services", Status: site.StatusInactive},
	})
	s.BaseURL = "not a url"

	res := NewBuilder(s).Build(context.Background())

	assert.Equal(t, ModeMinimal, res.Mode)
}

func TestFinalizeFiltersAndDeduplicates(t *testing.T) {
	entries := []Entry{
		{URL: baseURL + "/blog", Priority: 0.7, ChangeFrequency: Weekly},
		{URL: "ftp://hexoprint.fr/x", Priority: 0.5, ChangeFrequency: Weekly},
		{URL: "/relative", Priority: 0.5, ChangeFrequency: Weekly},
		{URL: baseURL + "/high", Priority: 1.5, ChangeFrequency: Weekly},
		{URL: baseURL + "/freq", Priority: 0.5, ChangeFrequency: "sometimes"},
		{URL: baseURL + "/blog", Priority: 0.8, ChangeFrequency: Weekly},
		{URL: baseURL + "/img", Priority: 0.4, ChangeFrequency: Monthly, Images: []string{"https://cdn.hexoprint.fr/ok.jpg", "nope"}},
	}

	out := finalize(entries, fixedNow, zap.NewNop())

	require.Len(t, out, 2)
	assert.Equal(t, baseURL+"/blog", out[0].URL)
	assert.Equal(t, 0.8, out[0].Priority)
	assert.Equal(t, fixedNow, out[0].LastModified)
	assert.Equal(t, []string{"https://cdn.hexoprint.fr/ok.jpg"}, out[1].Images)
}

func TestFinalizeKeepsEntryWithoutChangeFrequency(t *testing.T) {
	out := finalize([]Entry{{URL: baseURL + "/services", Priority: 0.9}}, fixedNow, zap.NewNop())

	require.Len(t, out, 1)
	assert.Equal(t, ChangeFrequency(""), out[0].ChangeFrequency)
}

func TestChangeFrequencyValid(t *testing.T) {
	for _, f := range []ChangeFrequency{Always, Hourly, Daily, Weekly, Monthly, Yearly, Never} {
		assert.True(t, f.Valid(), f)
	}
	assert.False(t, ChangeFrequency("").Valid())
	assert.False(t, ChangeFrequency("Weekly").Valid())
}
