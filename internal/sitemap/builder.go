package sitemap

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/thobenayann/hexoprint-sub001/internal/cms"
	"github.com/thobenayann/hexoprint-sub001/internal/platform/requestctx"
	"github.com/thobenayann/hexoprint-sub001/internal/site"
)

const (
	// MaxImages caps <image:image> children per <url>.
	MaxImages = 1000

	defaultFetchTimeout = 10 * time.Second
	legalPriority       = 0.3
	indexPriority       = 0.8
	featuredPriority    = 0.7
	articlePriority     = 0.6
)

type routeRule struct {
	priority  float64
	frequency ChangeFrequency
}

var (
	routeRules = map[string]routeRule{
		site.PathHome:     {1.0, Weekly},
		site.PathServices: {0.9, Monthly},
		site.PathAbout:    {0.8, Monthly},
		site.PathContact:  {0.8, Monthly},
		site.PathBlog:     {0.7, Weekly},
		site.PathGallery:  {0.7, Weekly},
	}
	defaultRule = routeRule{0.5, Monthly}

	errNoEntries = errors.New("sitemap: no valid entries")
)

// Source is the slice of the CMS the builder reads.
type Source interface {
	Articles(ctx context.Context) ([]cms.Article, error)
	GalleryItems(ctx context.Context) ([]cms.GalleryItem, error)
}

// Builder computes sitemap entries. It holds no state between builds.
type Builder struct {
	site         site.Site
	source       Source
	now          func() time.Time
	logger       *zap.Logger
	fetchTimeout time.Duration
}

// Option customises a Builder.
type Option func(*Builder)

// WithSource sets the CMS source. Without one the builder runs in degraded mode.
func WithSource(source Source) Option {
	return func(b *Builder) {
		b.source = source
	}
}

// WithClock injects the clock (useful for tests).
func WithClock(clock func() time.Time) Option {
	return func(b *Builder) {
		if clock != nil {
			b.now = clock
		}
	}
}

// WithLogger sets the fallback logger used when the context carries none.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithFetchTimeout bounds each CMS query.
func WithFetchTimeout(timeout time.Duration) Option {
	return func(b *Builder) {
		if timeout > 0 {
			b.fetchTimeout = timeout
		}
	}
}

// NewBuilder returns a Builder for s.
func NewBuilder(s site.Site, opts ...Option) *Builder {
	b := &Builder{
		site:         s,
		now:          time.Now,
		logger:       zap.NewNop(),
		fetchTimeout: defaultFetchTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Build never fails: CMS outages degrade to the static set and anything unexpected yields the
// minimal set.
func (b *Builder) Build(ctx context.Context) (result Result) {
	logger := requestctx.Logger(ctx)
	if logger == requestctx.NoopLogger() {
		logger = b.logger
	}
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("sitemap: build panicked, serving minimal sitemap", zap.Any("panic", rec), zap.Stack("stack"))
			result = b.minimal()
		}
	}()

	result, err := b.build(ctx, logger)
	if err != nil {
		logger.Error("sitemap: build failed, serving minimal sitemap", zap.Error(err))
		return b.minimal()
	}
	return result
}

func (b *Builder) build(ctx context.Context, logger *zap.Logger) (Result, error) {
	now := b.now().UTC()
	entries := b.staticEntries(now)

	mode := ModeDegraded
	if b.source == nil {
		logger.Info("sitemap: cms not configured, serving static routes")
	} else {
		articles, gallery, fetched := b.fetch(ctx, logger)
		if fetched {
			mode = ModeFull
			entries = append(entries, articleEntries(b.site, articles, now)...)
			if idx, ok := galleryIndex(b.site, gallery, now); ok {
				entries = append(entries, idx)
			}
		} else {
			logger.Warn("sitemap: cms unreachable, serving static routes")
		}
	}

	entries = finalize(entries, now, logger)
	if len(entries) == 0 {
		return Result{}, errNoEntries
	}
	if !hasHome(entries, b.site.URL(site.PathHome)) {
		logger.Warn("sitemap: home entry missing or not at priority 1")
	}
	return Result{Entries: entries, Mode: mode, GeneratedAt: now}, nil
}

func (b *Builder) staticEntries(now time.Time) []Entry {
	active := b.site.ActiveRoutes()
	legal := b.site.LegalPages()
	entries := make([]Entry, 0, len(active)+len(legal))
	for _, route := range active {
		rule, ok := routeRules[route.Path]
		if !ok {
			rule = defaultRule
		}
		entries = append(entries, Entry{
			URL:             b.site.URL(route.Path),
			LastModified:    now,
			ChangeFrequency: rule.frequency,
			Priority:        rule.priority,
		})
	}
	for _, page := range legal {
		entries = append(entries, Entry{
			URL:             b.site.URL(page.Path),
			LastModified:    now,
			ChangeFrequency: Yearly,
			Priority:        legalPriority,
		})
	}
	return entries
}

// fetch runs both queries concurrently. A failing query yields an empty list without cancelling
// the other; fetched is false only when both failed.
func (b *Builder) fetch(ctx context.Context, logger *zap.Logger) (articles []cms.Article, gallery []cms.GalleryItem, fetched bool) {
	var (
		g                   errgroup.Group
		articleErr, itemErr error
	)
	g.Go(func() error {
		articles, articleErr = fetchIsolated(ctx, b.fetchTimeout, b.source.Articles)
		return nil
	})
	g.Go(func() error {
		gallery, itemErr = fetchIsolated(ctx, b.fetchTimeout, b.source.GalleryItems)
		return nil
	})
	_ = g.Wait()

	if articleErr != nil {
		logger.Warn("sitemap: articles unavailable", zap.Error(articleErr))
		articles = nil
	}
	if itemErr != nil {
		logger.Warn("sitemap: gallery unavailable", zap.Error(itemErr))
		gallery = nil
	}
	return articles, gallery, articleErr == nil || itemErr == nil
}

func fetchIsolated[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) ([]T, error)) (items []T, err error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	defer func() {
		if rec := recover(); rec != nil {
			items, err = nil, fmt.Errorf("sitemap: fetch panicked: %v", rec)
		}
	}()
	return fn(ctx)
}

// articleEntries maps published articles and, when any exist, the /blog index in front of them.
func articleEntries(s site.Site, articles []cms.Article, now time.Time) []Entry {
	entries := make([]Entry, 0, len(articles)+1)
	var newest time.Time
	for _, a := range articles {
		slug := strings.Trim(strings.TrimSpace(a.Slug), "/")
		if slug == "" || !a.Published(now) {
			continue
		}
		priority := articlePriority
		if a.Featured {
			priority = featuredPriority
		}
		modified := a.LastModified()
		if modified.After(newest) {
			newest = modified
		}
		entries = append(entries, Entry{
			URL:             s.URL(site.ArticlePath(slug)),
			LastModified:    modified,
			ChangeFrequency: Monthly,
			Priority:        priority,
		})
	}
	if len(entries) == 0 {
		return nil
	}
	index := Entry{
		URL:             s.URL(site.PathBlog),
		LastModified:    newest,
		ChangeFrequency: Weekly,
		Priority:        indexPriority,
	}
	return append([]Entry{index}, entries...)
}

func galleryIndex(s site.Site, items []cms.GalleryItem, now time.Time) (Entry, bool) {
	if len(items) == 0 {
		return Entry{}, false
	}
	var (
		newest time.Time
		images []string
	)
	for _, item := range items {
		if modified := item.LastModified(); modified.After(newest) {
			newest = modified
		}
		img := strings.TrimSpace(item.ImageURL)
		if img == "" || len(images) == MaxImages {
			continue
		}
		if err := validateURL(img); err != nil {
			continue
		}
		images = append(images, img)
	}
	if newest.IsZero() {
		newest = now
	}
	return Entry{
		URL:             s.URL(site.PathGallery),
		LastModified:    newest,
		ChangeFrequency: Weekly,
		Priority:        indexPriority,
		Images:          images,
	}, true
}

// finalize drops invalid entries, sorts by descending priority and keeps the first
// occurrence of each URL.
func finalize(entries []Entry, now time.Time, logger *zap.Logger) []Entry {
	valid := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			logger.Warn("sitemap: dropping invalid entry", zap.Error(err))
			continue
		}
		if e.LastModified.IsZero() {
			e.LastModified = now
		}
		e.Images = validImages(e.Images, logger)
		valid = append(valid, e)
	}

	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].Priority > valid[j].Priority
	})

	seen := make(map[string]struct{}, len(valid))
	out := valid[:0]
	for _, e := range valid {
		if _, dup := seen[e.URL]; dup {
			logger.Warn("sitemap: duplicate url", zap.String("url", e.URL), zap.Float64("priority", e.Priority))
			continue
		}
		seen[e.URL] = struct{}{}
		out = append(out, e)
	}
	return out
}

func validImages(images []string, logger *zap.Logger) []string {
	if len(images) == 0 {
		return nil
	}
	out := make([]string, 0, min(len(images), MaxImages))
	for _, img := range images {
		if len(out) == MaxImages {
			break
		}
		if err := validateURL(img); err != nil {
			logger.Debug("sitemap: dropping image", zap.Error(err))
			continue
		}
		out = append(out, img)
	}
	return out
}

func hasHome(entries []Entry, homeURL string) bool {
	for _, e := range entries {
		if e.URL == homeURL {
			return e.Priority == 1
		}
	}
	return false
}

// minimal is the last-resort sitemap. It must not depend on anything that just failed, so
// it reads the wall clock rather than the injected one.
func (b *Builder) minimal() Result {
	now := time.Now().UTC()
	return Result{
		Mode:        ModeMinimal,
		GeneratedAt: now,
		Entries: []Entry{
			{URL: b.site.URL(site.PathHome), LastModified: now, ChangeFrequency: Weekly, Priority: 1.0},
			{URL: b.site.URL(site.PathServices), LastModified: now, ChangeFrequency: Monthly, Priority: 0.9},
			{URL: b.site.URL(site.PathContact), LastModified: now, ChangeFrequency: Monthly, Priority: 0.8},
		},
	}
}
