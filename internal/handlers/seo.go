package handlers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/thobenayann/hexoprint-sub001/internal/platform/httpx"
	"github.com/thobenayann/hexoprint-sub001/internal/platform/metrics"
	"github.com/thobenayann/hexoprint-sub001/internal/platform/requestctx"
	"github.com/thobenayann/hexoprint-sub001/internal/seo"
	"github.com/thobenayann/hexoprint-sub001/internal/site"
	"github.com/thobenayann/hexoprint-sub001/internal/sitemap"
)

const (
	defaultSitemapTTL = time.Hour
	// Partial sitemaps are retried sooner so a CMS recovery shows up quickly.
	degradedSitemapTTL = 5 * time.Minute
	robotsCacheControl = "public, max-age=86400"
)

// SitemapBuilder produces sitemap entries. *sitemap.Builder satisfies it.
type SitemapBuilder interface {
	Build(ctx context.Context) sitemap.Result
}

// SEOHandlers serves /sitemap.xml, /robots.txt and page metadata.
type SEOHandlers struct {
	site       site.Site
	builder    SitemapBuilder
	production bool
	ttl        time.Duration
	clock      func() time.Time
	metrics    *metrics.Recorder

	mu     sync.Mutex
	cached *cachedSitemap
}

type cachedSitemap struct {
	body    []byte
	etag    string
	mode    sitemap.Mode
	expires time.Time
}

// SEOOption customises SEOHandlers.
type SEOOption func(*SEOHandlers)

// WithSitemapTTL sets how long a full sitemap is served from memory.
func WithSitemapTTL(ttl time.Duration) SEOOption {
	return func(h *SEOHandlers) {
		if ttl > 0 {
			h.ttl = ttl
		}
	}
}

// WithProduction allows crawlers in robots.txt.
func WithProduction(production bool) SEOOption {
	return func(h *SEOHandlers) {
		h.production = production
	}
}

// WithSEOClock overrides the clock used for cache expiry.
func WithSEOClock(clock func() time.Time) SEOOption {
	return func(h *SEOHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithSEOMetrics records sitemap builds.
func WithSEOMetrics(rec *metrics.Recorder) SEOOption {
	return func(h *SEOHandlers) {
		h.metrics = rec
	}
}

// NewSEOHandlers constructs the handlers.
func NewSEOHandlers(s site.Site, builder SitemapBuilder, opts ...SEOOption) *SEOHandlers {
	h := &SEOHandlers{
		site:    s,
		builder: builder,
		ttl:     defaultSitemapTTL,
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the SEO endpoints.
func (h *SEOHandlers) Routes(r chi.Router) {
	r.Get("/sitemap.xml", h.sitemap)
	r.Head("/sitemap.xml", h.sitemap)
	r.Get("/robots.txt", h.robots)
	r.Get("/api/meta", h.pageMeta)
}

func (h *SEOHandlers) sitemap(w http.ResponseWriter, r *http.Request) {
	entry := h.current(r.Context())
	if entry == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("sitemap_unavailable", "sitemap could not be generated", http.StatusInternalServerError))
		return
	}

	maxAge := int(entry.expires.Sub(h.clock()).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(maxAge))
	w.Header().Set("ETag", entry.etag)
	w.Header().Set("X-Sitemap-Mode", string(entry.mode))
	if matchesETag(r, entry.etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", sitemap.ContentType)
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(entry.body)
	}
}

// current returns the cached document or builds a new one. Concurrent misses wait on the same
// build. The build outlives the triggering request: the result is shared, so a client hanging
// up must not turn it into a degraded sitemap. The builder's fetch timeout bounds it.
func (h *SEOHandlers) current(ctx context.Context) *cachedSitemap {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.clock()
	if h.cached != nil && now.Before(h.cached.expires) {
		return h.cached
	}

	logger := requestctx.Logger(ctx)
	result := h.builder.Build(context.WithoutCancel(ctx))
	h.metrics.ObserveSitemap(string(result.Mode), len(result.Entries))

	var buf bytes.Buffer
	if err := sitemap.Encode(&buf, result.Entries); err != nil {
		logger.Error("sitemap: encode failed", zap.Error(err))
		if h.cached != nil {
			return h.cached
		}
		return nil
	}

	ttl := h.ttl
	if result.Mode != sitemap.ModeFull && ttl > degradedSitemapTTL {
		ttl = degradedSitemapTTL
	}
	sum := sha256.Sum256(buf.Bytes())
	h.cached = &cachedSitemap{
		body:    buf.Bytes(),
		etag:    fmt.Sprintf("W/\"%x\"", sum[:16]),
		mode:    result.Mode,
		expires: now.Add(ttl),
	}
	logger.Info("sitemap generated", zap.String("mode", string(result.Mode)), zap.Int("entries", len(result.Entries)))
	return h.cached
}

// Invalidate drops the cached sitemap.
func (h *SEOHandlers) Invalidate() {
	h.mu.Lock()
	h.cached = nil
	h.mu.Unlock()
}

func (h *SEOHandlers) robots(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", robotsCacheControl)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(seo.Robots(h.production, h.site)))
}

func (h *SEOHandlers) pageMeta(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSpace(r.URL.Query().Get("path"))
	if path == "" {
		path = site.PathHome
	}
	meta, ok := seo.PageMeta(h.site, path)
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("page_not_found", fmt.Sprintf("no published page at %s", path), http.StatusNotFound))
		return
	}
	w.Header().Set("Cache-Control", contentCacheControl)
	httpx.WriteJSON(w, http.StatusOK, meta)
}

func matchesETag(r *http.Request, etag string) bool {
	if etag == "" || r == nil {
		return false
	}
	raw := r.Header.Get("If-None-Match")
	if strings.TrimSpace(raw) == "" {
		return false
	}
	for _, candidate := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(candidate)
		if trimmed == "*" || trimmed == etag {
			return true
		}
	}
	return false
}
