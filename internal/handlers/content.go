package handlers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"go.uber.org/zap"

	"github.com/thobenayann/hexoprint-sub001/internal/cms"
	"github.com/thobenayann/hexoprint-sub001/internal/platform/httpx"
	"github.com/thobenayann/hexoprint-sub001/internal/platform/requestctx"
	"github.com/thobenayann/hexoprint-sub001/internal/seo"
	"github.com/thobenayann/hexoprint-sub001/internal/site"
)

const (
	contentCacheControl = "public, max-age=300, stale-while-revalidate=3600"
	maxListLimit        = 100
)

// ContentHandlers expose blog articles and gallery items from the CMS.
type ContentHandlers struct {
	source   cms.Source
	site     site.Site
	markdown goldmark.Markdown
	policy   *bluemonday.Policy
	clock    func() time.Time
}

// NewContentHandlers constructs the content API. A nil source answers 503.
func NewContentHandlers(source cms.Source, s site.Site) *ContentHandlers {
	return &ContentHandlers{
		source: source,
		site:   s,
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		),
		policy: newArticleHTMLPolicy(),
		clock:  time.Now,
	}
}

// Routes registers the content endpoints.
func (h *ContentHandlers) Routes(r chi.Router) {
	r.Get("/api/articles", h.listArticles)
	r.Get("/api/articles/{slug}", h.getArticle)
	r.Get("/api/gallery", h.listGallery)
}

type articleSummaryPayload struct {
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	Excerpt     string   `json:"excerpt,omitempty"`
	CoverImage  string   `json:"coverImage,omitempty"`
	PublishedAt string   `json:"publishedAt"`
	UpdatedAt   string   `json:"updatedAt,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	Featured    bool     `json:"featured"`
	URL         string   `json:"url"`
}

type articleDetailPayload struct {
	articleSummaryPayload
	HTML string   `json:"html"`
	Meta seo.Meta `json:"meta"`
}

type galleryItemPayload struct {
	ID          string `json:"id"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
	Featured    bool   `json:"featured"`
}

func (h *ContentHandlers) listArticles(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		writeCMSUnavailable(r.Context(), w)
		return
	}
	q := r.URL.Query()
	limit, ok := parseLimit(w, r, q.Get("limit"))
	if !ok {
		return
	}

	articles, err := h.source.Articles(r.Context())
	if err != nil {
		writeContentError(r.Context(), w, err, "articles")
		return
	}
	now := h.clock()
	published := make([]cms.Article, 0, len(articles))
	for _, a := range articles {
		if a.Published(now) && strings.TrimSpace(a.Slug) != "" {
			published = append(published, a)
		}
	}
	cms.SortArticles(published)
	filtered := cms.FilterArticles(published, cms.ArticleFilter{
		Category: q.Get("category"),
		Featured: parseBool(q.Get("featured")),
		Limit:    limit,
	})

	items := make([]articleSummaryPayload, 0, len(filtered))
	for _, a := range filtered {
		items = append(items, h.summary(a))
	}

	w.Header().Set("Cache-Control", contentCacheControl)
	etag := computeArticleListETag(filtered)
	w.Header().Set("ETag", etag)
	if matchesETag(r, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"articles": items, "total": len(items)})
}

func (h *ContentHandlers) getArticle(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		writeCMSUnavailable(r.Context(), w)
		return
	}
	slug := strings.TrimSpace(chi.URLParam(r, "slug"))
	if slug == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_slug", "article slug is required", http.StatusBadRequest))
		return
	}

	article, err := h.source.Article(r.Context(), slug)
	if err == nil && !article.Published(h.clock()) {
		err = cms.ErrNotFound
	}
	if err != nil {
		writeContentError(r.Context(), w, err, "article")
		return
	}

	html, err := h.render(article.Body)
	if err != nil {
		requestctx.Logger(r.Context()).Error("article render failed", zap.String("slug", slug), zap.Error(err))
		httpx.WriteError(r.Context(), w, httpx.NewError("render_failed", "article could not be rendered", http.StatusInternalServerError))
		return
	}

	w.Header().Set("Cache-Control", contentCacheControl)
	etag := computeArticleListETag([]cms.Article{article})
	w.Header().Set("ETag", etag)
	if matchesETag(r, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, articleDetailPayload{
		articleSummaryPayload: h.summary(article),
		HTML:                  html,
		Meta:                  seo.ArticleMeta(h.site, article),
	})
}

func (h *ContentHandlers) listGallery(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		writeCMSUnavailable(r.Context(), w)
		return
	}
	q := r.URL.Query()
	limit, ok := parseLimit(w, r, q.Get("limit"))
	if !ok {
		return
	}

	items, err := h.source.GalleryItems(r.Context())
	if err != nil {
		writeContentError(r.Context(), w, err, "gallery")
		return
	}
	cms.SortGallery(items)
	items = cms.FilterGallery(items, parseBool(q.Get("featured")), limit)

	out := make([]galleryItemPayload, 0, len(items))
	for _, item := range items {
		out = append(out, galleryItemPayload{
			ID:          item.ID,
			Title:       item.Title,
			Description: item.Description,
			ImageURL:    item.ImageURL,
			CreatedAt:   formatTimestamp(item.CreatedAt),
			UpdatedAt:   formatTimestamp(item.UpdatedAt),
			Featured:    item.Featured,
		})
	}
	w.Header().Set("Cache-Control", contentCacheControl)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": out, "total": len(out)})
}

func (h *ContentHandlers) summary(a cms.Article) articleSummaryPayload {
	return articleSummaryPayload{
		Slug:        a.Slug,
		Title:       a.Title,
		Excerpt:     a.Excerpt,
		CoverImage:  a.CoverImage,
		PublishedAt: formatTimestamp(a.PublishedAt),
		UpdatedAt:   formatTimestamp(a.UpdatedAt),
		Categories:  copyStringSlice(a.Categories),
		Featured:    a.Featured,
		URL:         h.site.URL(site.ArticlePath(a.Slug)),
	}
}

// render converts article markdown to HTML and strips anything outside the UGC allowlist.
func (h *ContentHandlers) render(body string) (string, error) {
	var buf bytes.Buffer
	if err := h.markdown.Convert([]byte(body), &buf); err != nil {
		return "", err
	}
	return h.policy.Sanitize(buf.String()), nil
}

func newArticleHTMLPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("figure", "figcaption")
	policy.AllowAttrs("id").OnElements("h1", "h2", "h3", "h4", "h5", "h6")
	policy.AllowAttrs("loading").OnElements("img")
	policy.RequireNoFollowOnLinks(true)
	return policy
}

func writeCMSUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("cms_unavailable", "content is temporarily unavailable", http.StatusServiceUnavailable))
}

func writeContentError(ctx context.Context, w http.ResponseWriter, err error, resource string) {
	switch {
	case errors.Is(err, cms.ErrNotFound):
		httpx.WriteError(ctx, w, httpx.NewError(resource+"_not_found", fmt.Sprintf("%s not found", resource), http.StatusNotFound))
	case errors.Is(err, cms.ErrNotConfigured):
		writeCMSUnavailable(ctx, w)
	default:
		requestctx.Logger(ctx).Warn("cms query failed", zap.String("resource", resource), zap.Error(err))
		writeCMSUnavailable(ctx, w)
	}
}

func parseLimit(w http.ResponseWriter, r *http.Request, raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxListLimit {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_limit", fmt.Sprintf("limit must be between 1 and %d", maxListLimit), http.StatusBadRequest))
		return 0, false
	}
	return n, true
}

func parseBool(raw string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && v
}

func computeArticleListETag(articles []cms.Article) string {
	hash := sha256.New()
	for _, a := range articles {
		hash.Write([]byte(a.Slug))
		hash.Write([]byte("|"))
		hash.Write([]byte(formatTimestamp(a.LastModified())))
		hash.Write([]byte("|"))
	}
	return fmt.Sprintf("W/\"%x\"", hash.Sum(nil)[:16])
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339)
}

func copyStringSlice(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
