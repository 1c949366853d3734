package cms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/thobenayann/hexoprint-sub001/internal/platform/config"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	maxResponseBytes   = 8 << 20
)

const (
	articleProjection = `{"slug": slug.current, title, excerpt, body, "coverImage": coverImage.asset->url, publishedAt, "updatedAt": _updatedAt, "categories": categories[]->title, "featured": coalesce(featured, false)}`

	articlesQuery = `*[_type == "article" && defined(slug.current) && defined(publishedAt) && publishedAt <= now()] | order(publishedAt desc) ` + articleProjection

	articleBySlugQuery = `*[_type == "article" && slug.current == $slug && defined(publishedAt) && publishedAt <= now()][0] ` + articleProjection

	galleryQuery = `*[_type == "galleryItem"] | order(_createdAt desc) {"id": _id, title, description, "imageUrl": image.asset->url, "createdAt": _createdAt, "updatedAt": _updatedAt, "featured": coalesce(featured, false)}`
)

// SanityClient queries a Sanity dataset over its HTTP query API (GROQ).
type SanityClient struct {
	endpoint string
	token    string
	http     *http.Client
	now      func() time.Time
}

// SanityOption customises the client.
type SanityOption func(*SanityClient)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) SanityOption {
	return func(c *SanityClient) {
		if client != nil {
			c.http = client
		}
	}
}

// WithClock injects the clock used to re-check publish dates client-side.
func WithClock(clock func() time.Time) SanityOption {
	return func(c *SanityClient) {
		if clock != nil {
			c.now = clock
		}
	}
}

// NewSanityClient builds a client for cfg. APIURL, when set, replaces https://<project>.api.sanity.io.
func NewSanityClient(cfg config.SanityConfig, opts ...SanityOption) (*SanityClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if base == "" {
		project := strings.TrimSpace(cfg.ProjectID)
		if project == "" {
			return nil, fmt.Errorf("%w: sanity project id is required", ErrNotConfigured)
		}
		base = "https://" + project + ".api.sanity.io"
	}
	dataset := strings.TrimSpace(cfg.Dataset)
	if dataset == "" {
		return nil, fmt.Errorf("%w: sanity dataset is required", ErrNotConfigured)
	}
	version := strings.TrimPrefix(strings.TrimSpace(cfg.APIVersion), "v")
	if version == "" {
		version = "2024-01-01"
	}
	endpoint, err := url.JoinPath(base, "v"+version, "data", "query", dataset)
	if err != nil {
		return nil, fmt.Errorf("cms: build sanity endpoint: %w", err)
	}

	c := &SanityClient{
		endpoint: endpoint,
		token:    strings.TrimSpace(cfg.Token),
		http:     &http.Client{Timeout: defaultHTTPTimeout},
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Articles returns published articles, newest first.
func (c *SanityClient) Articles(ctx context.Context) ([]Article, error) {
	var articles []Article
	if err := c.query(ctx, articlesQuery, nil, &articles); err != nil {
		return nil, err
	}
	articles = publishedOnly(articles, c.now())
	SortArticles(articles)
	return articles, nil
}

// Article returns one published article.
func (c *SanityClient) Article(ctx context.Context, slug string) (Article, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return Article{}, ErrNotFound
	}
	var article *Article
	if err := c.query(ctx, articleBySlugQuery, map[string]string{"slug": slug}, &article); err != nil {
		return Article{}, err
	}
	if article == nil || !article.Published(c.now()) {
		return Article{}, ErrNotFound
	}
	return *article, nil
}

// GalleryItems returns gallery items, newest first.
func (c *SanityClient) GalleryItems(ctx context.Context) ([]GalleryItem, error) {
	var items []GalleryItem
	if err := c.query(ctx, galleryQuery, nil, &items); err != nil {
		return nil, err
	}
	SortGallery(items)
	return items, nil
}

type queryResponse struct {
	Result json.RawMessage `json:"result"`
}

type queryError struct {
	Error struct {
		Description string `json:"description"`
		Type        string `json:"type"`
	} `json:"error"`
}

func (c *SanityClient) query(ctx context.Context, groq string, params map[string]string, out any) error {
	q := url.Values{}
	q.Set("query", groq)
	for name, value := range params {
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("cms: encode param %s: %w", name, err)
		}
		q.Set("$"+name, string(encoded))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("cms: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var qe queryError
		_ = json.Unmarshal(body, &qe)
		if qe.Error.Description != "" {
			return fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, qe.Error.Description)
		}
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var envelope queryResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if len(envelope.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("%w: decode result: %v", ErrUnavailable, err)
	}
	return nil
}
