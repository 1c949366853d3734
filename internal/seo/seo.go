// Package seo derives page metadata, structured data and robots rules from the site description.
package seo

import (
	"strings"

	"github.com/thobenayann/hexoprint-sub001/internal/cms"
	"github.com/thobenayann/hexoprint-sub001/internal/site"
)

// OpenGraph holds og:* properties.
type OpenGraph struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Image       string `json:"image,omitempty"`
	Type        string `json:"type"`
	SiteName    string `json:"siteName"`
	Locale      string `json:"locale,omitempty"`
}

// Twitter holds twitter:* properties.
type Twitter struct {
	Card        string `json:"card"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image,omitempty"`
}

// Meta is everything a page head needs.
type Meta struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Canonical   string           `json:"canonical"`
	OG          OpenGraph        `json:"openGraph"`
	Twitter     Twitter          `json:"twitter"`
	JSONLD      []map[string]any `json:"jsonLd"`
}

// PageMeta builds metadata for a static page. ok is false for unknown or unpublished paths.
func PageMeta(s site.Site, path string) (Meta, bool) {
	route, ok := s.Route(path)
	if !ok {
		return Meta{}, false
	}
	title := route.Title
	if title == "" {
		title = route.Label
	}
	description := route.Description
	if description == "" {
		description = s.Company.Description
	}

	meta := build(s, title, description, s.URL(route.Path), s.Company.Image, "website")
	if route.Path == site.PathHome {
		meta.JSONLD = []map[string]any{LocalBusiness(s)}
	} else {
		meta.JSONLD = []map[string]any{BreadcrumbList(Breadcrumbs(s, route.Path, ""))}
	}
	return meta, true
}

// ArticleMeta builds metadata for a blog article.
func ArticleMeta(s site.Site, a cms.Article) Meta {
	canonical := s.URL(site.ArticlePath(a.Slug))
	description := a.Excerpt
	if description == "" {
		description = s.Company.Description
	}
	image := a.CoverImage
	if image == "" {
		image = s.Company.Image
	}

	meta := build(s, a.Title, description, canonical, image, "article")
	meta.JSONLD = []map[string]any{
		ArticleSchema(a.Title, canonical, meta.OG.Image, s.Company.Name, a.PublishedAt, a.LastModified()),
		BreadcrumbList(Breadcrumbs(s, site.ArticlePath(a.Slug), a.Title)),
	}
	return meta
}

func build(s site.Site, title, description, canonical, image, kind string) Meta {
	full := Title(s, title)
	if image != "" {
		image = s.URL(image)
	}
	card := "summary"
	if image != "" {
		card = "summary_large_image"
	}
	return Meta{
		Title:       full,
		Description: description,
		Canonical:   canonical,
		OG: OpenGraph{
			Title:       full,
			Description: description,
			URL:         canonical,
			Image:       image,
			Type:        kind,
			SiteName:    s.Company.Name,
			Locale:      s.Company.Locale,
		},
		Twitter: Twitter{
			Card:        card,
			Title:       full,
			Description: description,
			Image:       image,
		},
	}
}

// Title formats "<page> | <company>". An empty page title yields the company name alone.
func Title(s site.Site, page string) string {
	name := s.Company.Name
	page = strings.TrimSpace(page)
	switch {
	case page == "":
		return name
	case name == "" || page == name:
		return page
	default:
		return page + " | " + name
	}
}

// Breadcrumbs lists absolute crumbs from home to path. leaf overrides the label of the last
// segment when the route table does not know it.
func Breadcrumbs(s site.Site, path, leaf string) []BreadcrumbItem {
	crumbs := []BreadcrumbItem{{Name: homeLabel(s), Item: s.URL(site.PathHome)}}
	path = site.NormalizePath(path)
	if path == site.PathHome {
		return crumbs
	}

	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	href := ""
	for i, part := range parts {
		href += "/" + part
		name := titleFromSegment(part)
		if r, ok := s.Route(href); ok && r.Label != "" {
			name = r.Label
		} else if i == len(parts)-1 && leaf != "" {
			name = leaf
		}
		crumbs = append(crumbs, BreadcrumbItem{Name: name, Item: s.URL(href)})
	}
	return crumbs
}

func homeLabel(s site.Site) string {
	if r, ok := s.Route(site.PathHome); ok && r.Label != "" {
		return r.Label
	}
	return "Accueil"
}

func titleFromSegment(seg string) string {
	if seg == "" {
		return seg
	}
	r := []rune(strings.NewReplacer("-", " ", "_", " ").Replace(seg))
	r[0] = []rune(strings.ToUpper(string(r[0])))[0]
	return string(r)
}
