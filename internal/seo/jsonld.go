package seo

import (
	"encoding/json"
	"time"

	"github.com/thobenayann/hexoprint-sub001/internal/site"
)

const schemaContext = "https://schema.org"

// JSON marshals v to a compact JSON string. It returns an empty string on error.
func JSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// LocalBusiness describes the workshop for the home page.
func LocalBusiness(s site.Site) map[string]any {
	c := s.Company
	m := map[string]any{
		"@context": schemaContext,
		"@type":    "LocalBusiness",
		"name":     c.Name,
		"url":      s.URL(site.PathHome),
	}
	if c.Description != "" {
		m["description"] = c.Description
	}
	if c.Email != "" {
		m["email"] = c.Email
	}
	if c.Phone != "" {
		m["telephone"] = c.Phone
	}
	if c.Logo != "" {
		m["logo"] = s.URL(c.Logo)
	}
	if c.Image != "" {
		m["image"] = s.URL(c.Image)
	}
	if c.PriceRange != "" {
		m["priceRange"] = c.PriceRange
	}
	if len(c.SameAs) > 0 {
		m["sameAs"] = c.SameAs
	}
	if c.Street != "" || c.City != "" || c.PostalCode != "" {
		addr := map[string]any{"@type": "PostalAddress"}
		setIf(addr, "streetAddress", c.Street)
		setIf(addr, "postalCode", c.PostalCode)
		setIf(addr, "addressLocality", c.City)
		setIf(addr, "addressRegion", c.Region)
		setIf(addr, "addressCountry", c.Country)
		m["address"] = addr
	}
	return m
}

// BreadcrumbItem maps name and absolute item URL.
type BreadcrumbItem struct {
	Name string
	Item string
}

// BreadcrumbList builds schema.org BreadcrumbList.
func BreadcrumbList(items []BreadcrumbItem) map[string]any {
	el := make([]map[string]any, 0, len(items))
	for i, it := range items {
		el = append(el, map[string]any{
			"@type":    "ListItem",
			"position": i + 1,
			"name":     it.Name,
			"item":     it.Item,
		})
	}
	return map[string]any{
		"@context":        schemaContext,
		"@type":           "BreadcrumbList",
		"itemListElement": el,
	}
}

// ArticleSchema returns an Article payload published by the company.
func ArticleSchema(headline, url, imageURL, publisher string, published, modified time.Time) map[string]any {
	m := map[string]any{
		"@context": schemaContext,
		"@type":    "Article",
		"headline": headline,
	}
	setIf(m, "url", url)
	setIf(m, "image", imageURL)
	if publisher != "" {
		org := map[string]any{"@type": "Organization", "name": publisher}
		m["author"] = org
		m["publisher"] = org
	}
	if !published.IsZero() {
		m["datePublished"] = published.UTC().Format(time.RFC3339)
	}
	if !modified.IsZero() {
		m["dateModified"] = modified.UTC().Format(time.RFC3339)
	}
	return m
}

func setIf(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}
