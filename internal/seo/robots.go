package seo

import (
	"strings"

	"github.com/thobenayann/hexoprint-sub001/internal/site"
)

// Robots renders robots.txt. Only production is crawlable; every other environment blocks all
// agents so previews never get indexed.
func Robots(production bool, s site.Site) string {
	var b strings.Builder
	b.WriteString("User-agent: *\n")
	if !production {
		b.WriteString("Disallow: /\n")
		return b.String()
	}
	b.WriteString("Allow: /\n")
	b.WriteString("Disallow: /api/\n")
	b.WriteString("\n")
	b.WriteString("Sitemap: " + s.URL("/sitemap.xml") + "\n")
	return b.String()
}
