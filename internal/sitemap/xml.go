package sitemap

import (
	"encoding/xml"
	"io"
	"strconv"
	"strings"
	"time"
)

const (
	sitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"
	imageNS   = "http://www.google.com/schemas/sitemap-image/1.1"
)

// ContentType is the media type served for sitemap documents.
const ContentType = "application/xml; charset=utf-8"

type urlSet struct {
	XMLName xml.Name `xml:"urlset"`
	Xmlns   string   `xml:"xmlns,attr"`
	Image   string   `xml:"xmlns:image,attr,omitempty"`
	URLs    []xmlURL `xml:"url"`
}

type xmlURL struct {
	Loc        string     `xml:"loc"`
	LastMod    string     `xml:"lastmod,omitempty"`
	ChangeFreq string     `xml:"changefreq,omitempty"`
	Priority   string     `xml:"priority"`
	Images     []xmlImage `xml:"image:image,omitempty"`
}

type xmlImage struct {
	Loc string `xml:"image:loc"`
}

// Encode writes entries as a sitemaps.org urlset, with the image extension namespace when any
// entry carries images.
func Encode(w io.Writer, entries []Entry) error {
	set := urlSet{Xmlns: sitemapNS, URLs: make([]xmlURL, 0, len(entries))}
	for _, e := range entries {
		u := xmlURL{
			Loc:        e.URL,
			ChangeFreq: string(e.ChangeFrequency),
			Priority:   formatPriority(e.Priority),
		}
		if !e.LastModified.IsZero() {
			u.LastMod = e.LastModified.UTC().Format(time.RFC3339)
		}
		for _, img := range e.Images {
			u.Images = append(u.Images, xmlImage{Loc: img})
		}
		if len(u.Images) > 0 {
			set.Image = imageNS
		}
		set.URLs = append(set.URLs, u)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(set); err != nil {
		return err
	}
	return enc.Flush()
}

// formatPriority keeps two decimals at most and always at least one: 1 -> "1.0", 0.55 -> "0.55".
func formatPriority(p float64) string {
	out := strconv.FormatFloat(p, 'f', 2, 64)
	if strings.HasSuffix(out, "0") {
		out = out[:len(out)-1]
	}
	return out
}
