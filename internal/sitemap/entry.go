// Package sitemap builds the crawler sitemap from the static route table and CMS content.
package sitemap

import (
	"fmt"
	"math"
	"net/url"
	"time"
)

// ChangeFrequency is the sitemap <changefreq> hint.
type ChangeFrequency string

const (
	Always  ChangeFrequency = "always"
	Hourly  ChangeFrequency = "hourly"
	Daily   ChangeFrequency = "daily"
	Weekly  ChangeFrequency = "weekly"
	Monthly ChangeFrequency = "monthly"
	Yearly  ChangeFrequency = "yearly"
	Never   ChangeFrequency = "never"
)

// Valid reports whether f belongs to the protocol enumeration.
func (f ChangeFrequency) Valid() bool {
	switch f {
	case Always, Hourly, Daily, Weekly, Monthly, Yearly, Never:
		return true
	default:
		return false
	}
}

// Entry is one <url> record.
type Entry struct {
	URL             string
	LastModified    time.Time
	ChangeFrequency ChangeFrequency
	Priority        float64
	Images          []string
}

// Validate checks the entry invariants: absolute http(s) URL, priority within [0,1] and, when
// set, a known change frequency.
func (e Entry) Validate() error {
	if err := validateURL(e.URL); err != nil {
		return err
	}
	if math.IsNaN(e.Priority) || e.Priority < 0 || e.Priority > 1 {
		return fmt.Errorf("sitemap: priority %v out of range for %s", e.Priority, e.URL)
	}
	if e.ChangeFrequency != "" && !e.ChangeFrequency.Valid() {
		return fmt.Errorf("sitemap: invalid change frequency %q for %s", e.ChangeFrequency, e.URL)
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("sitemap: invalid url %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("sitemap: url %q is not absolute", raw)
	}
	return nil
}

// Mode tells how much of the sitemap could be built.
type Mode string

const (
	// ModeFull means at least one CMS collection was fetched.
	ModeFull Mode = "full"
	// ModeDegraded means only static routes and legal pages are present.
	ModeDegraded Mode = "degraded"
	// ModeMinimal is the three-entry fallback used after an unexpected failure.
	ModeMinimal Mode = "minimal"
)

// Result is the outcome of one build.
type Result struct {
	Entries     []Entry
	Mode        Mode
	GeneratedAt time.Time
}
