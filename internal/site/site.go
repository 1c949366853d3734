// Package site holds the static description of the HexoPrint website: its route table,
// company details and legal pages.
package site

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// RouteStatus tells whether a page is published.
type RouteStatus string

const (
	StatusActive     RouteStatus = "active"
	StatusInactive   RouteStatus = "inactive"
	StatusComingSoon RouteStatus = "coming-soon"
)

// Well-known paths.
const (
	PathHome          = "/"
	PathServices      = "/services"
	PathAbout         = "/a-propos"
	PathContact       = "/contact"
	PathBlog          = "/blog"
	PathGallery       = "/galerie"
	PathLegalNotice   = "/mentions-legales"
	PathPrivacyPolicy = "/politique-de-confidentialite"
)

// Route is one entry of the static route table.
type Route struct {
	Path        string      `yaml:"path" json:"path"`
	Label       string      `yaml:"label" json:"label"`
	Title       string      `yaml:"title" json:"title"`
	Description string      `yaml:"description" json:"description"`
	Status      RouteStatus `yaml:"status" json:"status"`
}

// Active reports whether the route is published.
func (r Route) Active() bool {
	return r.Status == StatusActive
}

// Company describes the business for structured data and email footers.
type Company struct {
	Name        string   `yaml:"name"`
	LegalName   string   `yaml:"legal_name"`
	Description string   `yaml:"description"`
	Email       string   `yaml:"email"`
	Phone       string   `yaml:"phone"`
	Street      string   `yaml:"street"`
	PostalCode  string   `yaml:"postal_code"`
	City        string   `yaml:"city"`
	Region      string   `yaml:"region"`
	Country     string   `yaml:"country"`
	Logo        string   `yaml:"logo"`
	Image       string   `yaml:"image"`
	PriceRange  string   `yaml:"price_range"`
	SameAs      []string `yaml:"same_as"`
	Locale      string   `yaml:"locale"`
}

// Site is the immutable site description. Build it with Default or Load and share it freely.
type Site struct {
	BaseURL string
	Company Company
	routes  []Route
	legal   []Route
}

// File mirrors the optional YAML override document.
type File struct {
	Company *Company `yaml:"company"`
	Routes  []Route  `yaml:"routes"`
}

var defaultRoutes = []Route{
	{Path: PathHome, Label: "Accueil", Title: "Impression 3D sur mesure", Description: "HexoPrint réalise vos pièces en impression 3D : prototypage, pièces techniques et objets personnalisés.", Status: StatusActive},
	{Path: PathServices, Label: "Services", Title: "Nos services d'impression 3D", Description: "Prototypage rapide, petites séries, modélisation et conseil en fabrication additive.", Status: StatusActive},
	{Path: PathAbout, Label: "À propos", Title: "À propos de HexoPrint", Description: "Un atelier indépendant d'impression 3D, passionné par la fabrication sur mesure.", Status: StatusActive},
	{Path: PathGallery, Label: "Galerie", Title: "Galerie de réalisations", Description: "Découvrez une sélection de pièces imprimées par l'atelier.", Status: StatusActive},
	{Path: PathBlog, Label: "Blog", Title: "Blog impression 3D", Description: "Conseils, matériaux et coulisses de l'atelier.", Status: StatusActive},
	{Path: PathContact, Label: "Contact", Title: "Demander un devis", Description: "Décrivez votre projet et joignez vos fichiers 3D pour recevoir un devis.", Status: StatusActive},
}

var legalRoutes = []Route{
	{Path: PathLegalNotice, Label: "Mentions légales", Title: "Mentions légales", Description: "Informations légales relatives au site HexoPrint.", Status: StatusActive},
	{Path: PathPrivacyPolicy, Label: "Politique de confidentialité", Title: "Politique de confidentialité", Description: "Comment HexoPrint traite vos données personnelles.", Status: StatusActive},
}

var defaultCompany = Company{
	Name:        "HexoPrint",
	LegalName:   "HexoPrint",
	Description: "Atelier d'impression 3D à la demande pour particuliers et professionnels.",
	Email:       "contact@hexoprint.fr",
	Country:     "FR",
	Logo:        "/images/logo.png",
	Image:       "/images/og-default.jpg",
	PriceRange:  "€€",
	Locale:      "fr_FR",
}

// Default returns the built-in site description.
func Default(baseURL string) Site {
	return New(baseURL, defaultCompany, defaultRoutes)
}

// New builds a Site from explicit parts. Legal pages are always part of the site.
func New(baseURL string, company Company, routes []Route) Site {
	return Site{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		Company: company,
		routes:  append([]Route(nil), routes...),
		legal:   append([]Route(nil), legalRoutes...),
	}
}

// Load reads a YAML override file on top of the defaults. An empty path returns Default.
func Load(path, baseURL string) (Site, error) {
	s := Default(baseURL)
	path = strings.TrimSpace(path)
	if path == "" {
		return s, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Site{}, fmt.Errorf("site: read %s: %w", path, err)
	}
	var file File
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return Site{}, fmt.Errorf("site: parse %s: %w", path, err)
	}
	if file.Company != nil {
		s.Company = mergeCompany(s.Company, *file.Company)
	}
	if len(file.Routes) > 0 {
		routes, err := normalizeRoutes(file.Routes)
		if err != nil {
			return Site{}, fmt.Errorf("site: %s: %w", path, err)
		}
		s.routes = routes
	}
	return s, nil
}

// Routes returns a copy of the static route table.
func (s Site) Routes() []Route {
	return append([]Route(nil), s.routes...)
}

// ActiveRoutes returns published routes in table order.
func (s Site) ActiveRoutes() []Route {
	out := make([]Route, 0, len(s.routes))
	for _, r := range s.routes {
		if r.Active() {
			out = append(out, r)
		}
	}
	return out
}

// LegalPages returns the legal pages that every sitemap carries.
func (s Site) LegalPages() []Route {
	return append([]Route(nil), s.legal...)
}

// Route finds an active page (static or legal) by path.
func (s Site) Route(path string) (Route, bool) {
	path = NormalizePath(path)
	for _, r := range s.routes {
		if r.Path == path {
			return r, r.Active()
		}
	}
	for _, r := range s.legal {
		if r.Path == path {
			return r, true
		}
	}
	return Route{}, false
}

// URL joins path onto the base URL.
func (s Site) URL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	path = NormalizePath(path)
	if path == PathHome {
		return s.BaseURL + "/"
	}
	return s.BaseURL + path
}

// ArticlePath is the canonical path of a blog article. The slug is escaped as one segment.
func ArticlePath(slug string) string {
	slug = strings.Trim(strings.TrimSpace(slug), "/")
	if slug == "" {
		return PathBlog
	}
	return PathBlog + "/" + url.PathEscape(slug)
}

// NormalizePath makes "blog/" and "/blog" compare equal.
func NormalizePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || path == "/" {
		return PathHome
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimRight(path, "/")
}

func normalizeRoutes(routes []Route) ([]Route, error) {
	out := make([]Route, 0, len(routes))
	seen := make(map[string]struct{}, len(routes))
	for i, r := range routes {
		r.Path = NormalizePath(r.Path)
		if _, err := url.Parse(r.Path); err != nil {
			return nil, fmt.Errorf("route %d: invalid path %q", i, r.Path)
		}
		if _, dup := seen[r.Path]; dup {
			return nil, fmt.Errorf("route %d: duplicate path %q", i, r.Path)
		}
		seen[r.Path] = struct{}{}
		switch r.Status {
		case "":
			r.Status = StatusActive
		case StatusActive, StatusInactive, StatusComingSoon:
		default:
			return nil, fmt.Errorf("route %d: unknown status %q", i, r.Status)
		}
		if strings.TrimSpace(r.Label) == "" {
			r.Label = r.Title
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil, errors.New("route table is empty")
	}
	return out, nil
}

func mergeCompany(base, override Company) Company {
	pick := func(a, b string) string {
		if strings.TrimSpace(b) != "" {
			return strings.TrimSpace(b)
		}
		return a
	}
	base.Name = pick(base.Name, override.Name)
	base.LegalName = pick(base.LegalName, override.LegalName)
	base.Description = pick(base.Description, override.Description)
	base.Email = pick(base.Email, override.Email)
	base.Phone = pick(base.Phone, override.Phone)
	base.Street = pick(base.Street, override.Street)
	base.PostalCode = pick(base.PostalCode, override.PostalCode)
	base.City = pick(base.City, override.City)
	base.Region = pick(base.Region, override.Region)
	base.Country = pick(base.Country, override.Country)
	base.Logo = pick(base.Logo, override.Logo)
	base.Image = pick(base.Image, override.Image)
	base.PriceRange = pick(base.PriceRange, override.PriceRange)
	base.Locale = pick(base.Locale, override.Locale)
	if len(override.SameAs) > 0 {
		base.SameAs = append([]string(nil), override.SameAs...)
	}
	return base
}
