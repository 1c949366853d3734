package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile          = ".env"
	defaultPort             = "8080"
	defaultReadTimeout      = 15 * time.Second
	defaultWriteTimeout     = 60 * time.Second
	defaultIdleTimeout      = 120 * time.Second
	defaultShutdownTimeout  = 15 * time.Second
	defaultLogLevel         = "info"
	defaultBaseURL          = "https://hexoprint.fr"
	defaultEnvironment      = "development"
	defaultSitemapTTL       = time.Hour
	defaultSanityDataset    = "production"
	defaultSanityAPIVersion = "2024-01-01"
	defaultCMSTimeout       = 10 * time.Second
	defaultMailFrom         = "HexoPrint <contact@hexoprint.fr>"
	defaultSignedURLTTL     = 7 * 24 * time.Hour
	maxSignedURLTTL         = 7 * 24 * time.Hour
	defaultContactPerMinute = 5
	defaultUploadPerMinute  = 20
	defaultContactTopic     = "contact-submissions"
)

// CMS backends understood by the loader.
const (
	CMSBackendNone      = "none"
	CMSBackendSanity    = "sanity"
	CMSBackendFirestore = "firestore"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server     ServerConfig
	Site       SiteConfig
	CMS        CMSConfig
	Mail       MailConfig
	Storage    StorageConfig
	PubSub     PubSubConfig
	RateLimits RateLimitConfig
	Secrets    SecretsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	LogLevel        string
}

// SiteConfig describes the public site being served.
type SiteConfig struct {
	BaseURL     string
	Environment string
	// File optionally points at a YAML document overriding the built-in route table.
	File       string
	SitemapTTL time.Duration
}

// IsProduction reports whether crawlers should be allowed in.
func (s SiteConfig) IsProduction() bool {
	switch strings.ToLower(strings.TrimSpace(s.Environment)) {
	case "production", "prod":
		return true
	default:
		return false
	}
}

// CMSConfig selects and configures the content backend.
type CMSConfig struct {
	Backend   string
	Timeout   time.Duration
	Sanity    SanityConfig
	Firestore FirestoreConfig
}

// SanityConfig holds the hosted query API coordinates.
type SanityConfig struct {
	ProjectID  string
	Dataset    string
	APIVersion string
	Token      string
	// APIURL overrides the derived https://<project>.api.sanity.io endpoint.
	APIURL string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// MailConfig configures transactional email.
type MailConfig struct {
	ResendAPIKey    string
	From            string
	AdminRecipients []string
}

// Enabled reports whether a mail provider is configured.
func (m MailConfig) Enabled() bool {
	return strings.TrimSpace(m.ResendAPIKey) != ""
}

// StorageConfig configures the upload bucket.
type StorageConfig struct {
	Bucket        string
	PublicBaseURL string
	// SignerCredentials is a service account JSON key (inline or secret reference). When set,
	// uploaded objects are exposed through V4 signed URLs instead of public URLs.
	SignerCredentials     string
	SignerCredentialsFile string
	SignedURLTTL          time.Duration
}

// Enabled reports whether uploads can be stored.
func (s StorageConfig) Enabled() bool {
	return strings.TrimSpace(s.Bucket) != ""
}

// PubSubConfig configures event publishing.
type PubSubConfig struct {
	ProjectID    string
	ContactTopic string
	EmulatorHost string
}

// RateLimitConfig controls request throttling.
type RateLimitConfig struct {
	ContactPerMinute int
	UploadPerMinute  int
}

// SecretsConfig configures Secret Manager lookups.
type SecretsConfig struct {
	ProjectID    string
	FallbackFile string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map. Values in the map take precedence over
// system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// Lookup returns a single raw value using the same precedence as Load. main uses it to
// bootstrap the secret fetcher before the full configuration can be resolved.
func Lookup(key string, opts ...Option) (string, error) {
	options := newLoaderOptions(opts)
	lookup, err := options.lookup()
	if err != nil {
		return "", err
	}
	value, _ := lookup(key)
	return strings.TrimSpace(value), nil
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables and optional Secret Manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	lookup, err := options.lookup()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            stringWithDefault(lookup, "PORT", stringWithDefault(lookup, "SERVER_PORT", defaultPort)),
			ReadTimeout:     durationWithDefault(lookup, "SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
			LogLevel:        strings.ToLower(stringWithDefault(lookup, "LOG_LEVEL", defaultLogLevel)),
		},
		Site: SiteConfig{
			BaseURL:     strings.TrimRight(stringWithDefault(lookup, "SITE_BASE_URL", defaultBaseURL), "/"),
			Environment: strings.ToLower(stringWithDefault(lookup, "SITE_ENV", defaultEnvironment)),
			File:        stringWithDefault(lookup, "SITE_FILE", ""),
			SitemapTTL:  durationWithDefault(lookup, "SITE_SITEMAP_TTL", defaultSitemapTTL),
		},
		CMS: CMSConfig{
			Backend: strings.ToLower(stringWithDefault(lookup, "CMS_BACKEND", "")),
			Timeout: durationWithDefault(lookup, "CMS_TIMEOUT", defaultCMSTimeout),
			Sanity: SanityConfig{
				ProjectID:  stringWithDefault(lookup, "CMS_SANITY_PROJECT_ID", ""),
				Dataset:    stringWithDefault(lookup, "CMS_SANITY_DATASET", defaultSanityDataset),
				APIVersion: stringWithDefault(lookup, "CMS_SANITY_API_VERSION", defaultSanityAPIVersion),
				Token:      stringWithDefault(lookup, "CMS_SANITY_TOKEN", ""),
				APIURL:     stringWithDefault(lookup, "CMS_SANITY_API_URL", ""),
			},
			Firestore: FirestoreConfig{
				ProjectID:    stringWithDefault(lookup, "CMS_FIRESTORE_PROJECT_ID", stringWithDefault(lookup, "GOOGLE_CLOUD_PROJECT", "")),
				EmulatorHost: stringWithDefault(lookup, "FIRESTORE_EMULATOR_HOST", ""),
			},
		},
		Mail: MailConfig{
			ResendAPIKey:    stringWithDefault(lookup, "MAIL_RESEND_API_KEY", ""),
			From:            stringWithDefault(lookup, "MAIL_FROM", defaultMailFrom),
			AdminRecipients: csvWithDefault(lookup, "MAIL_ADMIN_RECIPIENTS"),
		},
		Storage: StorageConfig{
			Bucket:                stringWithDefault(lookup, "STORAGE_BUCKET", ""),
			PublicBaseURL:         strings.TrimRight(stringWithDefault(lookup, "STORAGE_PUBLIC_BASE_URL", ""), "/"),
			SignerCredentials:     stringWithDefault(lookup, "STORAGE_SIGNER_CREDENTIALS", ""),
			SignerCredentialsFile: stringWithDefault(lookup, "STORAGE_SIGNER_CREDENTIALS_FILE", ""),
			SignedURLTTL:          durationWithDefault(lookup, "STORAGE_SIGNED_URL_TTL", defaultSignedURLTTL),
		},
		PubSub: PubSubConfig{
			ProjectID:    stringWithDefault(lookup, "PUBSUB_PROJECT_ID", stringWithDefault(lookup, "GOOGLE_CLOUD_PROJECT", "")),
			ContactTopic: stringWithDefault(lookup, "PUBSUB_CONTACT_TOPIC", ""),
			EmulatorHost: stringWithDefault(lookup, "PUBSUB_EMULATOR_HOST", ""),
		},
		RateLimits: RateLimitConfig{
			ContactPerMinute: intWithDefault(lookup, "RATELIMIT_CONTACT_PER_MIN", defaultContactPerMinute),
			UploadPerMinute:  intWithDefault(lookup, "RATELIMIT_UPLOAD_PER_MIN", defaultUploadPerMinute),
		},
		Secrets: SecretsConfig{
			ProjectID:    stringWithDefault(lookup, "SECRETS_PROJECT_ID", stringWithDefault(lookup, "GOOGLE_CLOUD_PROJECT", "")),
			FallbackFile: stringWithDefault(lookup, "SECRETS_FALLBACK_FILE", ""),
		},
	}

	if cfg.CMS.Backend == "" {
		cfg.CMS.Backend = CMSBackendNone
		if cfg.CMS.Sanity.ProjectID != "" || cfg.CMS.Sanity.APIURL != "" {
			cfg.CMS.Backend = CMSBackendSanity
		}
	}
	if cfg.PubSub.ProjectID != "" && cfg.PubSub.ContactTopic == "" && boolWithDefault(lookup, "PUBSUB_CONTACT_EVENTS", false) {
		cfg.PubSub.ContactTopic = defaultContactTopic
	}

	secretFields := []*string{
		&cfg.CMS.Sanity.Token,
		&cfg.Mail.ResendAPIKey,
		&cfg.Storage.SignerCredentials,
	}
	for _, field := range secretFields {
		resolved, err := resolveSecret(ctx, *field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*field = resolved
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", errSecretResolverNotConfigured
		}),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// lookup applies the precedence explicit map > OS env > .env file.
func (o loaderOptions) lookup() (func(string) (string, bool), error) {
	dotEnvValues, err := loadDotEnv(o.envFile)
	if err != nil {
		return nil, err
	}
	return func(key string) (string, bool) {
		if o.envMap != nil {
			if value, ok := o.envMap[key]; ok {
				return value, true
			}
		}
		if o.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := dotEnvValues[key]
		return value, ok
	}, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return strings.TrimSpace(secret), nil
}

func validateConfig(cfg Config) error {
	var invalid []string

	if cfg.Server.Port == "" {
		invalid = append(invalid, "Server.Port")
	}
	if u, err := url.Parse(cfg.Site.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		invalid = append(invalid, "Site.BaseURL")
	}
	if cfg.Site.SitemapTTL < 0 {
		invalid = append(invalid, "Site.SitemapTTL")
	}
	switch cfg.CMS.Backend {
	case CMSBackendNone:
	case CMSBackendSanity:
		if cfg.CMS.Sanity.ProjectID == "" && cfg.CMS.Sanity.APIURL == "" {
			invalid = append(invalid, "CMS.Sanity.ProjectID")
		}
		if cfg.CMS.Sanity.Dataset == "" {
			invalid = append(invalid, "CMS.Sanity.Dataset")
		}
	case CMSBackendFirestore:
		if cfg.CMS.Firestore.ProjectID == "" {
			invalid = append(invalid, "CMS.Firestore.ProjectID")
		}
	default:
		invalid = append(invalid, "CMS.Backend")
	}
	if cfg.Mail.Enabled() {
		if cfg.Mail.From == "" {
			invalid = append(invalid, "Mail.From")
		}
		if len(cfg.Mail.AdminRecipients) == 0 {
			invalid = append(invalid, "Mail.AdminRecipients")
		}
	}
	if cfg.Storage.SignedURLTTL <= 0 || cfg.Storage.SignedURLTTL > maxSignedURLTTL {
		invalid = append(invalid, "Storage.SignedURLTTL")
	}
	if cfg.PubSub.ContactTopic != "" && cfg.PubSub.ProjectID == "" {
		invalid = append(invalid, "PubSub.ProjectID")
	}
	if cfg.RateLimits.ContactPerMinute <= 0 {
		invalid = append(invalid, "RateLimits.ContactPerMinute")
	}
	if cfg.RateLimits.UploadPerMinute <= 0 {
		invalid = append(invalid, "RateLimits.UploadPerMinute")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	values, err := godotenv.Read(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
