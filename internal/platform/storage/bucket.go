package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

const (
	publicEndpoint      = "https://storage.googleapis.com"
	defaultSignedURLTTL = 7 * 24 * time.Hour
	// V4 signatures cannot outlive seven days.
	maxSignedURLTTL = 7 * 24 * time.Hour
)

var (
	errInvalidBucket = errors.New("storage: bucket name is required")
	errInvalidObject = errors.New("storage: object name is required")
)

// Object describes a stored upload.
type Object struct {
	Name        string
	URL         string
	Size        int64
	ContentType string
	CreatedAt   time.Time
}

// PutOptions carry the attributes written with an object.
type PutOptions struct {
	ContentType string
	// DownloadName becomes the Content-Disposition file name.
	DownloadName string
	Metadata     map[string]string
}

// Bucket writes uploads into a single GCS bucket and mints links to them.
type Bucket struct {
	client    *storage.Client
	name      string
	publicURL string
	signer    Signer
	ttl       time.Duration
	now       func() time.Time
}

// BucketOption customises Bucket behaviour.
type BucketOption func(*Bucket)

// WithPublicBaseURL overrides the public object endpoint (CDN or custom domain).
func WithPublicBaseURL(base string) BucketOption {
	return func(b *Bucket) {
		if trimmed := strings.TrimRight(strings.TrimSpace(base), "/"); trimmed != "" {
			b.publicURL = trimmed
		}
	}
}

// WithSigner switches object links to V4 signed GET URLs valid for ttl.
func WithSigner(signer Signer, ttl time.Duration) BucketOption {
	return func(b *Bucket) {
		b.signer = signer
		if ttl > 0 {
			b.ttl = ttl
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) BucketOption {
	return func(b *Bucket) {
		if clock != nil {
			b.now = clock
		}
	}
}

// NewBucket binds a Bucket to name. client may be nil in tests that only mint URLs.
func NewBucket(client *storage.Client, name string, opts ...BucketOption) (*Bucket, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errInvalidBucket
	}
	b := &Bucket{
		client:    client,
		name:      name,
		publicURL: publicEndpoint + "/" + name,
		ttl:       defaultSignedURLTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	if b.ttl > maxSignedURLTTL {
		b.ttl = maxSignedURLTTL
	}
	return b, nil
}

// Name returns the bucket name.
func (b *Bucket) Name() string { return b.name }

// Put streams body into object. Existing objects are never overwritten.
func (b *Bucket) Put(ctx context.Context, object string, body io.Reader, opts PutOptions) (Object, error) {
	object = strings.TrimSpace(object)
	if object == "" {
		return Object{}, errInvalidObject
	}
	if b.client == nil {
		return Object{}, errors.New("storage: client not configured")
	}

	// Cancelling the writer context is the only way to abandon an upload; Close would commit
	// whatever was written so far.
	writeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	w := b.client.Bucket(b.name).Object(object).If(storage.Conditions{DoesNotExist: true}).NewWriter(writeCtx)
	w.ContentType = opts.ContentType
	w.Metadata = opts.Metadata
	if opts.DownloadName != "" {
		w.ContentDisposition = fmt.Sprintf("attachment; filename=%q", opts.DownloadName)
	}

	if _, err := io.Copy(w, body); err != nil {
		cancel()
		_ = w.Close()
		return Object{}, fmt.Errorf("storage: write %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return Object{}, fmt.Errorf("storage: finalize %s: %w", object, err)
	}

	link, err := b.URL(ctx, object)
	if err != nil {
		return Object{}, err
	}
	stored := Object{Name: object, URL: link, ContentType: opts.ContentType, CreatedAt: b.now().UTC()}
	if attrs := w.Attrs(); attrs != nil {
		stored.Size = attrs.Size
		if !attrs.Created.IsZero() {
			stored.CreatedAt = attrs.Created.UTC()
		}
	}
	return stored, nil
}

// URL returns a signed GET URL when a signer is configured, otherwise the public URL.
func (b *Bucket) URL(ctx context.Context, object string) (string, error) {
	object = strings.TrimSpace(object)
	if object == "" {
		return "", errInvalidObject
	}
	if b.signer == nil {
		return b.publicURL + "/" + escapeObject(object), nil
	}

	email := strings.TrimSpace(b.signer.Email())
	if email == "" {
		return "", errors.New("storage: signer has no service account email")
	}
	signed, err := storage.SignedURL(b.name, object, &storage.SignedURLOptions{
		GoogleAccessID: email,
		Scheme:         storage.SigningSchemeV4,
		Method:         "GET",
		Expires:        b.now().Add(b.ttl),
		SignBytes: func(payload []byte) ([]byte, error) {
			return b.signer.SignBytes(ctx, payload)
		},
	})
	if err != nil {
		return "", fmt.Errorf("storage: sign download url: %w", err)
	}
	return signed, nil
}

// Ping reads the bucket attributes. Used by readiness checks.
func (b *Bucket) Ping(ctx context.Context) error {
	if b.client == nil {
		return errors.New("storage: client not configured")
	}
	if _, err := b.client.Bucket(b.name).Attrs(ctx); err != nil {
		return fmt.Errorf("storage: bucket %s: %w", b.name, err)
	}
	return nil
}

func escapeObject(object string) string {
	segments := strings.Split(object, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}
