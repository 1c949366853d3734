package storage

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"
)

type fakeSigner struct {
	email    string
	payloads [][]byte
	err      error
}

func (f *fakeSigner) Email() string { return f.email }

func (f *fakeSigner) SignBytes(_ context.Context, payload []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.payloads = append(f.payloads, append([]byte(nil), payload...))
	return []byte("signed"), nil
}

func TestBucketPublicURL(t *testing.T) {
	bucket, err := NewBucket(nil, "hexoprint-uploads")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := bucket.URL(context.Background(), "uploads/2025/03/01ABC-piece v2.stl")
	if err != nil {
		t.Fatalf("URL returned error: %v", err)
	}
	want := "https://storage.googleapis.com/hexoprint-uploads/uploads/2025/03/01ABC-piece%20v2.stl"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestBucketCustomPublicBaseURL(t *testing.T) {
	bucket, err := NewBucket(nil, "hexoprint-uploads", WithPublicBaseURL("https://cdn.hexoprint.fr/"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := bucket.URL(context.Background(), "uploads/a.stl")
	if got != "https://cdn.hexoprint.fr/uploads/a.stl" {
		t.Fatalf("unexpected url %s", got)
	}
}

func TestBucketSignedURL(t *testing.T) {
	signer := &fakeSigner{email: "uploads@hexoprint.iam.gserviceaccount.com"}
	bucket, err := NewBucket(nil, "hexoprint-uploads", WithSigner(signer, 30*24*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := bucket.URL(context.Background(), "uploads/2025/01/01ABC-part.stl")
	if err != nil {
		t.Fatalf("URL returned error: %v", err)
	}
	parsed, err := url.Parse(got)
	if err != nil {
		t.Fatalf("failed to parse signed URL: %v", err)
	}
	query := parsed.Query()
	if query.Get("X-Goog-Signature") == "" {
		t.Fatalf("expected signature in query: %s", parsed.RawQuery)
	}
	expires, err := strconv.Atoi(query.Get("X-Goog-Expires"))
	if err != nil || expires <= 0 || expires > 604800 {
		t.Fatalf("expected ttl clamped to seven days, got %q", query.Get("X-Goog-Expires"))
	}
	if !strings.Contains(parsed.Path, "uploads/2025/01/01ABC-part.stl") {
		t.Fatalf("unexpected path %s", parsed.Path)
	}
	if len(signer.payloads) != 1 {
		t.Fatalf("expected one signing call, got %d", len(signer.payloads))
	}
}

func TestBucketSignedURLPropagatesSignerError(t *testing.T) {
	signer := &fakeSigner{email: "uploads@hexoprint.iam.gserviceaccount.com", err: errors.New("kms down")}
	bucket, _ := NewBucket(nil, "b", WithSigner(signer, time.Hour))
	if _, err := bucket.URL(context.Background(), "uploads/a.stl"); err == nil {
		t.Fatalf("expected signing error")
	}
}

func TestNewBucketValidation(t *testing.T) {
	if _, err := NewBucket(nil, "  "); !errors.Is(err, errInvalidBucket) {
		t.Fatalf("expected errInvalidBucket, got %v", err)
	}
	bucket, _ := NewBucket(nil, "b")
	if _, err := bucket.URL(context.Background(), ""); !errors.Is(err, errInvalidObject) {
		t.Fatalf("expected errInvalidObject, got %v", err)
	}
}
