package firestore

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/thobenayann/hexoprint-sub001/internal/platform/config"
)

func TestWrapErrorClassifiesStatus(t *testing.T) {
	err := WrapError("articles.get", status.Error(codes.NotFound, "missing"))
	if !IsNotFound(err) {
		t.Fatalf("expected not found classification, got %v", err)
	}
	if got := err.Error(); got != "articles.get: rpc error: code = NotFound desc = missing" {
		t.Fatalf("unexpected message %q", got)
	}

	err = WrapError("gallery.query", status.Error(codes.Unavailable, "down"))
	var fsErr *Error
	if !errors.As(err, &fsErr) || !fsErr.IsUnavailable() {
		t.Fatalf("expected unavailable classification, got %v", err)
	}
}

func TestWrapErrorPassesThroughCancellation(t *testing.T) {
	if err := WrapError("op", status.Error(codes.Canceled, "gone")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := WrapError("op", context.DeadlineExceeded); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if WrapError("op", nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestProviderRequiresProjectAndRejectsAfterClose(t *testing.T) {
	provider := NewProvider(config.FirestoreConfig{})
	if _, err := provider.Client(context.Background()); err == nil {
		t.Fatalf("expected error without project id")
	}
	if err := provider.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := provider.Client(context.Background()); !errors.Is(err, ErrProviderClosed) {
		t.Fatalf("expected ErrProviderClosed, got %v", err)
	}
}
