package upload

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/thobenayann/hexoprint-sub001/internal/platform/storage"
)

// MaxFilesPerRequest bounds one multipart batch.
const MaxFilesPerRequest = 10

// ErrStoreMissing signals that no blob store is configured.
var ErrStoreMissing = errors.New("upload: storage is not configured")

// Store persists one object.
type Store interface {
	Put(ctx context.Context, object string, body io.Reader, opts storage.PutOptions) (storage.Object, error)
}

// File is one incoming file. Body is read only when the file passes validation.
type File struct {
	Name        string
	Size        int64
	ContentType string
	Body        io.Reader
}

// Result is the per-file outcome returned to the client.
type Result struct {
	Success     bool       `json:"success"`
	FileName    string     `json:"fileName"`
	URL         string     `json:"url,omitempty"`
	Pathname    string     `json:"pathname,omitempty"`
	Size        int64      `json:"size,omitempty"`
	Category    Category   `json:"category,omitempty"`
	ContentType string     `json:"contentType,omitempty"`
	UploadedAt  *time.Time `json:"uploadedAt,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// ServiceDeps groups constructor parameters for the upload service.
type ServiceDeps struct {
	Store  Store
	Clock  func() time.Time
	Logger *zap.Logger
}

// Service validates and stores files one at a time.
type Service struct {
	store  Store
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the upload service.
func NewService(deps ServiceDeps) (*Service, error) {
	if deps.Store == nil {
		return nil, ErrStoreMissing
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: deps.Store, clock: func() time.Time { return clock().UTC() }, logger: logger}, nil
}

// Save validates f and writes it under uploads/YYYY/MM/<ulid>-<name>. Failures are reported in
// the result, never as an error, so one bad file does not abort a batch.
func (s *Service) Save(ctx context.Context, f File) Result {
	name := strings.TrimSpace(f.Name)
	res := Result{FileName: name}

	category, err := Validate(name, f.Size)
	res.Category = category
	if err != nil {
		res.Error = err.Error()
		return res
	}

	now := s.clock()
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return s.fail(res, "generate id", err)
	}
	object, err := storage.UploadObjectPath(now, strings.ToLower(id.String()), name)
	if err != nil {
		return s.fail(res, "object path", err)
	}

	rule, _ := Classify(name)
	contentType := ContentType(name, f.ContentType)
	stored, err := s.store.Put(ctx, object, io.LimitReader(f.Body, rule.MaxSize), storage.PutOptions{
		ContentType:  contentType,
		DownloadName: storage.NormalizeFileName(name),
		Metadata: map[string]string{
			"originalName": name,
			"category":     string(category),
		},
	})
	if err != nil {
		return s.fail(res, "store", err)
	}

	uploadedAt := stored.CreatedAt
	if uploadedAt.IsZero() {
		uploadedAt = now
	}
	size := stored.Size
	if size == 0 {
		size = f.Size
	}
	res.Success = true
	res.URL = stored.URL
	res.Pathname = stored.Name
	res.Size = size
	res.ContentType = contentType
	res.UploadedAt = &uploadedAt
	return res
}

func (s *Service) fail(res Result, stage string, err error) Result {
	s.logger.Error("upload failed", zap.String("stage", stage), zap.String("file", res.FileName), zap.Error(err))
	res.Error = "échec de l'envoi du fichier"
	return res
}
