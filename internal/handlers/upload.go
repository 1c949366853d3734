package handlers

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/thobenayann/hexoprint-sub001/internal/platform/httpx"
	"github.com/thobenayann/hexoprint-sub001/internal/platform/metrics"
	"github.com/thobenayann/hexoprint-sub001/internal/platform/requestctx"
	"github.com/thobenayann/hexoprint-sub001/internal/upload"
)

const (
	uploadFormField     = "files"
	uploadMemoryBuffer  = 32 << 20
	uploadEnvelopeSlack = 1 << 20
)

// UploadService stores one validated file. *upload.Service satisfies it.
type UploadService interface {
	Save(ctx context.Context, f upload.File) upload.Result
}

// UploadHandlers serve the multipart upload endpoint.
type UploadHandlers struct {
	service UploadService
	limiter rateLimiter
	metrics *metrics.Recorder
	maxBody int64
}

// UploadOption customises UploadHandlers.
type UploadOption func(*UploadHandlers)

// WithUploadRateLimit allows perMinute requests per client IP.
func WithUploadRateLimit(perMinute int, clock func() time.Time) UploadOption {
	return func(h *UploadHandlers) {
		h.limiter = newFixedWindowLimiter(perMinute, time.Minute, clock)
	}
}

// WithUploadMetrics records per-file outcomes.
func WithUploadMetrics(rec *metrics.Recorder) UploadOption {
	return func(h *UploadHandlers) {
		h.metrics = rec
	}
}

// NewUploadHandlers constructs the handlers. A nil service answers 503.
func NewUploadHandlers(service UploadService, opts ...UploadOption) *UploadHandlers {
	var largest int64
	for _, rule := range upload.Rules() {
		if rule.MaxSize > largest {
			largest = rule.MaxSize
		}
	}
	h := &UploadHandlers{
		service: service,
		maxBody: largest*upload.MaxFilesPerRequest + uploadEnvelopeSlack,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the upload endpoint.
func (h *UploadHandlers) Routes(r chi.Router) {
	r.Post("/api/upload", h.upload)
}

type uploadResponse struct {
	Success bool            `json:"success"`
	Results []upload.Result `json:"results"`
}

func (h *UploadHandlers) upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.service == nil {
		httpx.WriteError(ctx, w, httpx.NewError("storage_unavailable", "L'envoi de fichiers est momentanément indisponible.", http.StatusServiceUnavailable))
		return
	}
	if !allowRequest(h.limiter, w, r) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := r.ParseMultipartForm(uploadMemoryBuffer); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "La requête dépasse la taille maximale autorisée.", http.StatusRequestEntityTooLarge))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_multipart", "Le formulaire envoyé est invalide.", http.StatusBadRequest))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	headers := r.MultipartForm.File[uploadFormField]
	switch {
	case len(headers) == 0:
		httpx.WriteError(ctx, w, httpx.NewError("no_files", "Aucun fichier reçu.", http.StatusBadRequest))
		return
	case len(headers) > upload.MaxFilesPerRequest:
		httpx.WriteError(ctx, w, httpx.NewError("too_many_files", fmt.Sprintf("%d fichiers maximum par envoi.", upload.MaxFilesPerRequest), http.StatusBadRequest))
		return
	}

	results := make([]upload.Result, 0, len(headers))
	allOK := true
	for _, hdr := range headers {
		res := h.saveOne(ctx, hdr)
		if !res.Success {
			allOK = false
		}
		outcome := "stored"
		if !res.Success {
			outcome = "rejected"
		}
		h.metrics.ObserveUpload(string(res.Category), outcome, res.Size)
		results = append(results, res)
	}

	httpx.WriteJSON(w, http.StatusOK, uploadResponse{Success: allOK, Results: results})
}

func (h *UploadHandlers) saveOne(ctx context.Context, hdr *multipart.FileHeader) upload.Result {
	f, err := hdr.Open()
	if err != nil {
		requestctx.Logger(ctx).Warn("upload: open part failed", zap.String("file", hdr.Filename), zap.Error(err))
		return upload.Result{FileName: hdr.Filename, Error: "fichier illisible"}
	}
	defer f.Close()

	return h.service.Save(ctx, upload.File{
		Name:        hdr.Filename,
		Size:        hdr.Size,
		ContentType: hdr.Header.Get("Content-Type"),
		Body:        f,
	})
}
