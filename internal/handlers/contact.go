package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/thobenayann/hexoprint-sub001/internal/contact"
	"github.com/thobenayann/hexoprint-sub001/internal/platform/httpx"
	"github.com/thobenayann/hexoprint-sub001/internal/platform/metrics"
	"github.com/thobenayann/hexoprint-sub001/internal/platform/requestctx"
)

const maxContactBody = 64 << 10

// ContactService accepts contact submissions. *contact.Service satisfies it.
type ContactService interface {
	Submit(ctx context.Context, s contact.Submission) (contact.Receipt, error)
}

// ContactHandlers serve the contact form endpoint.
type ContactHandlers struct {
	service ContactService
	limiter rateLimiter
	metrics *metrics.Recorder
}

// ContactOption customises ContactHandlers.
type ContactOption func(*ContactHandlers)

// WithContactRateLimit allows perMinute submissions per client IP.
func WithContactRateLimit(perMinute int, clock func() time.Time) ContactOption {
	return func(h *ContactHandlers) {
		h.limiter = newFixedWindowLimiter(perMinute, time.Minute, clock)
	}
}

// WithContactMetrics records outcomes.
func WithContactMetrics(rec *metrics.Recorder) ContactOption {
	return func(h *ContactHandlers) {
		h.metrics = rec
	}
}

// NewContactHandlers constructs the handlers. A nil service answers 503.
func NewContactHandlers(service ContactService, opts ...ContactOption) *ContactHandlers {
	h := &ContactHandlers{service: service}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the contact endpoint.
func (h *ContactHandlers) Routes(r chi.Router) {
	r.Post("/api/contact", h.submit)
}

type contactResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
}

func (h *ContactHandlers) submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.service == nil {
		httpx.WriteError(ctx, w, httpx.NewError("contact_unavailable", "Le formulaire de contact est momentanément indisponible.", http.StatusServiceUnavailable))
		return
	}
	if !allowRequest(h.limiter, w, r) {
		h.metrics.IncContact("rate_limited")
		return
	}

	var payload contact.Submission
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxContactBody))
	if err := dec.Decode(&payload); err != nil {
		h.metrics.IncContact("invalid")
		httpx.WriteError(ctx, w, httpx.NewError("invalid_json", "Le corps de la requête n'est pas un JSON valide.", http.StatusBadRequest))
		return
	}

	receipt, err := h.service.Submit(ctx, payload)
	if err != nil {
		var verr *contact.ValidationError
		if errors.As(err, &verr) {
			h.metrics.IncContact("invalid")
			fields := make([]httpx.FieldError, 0, len(verr.Fields))
			for _, f := range verr.Fields {
				fields = append(fields, httpx.FieldError{Field: f.Field, Message: f.Message})
			}
			httpx.WriteError(ctx, w, httpx.NewError("validation_failed", "Certains champs sont invalides.", http.StatusBadRequest).WithFieldErrors(fields))
			return
		}
		h.metrics.IncContact("failed")
		requestctx.Logger(ctx).Error("contact submission failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("contact_failed", "Une erreur est survenue lors de l'envoi de votre demande. Veuillez réessayer.", http.StatusInternalServerError))
		return
	}

	h.metrics.IncContact("sent")
	httpx.WriteJSON(w, http.StatusOK, contactResponse{Success: true, MessageID: receipt.MessageID})
}
