package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/thobenayann/hexoprint-sub001/internal/contact"
	"github.com/thobenayann/hexoprint-sub001/internal/mail"
)

type stubMailer struct {
	sent int
	err  error
}

func (m *stubMailer) Send(context.Context, mail.Message) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.sent++
	return "re_" + string(rune('0'+m.sent)), nil
}

func newContactRouter(t *testing.T, mailer mail.Mailer, opts ...ContactOption) http.Handler {
	t.Helper()
	svc, err := contact.NewService(contact.ServiceDeps{
		Mailer:          mailer,
		From:            "HexoPrint <contact@hexoprint.fr>",
		AdminRecipients: []string{"atelier@hexoprint.fr"},
	})
	if err != nil {
		t.Fatalf("contact service: %v", err)
	}
	return NewRouter(WithRoutes(NewContactHandlers(svc, opts...).Routes))
}

const validContactJSON = `{
	"type": "particulier",
	"name": "Léa Dubois",
	"email": "lea@example.com",
	"projectDescription": "Impression d'une figurine de 15 cm en résine."
}`

func postContact(router http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:4242"
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestContactSuccess(t *testing.T) {
	mailer := &stubMailer{}
	rr := postContact(newContactRouter(t, mailer), validContactJSON)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["success"] != true || body["messageId"] != "re_1" {
		t.Fatalf("unexpected body %v", body)
	}
	if mailer.sent != 2 {
		t.Fatalf("expected two emails, got %d", mailer.sent)
	}
}

func TestContactMissingEmail(t *testing.T) {
	payload := strings.Replace(validContactJSON, `"email": "lea@example.com",`, "", 1)
	rr := postContact(newContactRouter(t, &stubMailer{}), payload)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error"] != "validation_failed" {
		t.Fatalf("unexpected error code %v", body["error"])
	}
	fields, ok := body["errors"].([]any)
	if !ok || len(fields) != 1 {
		t.Fatalf("expected one field error, got %v", body["errors"])
	}
	if field := fields[0].(map[string]any)["field"]; field != "email" {
		t.Fatalf("expected email field error, got %v", field)
	}
}

func TestContactInvalidJSON(t *testing.T) {
	rr := postContact(newContactRouter(t, &stubMailer{}), `{"type":`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error"] != "invalid_json" {
		t.Fatalf("unexpected error %v", body["error"])
	}
}

func TestContactDeliveryFailure(t *testing.T) {
	rr := postContact(newContactRouter(t, &stubMailer{err: errors.New("provider down")}), validContactJSON)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error"] != "contact_failed" {
		t.Fatalf("unexpected error %v", body["error"])
	}
	if strings.Contains(rr.Body.String(), "provider down") {
		t.Fatalf("provider error leaked to client")
	}
}

func TestContactRateLimited(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	router := newContactRouter(t, &stubMailer{}, WithContactRateLimit(2, func() time.Time { return now }))

	for i := 0; i < 2; i++ {
		if rr := postContact(router, validContactJSON); rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rr.Code)
		}
	}
	rr := postContact(router, validContactJSON)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "60" {
		t.Fatalf("expected Retry-After 60, got %q", rr.Header().Get("Retry-After"))
	}
}

func TestContactUnavailableWithoutService(t *testing.T) {
	router := NewRouter(WithRoutes(NewContactHandlers(nil).Routes))
	rr := postContact(router, validContactJSON)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
