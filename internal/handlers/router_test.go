package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response %q: %v", rr.Body.String(), err)
	}
	return body
}

func TestRouterNotFoundUsesErrorEnvelope(t *testing.T) {
	router := NewRouter()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error"] != errorNotFoundCode {
		t.Fatalf("expected route_not_found, got %v", body["error"])
	}
	if body["request_id"] == nil {
		t.Fatalf("expected request id in envelope")
	}
}

func TestRouterMethodNotAllowed(t *testing.T) {
	router := NewRouter()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/healthz", nil))

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestRouterMountsMetricsAndRoutes(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	router := NewRouter(
		WithMetricsHandler(metrics),
		WithRoutes(NewSEOHandlers(testSite(), &stubBuilder{}).Routes),
	)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "# metrics" {
		t.Fatalf("unexpected metrics response %d %q", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/robots.txt", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected robots route, got %d", rr.Code)
	}
}

func TestHealthHandlersHealthz(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	handlers := NewHealthHandlers(
		WithHealthBuildInfo(BuildInfo{Version: "1.2.0", CommitSHA: "abc123", Environment: "production", StartedAt: start}),
		WithHealthClock(func() time.Time { return start.Add(90 * time.Second) }),
	)

	rr := httptest.NewRecorder()
	handlers.Healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["status"] != "ok" || body["uptime"] != "1m30s" || body["commitSha"] != "abc123" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestHealthHandlersReadyz(t *testing.T) {
	ok := NewHealthHandlers(
		WithReadinessCheck("cms", func(context.Context) error { return nil }),
	)
	rr := httptest.NewRecorder()
	ok.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	failing := NewHealthHandlers(
		WithReadinessCheck("cms", func(context.Context) error { return nil }),
		WithReadinessCheck("storage", func(context.Context) error { return errors.New("bucket missing") }),
	)
	rr = httptest.NewRecorder()
	failing.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}

	var body struct {
		Status  string   `json:"status"`
		Details []string `json:"details"`
		Checks  map[string]struct {
			Status string `json:"status"`
		} `json:"checks"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Status != "degraded" {
		t.Fatalf("expected degraded, got %s", body.Status)
	}
	if len(body.Details) != 1 || body.Details[0] != "storage: bucket missing" {
		t.Fatalf("unexpected details %v", body.Details)
	}
	if body.Checks["cms"].Status != "ok" {
		t.Fatalf("expected cms ok, got %v", body.Checks["cms"])
	}
}

func TestFixedWindowLimiter(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := newFixedWindowLimiter(2, time.Minute, func() time.Time { return now })

	for i := 0; i < 2; i++ {
		if ok, _ := limiter.Allow("1.2.3.4"); !ok {
			t.Fatalf("request %d should pass", i)
		}
	}
	ok, wait := limiter.Allow("1.2.3.4")
	if ok || wait != time.Minute {
		t.Fatalf("expected refusal with 1m wait, got %v %v", ok, wait)
	}
	if ok, _ := limiter.Allow("5.6.7.8"); !ok {
		t.Fatalf("other clients are independent")
	}

	now = now.Add(time.Minute)
	if ok, _ := limiter.Allow("1.2.3.4"); !ok {
		t.Fatalf("window should have reset")
	}

	if newFixedWindowLimiter(0, time.Minute, nil) != nil {
		t.Fatalf("zero limit disables the limiter")
	}
}
