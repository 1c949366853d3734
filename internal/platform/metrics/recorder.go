// Package metrics exposes Prometheus collectors for the HTTP surface and the domain flows.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hexoprint"

// Recorder holds the registered collectors. A nil *Recorder records nothing.
type Recorder struct {
	registry        *prom.Registry
	requestDuration *prom.HistogramVec
	sitemapBuilds   *prom.CounterVec
	sitemapEntries  prom.Gauge
	contactResults  *prom.CounterVec
	uploadResults   *prom.CounterVec
	uploadBytes     *prom.CounterVec
}

// NewRecorder registers collectors on reg, or on a fresh registry when reg is nil.
func NewRecorder(reg *prom.Registry) *Recorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	r := &Recorder{
		registry: reg,
		requestDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route, method and status",
			Buckets:   prom.DefBuckets,
		}, []string{"route", "method", "status"}),
		sitemapBuilds: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "sitemap_builds_total",
			Help:      "Sitemap builds by mode",
		}, []string{"mode"}),
		sitemapEntries: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "sitemap_entries",
			Help:      "Entries in the most recent sitemap",
		}),
		contactResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "contact_submissions_total",
			Help:      "Contact submissions by outcome",
		}, []string{"outcome"}),
		uploadResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_files_total",
			Help:      "Uploaded files by category and outcome",
		}, []string{"category", "outcome"}),
		uploadBytes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Bytes stored by category",
		}, []string{"category"}),
	}
	reg.MustRegister(r.requestDuration, r.sitemapBuilds, r.sitemapEntries, r.contactResults, r.uploadResults, r.uploadBytes)
	return r
}

// RegisterRuntimeCollectors adds the Go and process collectors.
func (r *Recorder) RegisterRuntimeCollectors() {
	if r == nil {
		return
	}
	r.registry.MustRegister(promcollect.NewGoCollector(), promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveSitemap records one build.
func (r *Recorder) ObserveSitemap(mode string, entries int) {
	if r == nil {
		return
	}
	r.sitemapBuilds.WithLabelValues(mode).Inc()
	r.sitemapEntries.Set(float64(entries))
}

// IncContact records a contact outcome (sent, invalid, rate_limited, failed).
func (r *Recorder) IncContact(outcome string) {
	if r == nil {
		return
	}
	r.contactResults.WithLabelValues(outcome).Inc()
}

// ObserveUpload records one file of an upload batch.
func (r *Recorder) ObserveUpload(category, outcome string, size int64) {
	if r == nil {
		return
	}
	if category == "" {
		category = "unknown"
	}
	r.uploadResults.WithLabelValues(category, outcome).Inc()
	if outcome == "stored" && size > 0 {
		r.uploadBytes.WithLabelValues(category).Add(float64(size))
	}
}

// Middleware observes request latency labelled by chi route pattern.
func (r *Recorder) Middleware(next http.Handler) http.Handler {
	if r == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		defer func() {
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			r.requestDuration.WithLabelValues(route(req), req.Method, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
		}()
		next.ServeHTTP(ww, req)
	})
}

func route(req *http.Request) string {
	if rctx := chi.RouteContext(req.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
