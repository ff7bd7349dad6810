// Package handlers exposes the engine's operational HTTP surface: health,
// metrics, the open-pods view, and the payment-processor webhook. The
// product API proper lives in a separate deployment and calls the engine
// in-process contracts.
package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"podvault/internal/pods"
	"podvault/internal/version"
)

// RouterOptions configures the HTTP surface.
type RouterOptions struct {
	Service        *pods.Service
	AllowedOrigins []string
	WebhookSecret  string
	Logger         zerolog.Logger
}

// Router builds the HTTP router.
func Router(opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	allowed := opts.AllowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         int((10 * time.Minute).Seconds()),
	}))

	r.Use(httprate.Limit(100, time.Minute))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Method("GET", "/metrics", promhttp.Handler())

	h := &handler{svc: opts.Service, secret: opts.WebhookSecret, log: opts.Logger}
	r.Get("/v1/plans/{code}/pods/open", h.openPods)
	r.Post("/v1/webhooks/payments", h.paymentWebhook)

	return otelhttp.NewHandler(r, version.Name)
}
