package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/user/gig-sync-service/internal/delivery/http/handler"
	"github.com/user/gig-sync-service/internal/delivery/http/middleware"
	"github.com/user/gig-sync-service/pkg/metrics"
	"go.uber.org/zap"
)

type Options struct {
	// APIKey guards the sync endpoints when non-empty.
	APIKey   string
	Gatherer prometheus.Gatherer
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

func New(h *handler.Handler, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	if opts.Logger != nil {
		r.Use(middleware.Logging(opts.Logger))
	}
	r.Use(middleware.Metrics(opts.Metrics))
	r.Use(chimw.Recoverer)

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/api/health", h.HandleHealthCheck)

	r.Route("/api/sync", func(r chi.Router) {
		r.Use(middleware.APIKey(opts.APIKey))
		// wait=true holds the request for the whole run, so no timeout here.
		r.Post("/", h.HandleStartSync)
		r.With(chimw.Timeout(10*time.Second)).Get("/status", h.HandleSyncStatus)
	})

	return r
}
