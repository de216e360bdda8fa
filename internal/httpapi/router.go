package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nikolayk812/orderflow/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	Metrics  *metrics.HTTPMetrics
	Gatherer prometheus.Gatherer
	Checks   map[string]HealthCheck
}

func NewRouter(handler *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(handler.logger))
	r.Use(middleware.Recoverer)
	if cfg.Metrics != nil {
		r.Use(instrument(cfg.Metrics))
	}

	r.Get("/healthz", healthz(cfg.Checks))
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(cfg.Gatherer))
	}

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", handler.CreateOrder)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", handler.GetOrder)
			r.Get("/status", handler.GetOrderStatus)
			r.Put("/tracking", handler.UpdateTrackingNumber)

			r.Post("/cancel", handler.orderTransition(handler.orders.CancelOrder))
			r.Post("/paid", handler.orderTransition(handler.orders.MarkOrderPaid))
			r.Post("/failed", handler.orderTransition(handler.orders.MarkOrderFailed))
			r.Post("/fulfilled", handler.MarkOrderFulfilled)

			r.Route("/items", func(r chi.Router) {
				r.Get("/", handler.GetOrderItems)

				r.Post("/shipped", handler.batchTransition(handler.orders.MarkItemsShipped))
				r.Post("/delivered", handler.batchTransition(handler.orders.MarkItemsDelivered))
				r.Post("/digital-unlocked", handler.batchTransition(handler.orders.MarkItemsDigitalUnlocked))

				r.Post("/{itemID}/shipped", handler.itemTransition(handler.orders.MarkItemShipped))
				r.Post("/{itemID}/delivered", handler.itemTransition(handler.orders.MarkItemDelivered))
				r.Post("/{itemID}/digital-unlocked", handler.itemTransition(handler.orders.MarkItemDigitalUnlocked))
				r.Post("/{itemID}/cancel", handler.itemTransition(handler.orders.CancelItem))
			})
		})
	})

	r.Get("/users/{userID}/orders/summary", handler.GetUserOrderSummary)

	return r
}

func healthz(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		failed := make(map[string]string)
		for name, check := range checks {
			if err := check(ctx); err != nil {
				failed[name] = err.Error()
			}
		}

		if len(failed) > 0 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.InfoContext(r.Context(), "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("route", routePattern(r)),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return "unmatched"
}

func instrument(m *metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := routePattern(r)

			m.Requests.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
			m.Latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
		})
	}
}
