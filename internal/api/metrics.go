package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// httpRequests counts API requests by route pattern and status
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unitdesign_http_requests_total",
		Help: "Total API requests by route and status code",
	}, []string{"route", "method", "code"})

	// httpDuration tracks API latency
	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "unitdesign_http_request_duration_seconds",
		Help:    "API request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	// reloadTotal counts catalog reloads by result
	reloadTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unitdesign_catalog_reloads_total",
		Help: "Total catalog reloads by result",
	}, []string{"result"})
)

func metricsHandler() http.Handler {
	return promhttp.Handler()
}

// instrument records request counts and latency under the matched route
// pattern, so path parameters do not explode label cardinality.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// requestLogger logs each request through logger at debug level.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(logger.Handler(), slog.LevelDebug),
		NoColor: true,
	})
}
