package middleware

import (
	"strconv"
	"time"

	"github.com/xraph/loom/internal/metrics"
	"github.com/xraph/loom/internal/shared"
)

// MetricsConfig controls the HTTP metrics middleware.
type MetricsConfig struct {
	// RequestsCounterName names the per-request counter.
	RequestsCounterName string

	// RequestDurationName names the latency histogram.
	RequestDurationName string

	// DurationBuckets overrides the histogram buckets (seconds).
	DurationBuckets []float64

	// SkipPaths lists paths excluded from recording, typically the
	// exposition endpoint itself.
	SkipPaths []string
}

// DefaultMetricsConfig returns the conventional metric names.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		RequestsCounterName: "http_requests_total",
		RequestDurationName: "http_request_duration_seconds",
		SkipPaths:           []string{"/_/metrics"},
	}
}

// Metrics records a request counter (method, path, status) and a latency
// histogram (method, path) for every request.
func Metrics(m metrics.Metrics) shared.Middleware {
	return MetricsWithConfig(m, DefaultMetricsConfig())
}

// MetricsWithConfig is Metrics with custom metric names and buckets.
func MetricsWithConfig(m metrics.Metrics, config MetricsConfig) shared.Middleware {
	skip := make(map[string]bool, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skip[path] = true
	}

	return func(next shared.Handler) shared.Handler {
		return func(ctx shared.Context) error {
			req := ctx.Request()
			if skip[req.URL.Path] {
				return next(ctx)
			}

			start := time.Now()
			err := next(ctx)
			elapsed := time.Since(start)

			method := req.Method
			path := routePath(ctx)

			m.Counter(config.RequestsCounterName,
				metrics.L("method", method),
				metrics.L("path", path),
				metrics.L("status", strconv.Itoa(responseStatus(ctx, err))),
			).Inc()

			m.Histogram(config.RequestDurationName, config.DurationBuckets,
				metrics.L("method", method),
				metrics.L("path", path),
			).Observe(elapsed.Seconds())

			return err
		}
	}
}

// routePath prefers the declared route pattern over the concrete URL so
// /users/42 and /users/7 land in one series instead of one per ID.
func routePath(ctx shared.Context) string {
	if rr, ok := ctx.Get(shared.RouteContextKey).(shared.RouteRef); ok && rr.Path != "" {
		return rr.Path
	}
	return ctx.Request().URL.Path
}
