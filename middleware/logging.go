package middleware

import (
	"net/http"
	"time"

	"github.com/xraph/loom/errors"
	"github.com/xraph/loom/internal/shared"
	"github.com/xraph/loom/logger"
)

// LoggingConfig defines configuration for the request logging middleware.
type LoggingConfig struct {
	// IncludeHeaders includes request headers in logs.
	IncludeHeaders bool

	// ExcludePaths defines paths to exclude from logging.
	ExcludePaths []string

	// SensitiveHeaders defines headers to redact when IncludeHeaders is on.
	SensitiveHeaders []string
}

// DefaultLoggingConfig returns default logging configuration.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		IncludeHeaders:   false,
		ExcludePaths:     []string{"/_/health", "/_/metrics"},
		SensitiveHeaders: []string{"Authorization", "Cookie", "Set-Cookie"},
	}
}

// Logging logs one line per request with method, path, status, and latency.
func Logging(log logger.Logger) shared.Middleware {
	return LoggingWithConfig(log, DefaultLoggingConfig())
}

// LoggingWithConfig is Logging with custom configuration.
func LoggingWithConfig(log logger.Logger, config LoggingConfig) shared.Middleware {
	exclude := make(map[string]bool, len(config.ExcludePaths))
	for _, path := range config.ExcludePaths {
		exclude[path] = true
	}
	sensitive := make(map[string]bool, len(config.SensitiveHeaders))
	for _, h := range config.SensitiveHeaders {
		sensitive[http.CanonicalHeaderKey(h)] = true
	}

	return func(next shared.Handler) shared.Handler {
		return func(ctx shared.Context) error {
			req := ctx.Request()
			if exclude[req.URL.Path] {
				return next(ctx)
			}

			start := time.Now()
			err := next(ctx)

			fields := []logger.Field{
				logger.String("method", req.Method),
				logger.String("path", req.URL.Path),
				logger.Int("status", responseStatus(ctx, err)),
				logger.Duration("duration", time.Since(start)),
			}
			if id := GetRequestID(ctx); id != "" {
				fields = append(fields, logger.RequestID(id))
			}
			if config.IncludeHeaders {
				fields = append(fields, logger.Any("headers", redactHeaders(req.Header, sensitive)))
			}

			if err != nil {
				log.Error("request failed", append(fields, logger.Error(err))...)
			} else {
				log.Info("request completed", fields...)
			}

			return err
		}
	}
}

// responseStatus reconstructs the status a request will answer with: the
// committed status when the handler wrote one, the error's mapped status
// when it failed, 200 otherwise.
func responseStatus(ctx shared.Context, err error) int {
	if sr, ok := ctx.(interface{ StatusCode() int }); ok {
		if code := sr.StatusCode(); code > 0 {
			return code
		}
	}
	if err != nil {
		return errors.GetHTTPStatusCode(err)
	}
	return http.StatusOK
}

func redactHeaders(header http.Header, sensitive map[string]bool) map[string]string {
	out := make(map[string]string, len(header))
	for key, values := range header {
		if sensitive[key] {
			out[key] = "[REDACTED]"
			continue
		}
		if len(values) > 0 {
			out[key] = values[0]
		}
	}
	return out
}
