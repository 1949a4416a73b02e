package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/xraph/loom/internal/shared"
)

// CORSConfig controls the Cross-Origin Resource Sharing middleware.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// DefaultCORSConfig returns default CORS configuration.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Requested-With"},
		MaxAge:         86400,
	}
}

// CORS handles cross-origin requests with the default configuration.
func CORS() shared.Middleware {
	return CORSWithConfig(DefaultCORSConfig())
}

// CORSWithConfig handles cross-origin requests: it answers preflight
// OPTIONS itself and stamps allow headers on actual requests. Requests
// from origins outside the allow list pass through without CORS headers,
// which browsers treat as a denial.
func CORSWithConfig(config CORSConfig) shared.Middleware {
	return func(next shared.Handler) shared.Handler {
		return func(ctx shared.Context) error {
			req := ctx.Request()
			origin := req.Header.Get("Origin")

			// Same-origin and non-browser requests carry no Origin header.
			if origin == "" || !config.originAllowed(origin) {
				if req.Method == http.MethodOptions && origin != "" {
					return ctx.Status(http.StatusForbidden).NoContent()
				}
				return next(ctx)
			}

			header := ctx.Response().Header()
			if config.wildcardOrigin() && !config.AllowCredentials {
				header.Set("Access-Control-Allow-Origin", "*")
			} else {
				header.Set("Access-Control-Allow-Origin", origin)
			}
			if config.AllowCredentials {
				header.Set("Access-Control-Allow-Credentials", "true")
			}
			if len(config.ExposedHeaders) > 0 {
				header.Set("Access-Control-Expose-Headers", strings.Join(config.ExposedHeaders, ", "))
			}
			addVary(header, "Origin")

			if req.Method == http.MethodOptions {
				return config.preflight(ctx)
			}

			return next(ctx)
		}
	}
}

func (c CORSConfig) preflight(ctx shared.Context) error {
	req := ctx.Request()
	header := ctx.Response().Header()

	if method := req.Header.Get("Access-Control-Request-Method"); method != "" && !c.methodAllowed(method) {
		return ctx.Status(http.StatusMethodNotAllowed).NoContent()
	}
	if requested := req.Header.Get("Access-Control-Request-Headers"); requested != "" && !c.headersAllowed(requested) {
		return ctx.Status(http.StatusForbidden).NoContent()
	}

	if len(c.AllowedMethods) > 0 {
		header.Set("Access-Control-Allow-Methods", strings.Join(c.AllowedMethods, ", "))
	}
	if requested := req.Header.Get("Access-Control-Request-Headers"); requested != "" && c.wildcardHeaders() {
		header.Set("Access-Control-Allow-Headers", requested)
	} else if len(c.AllowedHeaders) > 0 {
		header.Set("Access-Control-Allow-Headers", strings.Join(c.AllowedHeaders, ", "))
	}
	if c.MaxAge > 0 {
		header.Set("Access-Control-Max-Age", strconv.Itoa(c.MaxAge))
	}

	return ctx.NoContent()
}

func (c CORSConfig) originAllowed(origin string) bool {
	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
		// Wildcard subdomains: *.example.com matches api.example.com.
		if strings.HasPrefix(allowed, "*.") && strings.HasSuffix(origin, allowed[1:]) {
			return true
		}
	}
	return false
}

func (c CORSConfig) headersAllowed(requested string) bool {
	if c.wildcardHeaders() {
		return true
	}
	for _, header := range strings.Split(requested, ",") {
		header = strings.TrimSpace(header)
		allowed := false
		for _, candidate := range c.AllowedHeaders {
			if strings.EqualFold(candidate, header) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}
	return true
}

func (c CORSConfig) methodAllowed(method string) bool {
	for _, allowed := range c.AllowedMethods {
		if allowed == "*" || strings.EqualFold(allowed, method) {
			return true
		}
	}
	return false
}

func (c CORSConfig) wildcardOrigin() bool {
	for _, origin := range c.AllowedOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}

func (c CORSConfig) wildcardHeaders() bool {
	for _, header := range c.AllowedHeaders {
		if header == "*" {
			return true
		}
	}
	return false
}

func addVary(header http.Header, value string) {
	for _, v := range header.Values("Vary") {
		if v == value {
			return
		}
	}
	header.Add("Vary", value)
}
