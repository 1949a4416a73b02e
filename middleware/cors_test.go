package middleware

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/loom/internal/shared"
)

func corsHandler(config CORSConfig, called *bool) shared.Handler {
	return CORSWithConfig(config)(func(ctx shared.Context) error {
		*called = true
		return ctx.String(http.StatusOK, "ok")
	})
}

func TestCORSStampsAllowHeaders(t *testing.T) {
	var called bool
	handler := corsHandler(DefaultCORSConfig(), &called)

	ctx, rec := newCtx("GET", "/api/data")
	ctx.Request().Header.Set("Origin", "https://app.example.com")
	require.NoError(t, handler(ctx))

	assert.True(t, called)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Values("Vary"), "Origin")
}

func TestCORSWithoutOriginLeavesRequestAlone(t *testing.T) {
	var called bool
	handler := corsHandler(DefaultCORSConfig(), &called)

	ctx, rec := newCtx("GET", "/api/data")
	require.NoError(t, handler(ctx))

	assert.True(t, called)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflightAnswersDirectly(t *testing.T) {
	var called bool
	handler := corsHandler(DefaultCORSConfig(), &called)

	ctx, rec := newCtx("OPTIONS", "/api/data")
	ctx.Request().Header.Set("Origin", "https://app.example.com")
	ctx.Request().Header.Set("Access-Control-Request-Method", "POST")
	require.NoError(t, handler(ctx))

	assert.False(t, called, "preflight never reaches the handler")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
	assert.Equal(t, "86400", rec.Header().Get("Access-Control-Max-Age"))
}

func TestCORSPreflightRejectsDisallowedMethod(t *testing.T) {
	config := DefaultCORSConfig()
	config.AllowedMethods = []string{"GET"}

	var called bool
	handler := corsHandler(config, &called)

	ctx, rec := newCtx("OPTIONS", "/api/data")
	ctx.Request().Header.Set("Origin", "https://app.example.com")
	ctx.Request().Header.Set("Access-Control-Request-Method", "DELETE")
	require.NoError(t, handler(ctx))

	assert.False(t, called)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORSDisallowedOriginGetsNoHeaders(t *testing.T) {
	config := DefaultCORSConfig()
	config.AllowedOrigins = []string{"https://app.example.com"}

	var called bool
	handler := corsHandler(config, &called)

	ctx, rec := newCtx("GET", "/api/data")
	ctx.Request().Header.Set("Origin", "https://evil.example.net")
	require.NoError(t, handler(ctx))

	assert.True(t, called, "actual requests still run; the browser enforces the denial")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSDisallowedOriginPreflightForbidden(t *testing.T) {
	config := DefaultCORSConfig()
	config.AllowedOrigins = []string{"https://app.example.com"}

	var called bool
	handler := corsHandler(config, &called)

	ctx, rec := newCtx("OPTIONS", "/api/data")
	ctx.Request().Header.Set("Origin", "https://evil.example.net")
	require.NoError(t, handler(ctx))

	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCORSCredentialsEchoTheOrigin(t *testing.T) {
	config := DefaultCORSConfig()
	config.AllowCredentials = true

	var called bool
	handler := corsHandler(config, &called)

	ctx, rec := newCtx("GET", "/api/data")
	ctx.Request().Header.Set("Origin", "https://app.example.com")
	require.NoError(t, handler(ctx))

	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSWildcardSubdomains(t *testing.T) {
	config := DefaultCORSConfig()
	config.AllowedOrigins = []string{"*.example.com"}

	var called bool
	handler := corsHandler(config, &called)

	ctx, rec := newCtx("GET", "/api/data")
	ctx.Request().Header.Set("Origin", "https://api.example.com")
	require.NoError(t, handler(ctx))

	assert.Equal(t, "https://api.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
