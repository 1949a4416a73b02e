package middleware

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/loom/internal/shared"
)

func TestRequestIDGeneratesWhenMissing(t *testing.T) {
	var seen string
	handler := RequestID()(func(ctx shared.Context) error {
		seen = GetRequestID(ctx)
		return ctx.String(http.StatusOK, "ok")
	})

	ctx, rec := newCtx("GET", "/test")
	require.NoError(t, handler(ctx))

	require.NotEmpty(t, seen)
	_, err := uuid.Parse(seen)
	assert.NoError(t, err, "generated IDs are UUIDs")
	assert.Equal(t, seen, rec.Header().Get(HeaderRequestID))
}

func TestRequestIDPropagatesInbound(t *testing.T) {
	const inbound = "req-from-gateway"

	var seen string
	handler := RequestID()(func(ctx shared.Context) error {
		seen = GetRequestID(ctx)
		return ctx.String(http.StatusOK, "ok")
	})

	ctx, rec := newCtx("GET", "/test")
	ctx.Request().Header.Set(HeaderRequestID, inbound)
	require.NoError(t, handler(ctx))

	assert.Equal(t, inbound, seen)
	assert.Equal(t, inbound, rec.Header().Get(HeaderRequestID))
}

func TestGetRequestIDWithoutMiddleware(t *testing.T) {
	ctx, _ := newCtx("GET", "/test")
	assert.Empty(t, GetRequestID(ctx))
}
