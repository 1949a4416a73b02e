package middleware

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/loom/errors"
	"github.com/xraph/loom/internal/shared"
)

func TestRecoveryPassesThrough(t *testing.T) {
	log := &recordingLogger{}
	handler := Recovery(log)(func(ctx shared.Context) error {
		return ctx.String(http.StatusOK, "ok")
	})

	ctx, rec := newCtx("GET", "/test")
	err := handler(ctx)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Zero(t, log.len())
}

func TestRecoveryConvertsPanicToError(t *testing.T) {
	log := &recordingLogger{}
	handler := Recovery(log)(func(ctx shared.Context) error {
		panic("something went wrong")
	})

	ctx, _ := newCtx("GET", "/test")
	err := handler(ctx)

	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, errors.GetHTTPStatusCode(err))
	assert.Contains(t, err.Error(), "panic: something went wrong")

	entry, ok := log.find("panic recovered")
	require.True(t, ok)
	assert.Equal(t, "error", entry.level)
	assert.Equal(t, "something went wrong", entry.field("panic"))
	assert.NotEmpty(t, entry.field("stack"))
	assert.Equal(t, "/test", entry.field("path"))
}

func TestRecoveryWithoutLogger(t *testing.T) {
	handler := Recovery(nil)(func(ctx shared.Context) error {
		panic(assert.AnError)
	})

	ctx, _ := newCtx("GET", "/test")
	err := handler(ctx)

	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, errors.GetHTTPStatusCode(err))
}
