package middleware

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/loom/errors"
	"github.com/xraph/loom/internal/shared"
)

func TestTimeoutAllowsFastHandlers(t *testing.T) {
	handler := Timeout(time.Second)(func(ctx shared.Context) error {
		return ctx.String(http.StatusOK, "ok")
	})

	ctx, rec := newCtx("GET", "/fast")
	require.NoError(t, handler(ctx))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTimeoutInstallsDeadline(t *testing.T) {
	var hasDeadline bool
	handler := Timeout(time.Second)(func(ctx shared.Context) error {
		_, hasDeadline = ctx.Deadline()
		return ctx.NoContent()
	})

	ctx, _ := newCtx("GET", "/test")
	require.NoError(t, handler(ctx))
	assert.True(t, hasDeadline)
}

func TestTimeoutMapsExpiryToGatewayTimeout(t *testing.T) {
	handler := Timeout(10*time.Millisecond)(func(ctx shared.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, _ := newCtx("GET", "/slow")
	err := handler(ctx)

	require.Error(t, err)
	assert.Equal(t, http.StatusGatewayTimeout, errors.GetHTTPStatusCode(err))
}

func TestTimeoutKeepsCommittedResponses(t *testing.T) {
	handler := Timeout(10*time.Millisecond)(func(ctx shared.Context) error {
		if err := ctx.String(http.StatusOK, "partial"); err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	})

	ctx, rec := newCtx("GET", "/slow")
	require.NoError(t, handler(ctx))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "partial", rec.Body.String())
}
