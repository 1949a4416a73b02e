package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/xraph/loom/errors"
	"github.com/xraph/loom/internal/shared"
)

// Timeout installs a deadline on the request context. Handlers and
// downstream middleware observe it through ctx.Done(); when the deadline
// fires before a response is committed, the request answers 504.
func Timeout(duration time.Duration) shared.Middleware {
	return func(next shared.Handler) shared.Handler {
		return func(ctx shared.Context) error {
			timed, cancel := context.WithTimeout(ctx, duration)
			defer cancel()

			ctx.WithContext(timed)

			err := next(ctx)

			if timed.Err() != context.DeadlineExceeded {
				return err
			}
			if ws, ok := ctx.(interface{ Written() bool }); ok && ws.Written() {
				// Too late to change the answer.
				return err
			}
			return errors.NewHTTPError(http.StatusGatewayTimeout, "request timed out")
		}
	}
}
