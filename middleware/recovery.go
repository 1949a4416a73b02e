package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/xraph/loom/errors"
	"github.com/xraph/loom/internal/shared"
	"github.com/xraph/loom/logger"
)

// Recovery converts handler panics into errors so the route's error
// boundary can answer with a 500 instead of the connection dying.
func Recovery(log logger.Logger) shared.Middleware {
	return func(next shared.Handler) shared.Handler {
		return func(ctx shared.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					if log != nil {
						log.Error("panic recovered",
							logger.Any("panic", r),
							logger.String("method", ctx.Request().Method),
							logger.String("path", ctx.Request().URL.Path),
							logger.String("stack", string(debug.Stack())),
						)
					}
					err = errors.InternalError(fmt.Errorf("panic: %v", r))
				}
			}()

			return next(ctx)
		}
	}
}
