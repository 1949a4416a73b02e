package observability

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/loom/internal/shared"
)

// Middleware opens a server span per request, continuing a trace
// propagated in the request headers, and records the handler outcome.
func Middleware(provider *Provider) shared.Middleware {
	return func(next shared.Handler) shared.Handler {
		return func(ctx shared.Context) error {
			if !provider.Enabled() {
				return next(ctx)
			}

			req := ctx.Request()
			parent := provider.Extract(ctx, req.Header)
			spanCtx, span := provider.Start(parent, req.Method+" "+req.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", req.Method),
					attribute.String("http.path", req.URL.Path),
					attribute.String("http.host", req.Host),
				),
			)
			defer span.End()

			ctx.WithContext(spanCtx)

			err := next(ctx)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return err
			}
			span.SetStatus(codes.Ok, "")
			return nil
		}
	}
}
