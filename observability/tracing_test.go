package observability

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/loom/internal/router"
	"github.com/xraph/loom/internal/shared"
	"github.com/xraph/loom/logger"
)

func stdoutProvider(t *testing.T, buf *bytes.Buffer) *Provider {
	t.Helper()
	provider, err := NewProvider(TracingConfig{
		Enabled:     true,
		ServiceName: "loom-test",
		Exporter:    "stdout",
		Writer:      buf,
	})
	require.NoError(t, err)
	return provider
}

func TestProviderExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	provider := stdoutProvider(t, &buf)

	_, span := provider.Start(context.Background(), "unit-of-work")
	span.End()
	require.NoError(t, provider.Shutdown(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "unit-of-work")
	assert.Contains(t, out, "loom-test")
}

func TestDisabledProviderRecordsNothing(t *testing.T) {
	provider, err := NewProvider(TracingConfig{Enabled: false})
	require.NoError(t, err)

	ctx, span := provider.Start(context.Background(), "ignored")
	assert.False(t, span.IsRecording())
	span.End()
	assert.False(t, provider.Enabled())
	require.NoError(t, provider.Shutdown(ctx))
}

func TestInjectExtractRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	provider := stdoutProvider(t, &buf)
	defer func() { require.NoError(t, provider.Shutdown(context.Background())) }()

	ctx, span := provider.Start(context.Background(), "outgoing")
	defer span.End()

	headers := http.Header{}
	provider.Inject(ctx, headers)
	require.NotEmpty(t, headers.Get("traceparent"))

	extracted := provider.Extract(context.Background(), headers)
	got := trace.SpanContextFromContext(extracted)
	require.True(t, got.IsValid())
	assert.Equal(t, span.SpanContext().TraceID(), got.TraceID())
}

func TestUnsupportedExporterFails(t *testing.T) {
	_, err := NewProvider(TracingConfig{Enabled: true, Exporter: "teleport"})
	require.Error(t, err)
}

func TestMiddlewareContinuesPropagatedTrace(t *testing.T) {
	var buf bytes.Buffer
	provider := stdoutProvider(t, &buf)

	// Seed an upstream trace to propagate in.
	upstreamCtx, upstreamSpan := provider.Start(context.Background(), "upstream")
	headers := http.Header{}
	provider.Inject(upstreamCtx, headers)
	upstreamSpan.End()

	req := httptest.NewRequest(http.MethodGet, "/orders/7", nil)
	req.Header = headers
	rec := httptest.NewRecorder()
	ctx := router.NewRequestContext(rec, req, nil, logger.NewNoopLogger())

	var handlerTraceID trace.TraceID
	handler := Middleware(provider)(func(ctx shared.Context) error {
		handlerTraceID = trace.SpanContextFromContext(ctx).TraceID()
		return ctx.NoContent()
	})
	require.NoError(t, handler(ctx))
	require.NoError(t, provider.Shutdown(context.Background()))

	assert.Equal(t, upstreamSpan.SpanContext().TraceID(), handlerTraceID)
	assert.Contains(t, buf.String(), "GET /orders/7")
}

func TestMiddlewareRecordsHandlerErrors(t *testing.T) {
	var buf bytes.Buffer
	provider := stdoutProvider(t, &buf)

	req := httptest.NewRequest(http.MethodGet, "/broken", nil)
	ctx := router.NewRequestContext(httptest.NewRecorder(), req, nil, logger.NewNoopLogger())

	handler := Middleware(provider)(func(ctx shared.Context) error {
		return assert.AnError
	})
	require.Error(t, handler(ctx))
	require.NoError(t, provider.Shutdown(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "GET /broken")
	assert.Contains(t, out, "Error")
}

func TestMiddlewareSkipsWhenDisabled(t *testing.T) {
	provider, err := NewProvider(TracingConfig{Enabled: false})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	ctx := router.NewRequestContext(httptest.NewRecorder(), req, nil, logger.NewNoopLogger())

	called := false
	handler := Middleware(provider)(func(ctx shared.Context) error {
		called = true
		return nil
	})
	require.NoError(t, handler(ctx))
	assert.True(t, called)
}
