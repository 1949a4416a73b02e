package observability

import (
	"context"
	"io"
	"net/http"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/xraph/loom/errors"
)

// TracingConfig tunes the tracer provider.
type TracingConfig struct {
	Enabled        bool              `json:"enabled"         yaml:"enabled"`
	ServiceName    string            `json:"service_name"    yaml:"service_name"`
	ServiceVersion string            `json:"service_version" yaml:"service_version"`
	Environment    string            `json:"environment"     yaml:"environment"`
	Exporter       string            `json:"exporter"        yaml:"exporter"` // "otlp", "jaeger" or "stdout"
	Endpoint       string            `json:"endpoint"        yaml:"endpoint"`
	Insecure       bool              `json:"insecure"        yaml:"insecure"`
	Headers        map[string]string `json:"headers"         yaml:"headers"`
	SampleRate     float64           `json:"sample_rate"     yaml:"sample_rate"` // 0 samples everything
	Writer         io.Writer         `json:"-"               yaml:"-"`           // stdout exporter sink override
}

// Provider wraps an OpenTelemetry tracer provider with the propagation
// plumbing the HTTP layer needs.
type Provider struct {
	provider   *sdktrace.TracerProvider
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	enabled    bool
}

// NewProvider builds a tracer provider. A disabled config yields a
// provider whose spans are no-ops, so callers never branch.
func NewProvider(config TracingConfig) (*Provider, error) {
	propagator := propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)

	if !config.Enabled {
		return &Provider{
			tracer:     noop.NewTracerProvider().Tracer("loom"),
			propagator: propagator,
		}, nil
	}
	if config.ServiceName == "" {
		config.ServiceName = "loom"
	}
	if config.Environment == "" {
		config.Environment = environment()
	}

	exporter, err := newExporter(config)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			attribute.String("deployment.environment", config.Environment),
		),
	)
	if err != nil {
		return nil, errors.ErrConfigError("building trace resource failed", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(config)),
	)

	return &Provider{
		provider:   provider,
		tracer:     provider.Tracer(config.ServiceName, trace.WithInstrumentationVersion(config.ServiceVersion)),
		propagator: propagator,
		enabled:    true,
	}, nil
}

func newExporter(config TracingConfig) (sdktrace.SpanExporter, error) {
	switch config.Exporter {
	case "jaeger":
		endpoint := config.Endpoint
		if endpoint == "" {
			endpoint = "http://localhost:14268/api/traces"
		}
		exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(endpoint)))
		if err != nil {
			return nil, errors.ErrConfigError("creating jaeger exporter failed", err)
		}
		return exporter, nil
	case "otlp":
		opts := []otlptracehttp.Option{}
		if config.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(config.Endpoint))
		}
		if config.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(config.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(config.Headers))
		}
		exporter, err := otlptracehttp.New(context.Background(), opts...)
		if err != nil {
			return nil, errors.ErrConfigError("creating otlp exporter failed", err)
		}
		return exporter, nil
	case "stdout", "":
		opts := []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
		if config.Writer != nil {
			opts = append(opts, stdouttrace.WithWriter(config.Writer))
		}
		exporter, err := stdouttrace.New(opts...)
		if err != nil {
			return nil, errors.ErrConfigError("creating stdout exporter failed", err)
		}
		return exporter, nil
	default:
		return nil, errors.ErrConfigError("unsupported trace exporter: "+config.Exporter, nil)
	}
}

func newSampler(config TracingConfig) sdktrace.Sampler {
	if config.SampleRate > 0 && config.SampleRate < 1 {
		return sdktrace.TraceIDRatioBased(config.SampleRate)
	}
	return sdktrace.AlwaysSample()
}

// Enabled reports whether spans are recorded.
func (p *Provider) Enabled() bool { return p.enabled }

// Tracer returns the configured tracer.
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// Start opens a span as a child of ctx.
func (p *Provider) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name, opts...)
}

// Extract pulls a propagated trace context out of request headers.
func (p *Provider) Extract(ctx context.Context, headers http.Header) context.Context {
	return p.propagator.Extract(ctx, propagation.HeaderCarrier(headers))
}

// Inject writes the current trace context into outgoing headers.
func (p *Provider) Inject(ctx context.Context, headers http.Header) {
	p.propagator.Inject(ctx, propagation.HeaderCarrier(headers))
}

// SetGlobal installs this provider and its propagator process-wide.
func (p *Provider) SetGlobal() {
	if p.provider != nil {
		otel.SetTracerProvider(p.provider)
	}
	otel.SetTextMapPropagator(p.propagator)
}

// Shutdown flushes and stops span processing.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.provider == nil {
		return nil
	}
	return p.provider.Shutdown(ctx)
}

// environment reads the deployment environment, defaulting to development.
func environment() string {
	if env := os.Getenv("LOOM_ENV"); env != "" {
		return env
	}
	return "development"
}
