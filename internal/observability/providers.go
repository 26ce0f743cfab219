package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	stdoutmetric "go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	stdouttrace "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/Additional-Code/orderdesk/internal/config"
)

const otlpDialTimeout = 10 * time.Second

var errUnknownExporter = errors.New("unknown exporter")

func newResource(ctx context.Context, obs config.Observability) (*sdkresource.Resource, error) {
	return sdkresource.New(ctx,
		sdkresource.WithFromEnv(),
		sdkresource.WithHost(),
		sdkresource.WithAttributes(
			semconv.ServiceName(obs.ServiceName),
			semconv.ServiceVersion(obs.ServiceVersion),
			semconv.DeploymentEnvironment(obs.Environment),
		),
	)
}

// newTracerProvider samples root spans at TraceSampleRatio and follows the caller's decision
// for spans that continue an incoming trace.
func newTracerProvider(ctx context.Context, obs config.Observability, res *sdkresource.Resource) (*sdktrace.TracerProvider, error) {
	var exporter sdktrace.SpanExporter
	var err error
	switch obs.TraceExporter {
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "otlp":
		if obs.TraceEndpoint == "" {
			return nil, fmt.Errorf("OBS_OTLP_ENDPOINT must be set for otlp exporter")
		}
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(obs.TraceEndpoint)}
		if obs.TraceInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		dialCtx, cancel := context.WithTimeout(ctx, otlpDialTimeout)
		defer cancel()
		exporter, err = otlptracegrpc.New(dialCtx, opts...)
	default:
		return nil, fmt.Errorf("%w %q", errUnknownExporter, obs.TraceExporter)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s trace exporter: %w", obs.TraceExporter, err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(obs.TraceSampleRatio))),
	), nil
}

// newMeterProvider returns a scrape handler alongside the provider when the exporter is prometheus.
func newMeterProvider(obs config.Observability, res *sdkresource.Resource) (*sdkmetric.MeterProvider, http.Handler, error) {
	switch obs.MetricsExporter {
	case "prometheus":
		registry, err := newRegistry(obs)
		if err != nil {
			return nil, nil, err
		}
		exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
		if err != nil {
			return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
		}
		provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter), sdkmetric.WithResource(res))
		return provider, promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}), nil
	case "stdout":
		exporter, err := stdoutmetric.New(stdoutmetric.WithPrettyPrint(), stdoutmetric.WithWriter(os.Stdout))
		if err != nil {
			return nil, nil, fmt.Errorf("create stdout metric exporter: %w", err)
		}
		reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(obs.MetricsInterval))
		return sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res)), nil, nil
	default:
		return nil, nil, fmt.Errorf("%w %q", errUnknownExporter, obs.MetricsExporter)
	}
}

// newRegistry is private to one manager so a second manager in the same process can register the
// same collectors.
func newRegistry(obs config.Observability) (*prometheus.Registry, error) {
	registry := prometheus.NewRegistry()
	buildInfo := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orderdesk_build_info",
		Help: "Always 1; labels carry the running build.",
		ConstLabels: prometheus.Labels{
			"service":     obs.ServiceName,
			"version":     obs.ServiceVersion,
			"environment": obs.Environment,
		},
	})
	buildInfo.Set(1)

	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		buildInfo,
	} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return registry, nil
}
