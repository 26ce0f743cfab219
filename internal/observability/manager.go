package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
)

const shutdownTimeout = 10 * time.Second

// Module exposes the observability manager to Fx.
var Module = fx.Provide(NewManager)

// Manager owns the tracer and meter providers. The order service, the poller and the HTTP
// middleware take tracers and meters from the otel globals, which the manager installs on start.
type Manager struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	metricsHandler http.Handler
	metricsPath    string
}

// NewManager builds the providers selected by the OBS_* settings. An exporter name it does not know
// leaves that signal off.
func NewManager(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*Manager, error) {
	obs := cfg.Observability
	ctx := context.Background()

	res, err := newResource(ctx, obs)
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	mgr := &Manager{metricsPath: obs.PrometheusPath}
	if obs.EnableTracing {
		mgr.tracerProvider, err = newTracerProvider(ctx, obs, res)
		if errors.Is(err, errUnknownExporter) {
			logger.Warn("tracing disabled", zap.String("exporter", obs.TraceExporter), zap.Error(err))
		} else if err != nil {
			return nil, err
		}
	}
	if obs.EnableMetrics {
		mgr.meterProvider, mgr.metricsHandler, err = newMeterProvider(obs, res)
		if errors.Is(err, errUnknownExporter) {
			logger.Warn("metrics disabled", zap.String("exporter", obs.MetricsExporter), zap.Error(err))
		} else if err != nil {
			return nil, err
		}
	}

	logger.Info("observability configured",
		zap.Bool("tracing", mgr.TracingEnabled()),
		zap.Bool("metrics", mgr.MetricsEnabled()),
		zap.Bool("prometheus", mgr.metricsHandler != nil),
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			mgr.install()
			return nil
		},
		OnStop: mgr.shutdown,
	})
	return mgr, nil
}

// TracingEnabled reports whether spans are exported.
func (m *Manager) TracingEnabled() bool {
	return m.tracerProvider != nil
}

// MetricsEnabled reports whether instruments are exported.
func (m *Manager) MetricsEnabled() bool {
	return m.meterProvider != nil
}

// MetricsHandler serves the Prometheus scrape endpoint; nil unless the prometheus exporter is selected.
func (m *Manager) MetricsHandler() http.Handler {
	return m.metricsHandler
}

// PrometheusPath is where the HTTP server mounts MetricsHandler.
func (m *Manager) PrometheusPath() string {
	return m.metricsPath
}

func (m *Manager) install() {
	if m.tracerProvider != nil {
		otel.SetTracerProvider(m.tracerProvider)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	}
	if m.meterProvider != nil {
		otel.SetMeterProvider(m.meterProvider)
	}
}

func (m *Manager) shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var err error
	if m.tracerProvider != nil {
		err = errors.Join(err, m.tracerProvider.Shutdown(ctx))
	}
	if m.meterProvider != nil {
		err = errors.Join(err, m.meterProvider.Shutdown(ctx))
	}
	return err
}
