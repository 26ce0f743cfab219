package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Additional-Code/orderdesk/internal/config"
)

func TestNewManager_Disabled(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	mgr, err := NewManager(lc, config.Config{Observability: config.Observability{ServiceName: "orderdesk"}}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, mgr.TracingEnabled())
	assert.False(t, mgr.MetricsEnabled())
	assert.Nil(t, mgr.MetricsHandler())

	lc.RequireStart()
	lc.RequireStop()
}

func TestNewManager_PrometheusExposesCounters(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	mgr, err := NewManager(lc, config.Config{Observability: config.Observability{
		ServiceName:     "orderdesk",
		EnableMetrics:   true,
		MetricsExporter: "prometheus",
		PrometheusPath:  "/metrics",
	}}, zap.NewNop())
	require.NoError(t, err)
	require.True(t, mgr.MetricsEnabled())
	assert.Equal(t, "/metrics", mgr.PrometheusPath())

	lc.RequireStart()
	defer lc.RequireStop()

	counter, err := otel.Meter("test").Int64Counter("orders.created")
	require.NoError(t, err)
	counter.Add(context.Background(), 2)

	rec := httptest.NewRecorder()
	mgr.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "orders_created")
}

func TestNewManager_PrometheusExposesBuildInfo(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	mgr, err := NewManager(lc, config.Config{Observability: config.Observability{
		ServiceName:     "orderdesk",
		ServiceVersion:  "1.2.3",
		Environment:     "test",
		EnableMetrics:   true,
		MetricsExporter: "prometheus",
	}}, zap.NewNop())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	mgr.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `orderdesk_build_info{environment="test",service="orderdesk",version="1.2.3"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestNewManager_TraceSampling(t *testing.T) {
	cases := map[string]struct {
		ratio   float64
		sampled bool
	}{
		"keep all": {ratio: 1, sampled: true},
		"drop all": {ratio: 0, sampled: false},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			lc := fxtest.NewLifecycle(t)
			mgr, err := NewManager(lc, config.Config{Observability: config.Observability{
				ServiceName:      "orderdesk",
				EnableTracing:    true,
				TraceExporter:    "stdout",
				TraceSampleRatio: tc.ratio,
			}}, zap.NewNop())
			require.NoError(t, err)
			require.True(t, mgr.TracingEnabled())

			_, span := mgr.tracerProvider.Tracer("test").Start(context.Background(), "OrderService.Create")
			assert.Equal(t, tc.sampled, span.SpanContext().IsSampled())
			span.End()
		})
	}
}

func TestNewManager_UnknownExporterDisablesSignal(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	lc := fxtest.NewLifecycle(t)
	mgr, err := NewManager(lc, config.Config{Observability: config.Observability{
		EnableTracing:   true,
		TraceExporter:   "zipkin",
		EnableMetrics:   true,
		MetricsExporter: "statsd",
	}}, zap.New(core))
	require.NoError(t, err)
	assert.False(t, mgr.TracingEnabled())
	assert.False(t, mgr.MetricsEnabled())
	assert.Equal(t, 1, logs.FilterMessage("tracing disabled").Len())
	assert.Equal(t, 1, logs.FilterMessage("metrics disabled").Len())
}

func TestNewManager_OTLPRequiresEndpoint(t *testing.T) {
	_, err := NewManager(fxtest.NewLifecycle(t), config.Config{Observability: config.Observability{
		EnableTracing: true,
		TraceExporter: "otlp",
	}}, zap.NewNop())
	assert.EqualError(t, err, "OBS_OTLP_ENDPOINT must be set for otlp exporter")
}
