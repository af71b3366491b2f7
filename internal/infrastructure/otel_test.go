package infrastructure

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"trendscli/internal/config"
)

func testObservabilityConfig() config.ObservabilityConfig {
	return config.ObservabilityConfig{
		Enabled:        true,
		TraceExporter:  "stdout",
		MetricExporter: "prometheus",
		SampleRatio:    1.0,
	}
}

func TestOTelInitialization(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	providers, err := InitializeOTel(testObservabilityConfig(), logger)
	require.NoError(t, err)
	require.NotNil(t, providers)

	assert.NotNil(t, providers.TracerProvider)
	assert.NotNil(t, providers.Tracer)
	assert.NotNil(t, providers.MeterProvider)
	assert.NotNil(t, providers.Meter)
	assert.NotNil(t, providers.PrometheusHTTP)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, providers.Shutdown(ctx))
}

func TestOTelDisabled(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	providers, err := InitializeOTel(config.ObservabilityConfig{Enabled: false}, logger)
	require.NoError(t, err)
	require.NotNil(t, providers)

	// No-op tracer and meter are still usable.
	assert.NotNil(t, providers.Tracer)
	assert.NotNil(t, providers.Meter)
	assert.Nil(t, providers.TracerProvider)
	assert.Nil(t, providers.MeterProvider)

	assert.NoError(t, providers.Shutdown(context.Background()))
}

func TestTraceCorrelation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	providers, err := InitializeOTel(testObservabilityConfig(), logger)
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	ctx := context.Background()

	tracer := otel.Tracer("test")
	ctx, span := tracer.Start(ctx, "test-operation")
	defer span.End()

	traceID := TraceIDFromContext(ctx)
	assert.NotEmpty(t, traceID)

	expectedTraceID := span.SpanContext().TraceID().String()
	assert.Equal(t, expectedTraceID, traceID)

	ctx = WithTraceID(ctx, traceID)
	assert.Equal(t, traceID, GetTraceID(ctx))
}

func TestBusinessMetrics(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	providers, err := InitializeOTel(testObservabilityConfig(), logger)
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	metrics, err := CreateBusinessMetrics(providers.Meter)
	require.NoError(t, err)
	require.NotNil(t, metrics)

	assert.NotNil(t, metrics.WindowsFetched)
	assert.NotNil(t, metrics.QuotaTrips)
	assert.NotNil(t, metrics.NoDataWindows)
	assert.NotNil(t, metrics.ReconcileDuration)
	assert.NotNil(t, metrics.RowsExported)
	assert.NotNil(t, metrics.ActiveRuns)
	assert.NotNil(t, metrics.RunDuration)
	assert.NotNil(t, metrics.RunErrors)

	// Recording must not panic.
	ctx := context.Background()
	metrics.WindowsFetched.Add(ctx, 1)
	metrics.ActiveRuns.Add(ctx, 1)
	metrics.ActiveRuns.Add(ctx, -1)
	RecordRunMetrics(ctx, metrics, "run-1", "quarters", 2*time.Second, nil)
	RecordRunMetrics(ctx, metrics, "run-2", "single", time.Second, assert.AnError)
}

func TestSpanOperations(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	providers, err := InitializeOTel(testObservabilityConfig(), logger)
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	ctx := context.Background()
	tracer := otel.Tracer("test")
	ctx, span := tracer.Start(ctx, "test-span")
	defer span.End()

	SetSpanAttributes(ctx, map[string]interface{}{
		"string_attr": "test_value",
		"int_attr":    42,
		"float_attr":  3.14,
		"bool_attr":   true,
	})

	RecordError(ctx, assert.AnError)

	assert.True(t, span.IsRecording())
}

func TestPrometheusEndpoint(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	providers, err := InitializeOTel(testObservabilityConfig(), logger)
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	metrics, err := CreateBusinessMetrics(providers.Meter)
	require.NoError(t, err)
	metrics.WindowsFetched.Add(context.Background(), 3)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	providers.PrometheusHTTP.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.String())
}

func TestSystemMetricsCollector(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	providers, err := InitializeOTel(testObservabilityConfig(), logger)
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	collector, err := NewSystemMetricsCollector(providers.Meter, 10*time.Millisecond)
	require.NoError(t, err)

	stats := collector.GetCurrentStats(context.Background())
	require.NotNil(t, stats)
	assert.Greater(t, stats.GoRoutines, int64(0))
	assert.Greater(t, stats.MemoryUsage, int64(0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		collector.Start(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop after context cancellation")
	}
}
