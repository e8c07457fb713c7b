package infrastructure

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodpulse/internal/config"
)

func TestInitializeTelemetry(t *testing.T) {
	tests := []struct {
		name        string
		cfg         config.TelemetryConfig
		wantErr     bool
		wantHandler bool
	}{
		{
			name:        "prometheus metrics",
			cfg:         config.TelemetryConfig{Environment: "test", TraceExporter: "none", MetricExporter: "prometheus", SampleRatio: 1},
			wantHandler: true,
		},
		{
			name: "everything disabled",
			cfg:  config.TelemetryConfig{Environment: "test", TraceExporter: "none", MetricExporter: "none", SampleRatio: 1},
		},
		{
			name:    "unknown trace exporter",
			cfg:     config.TelemetryConfig{TraceExporter: "zipkin", MetricExporter: "none"},
			wantErr: true,
		},
		{
			name:    "unknown metric exporter",
			cfg:     config.TelemetryConfig{TraceExporter: "none", MetricExporter: "statsd"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			tel, err := InitializeTelemetry(ctx, tt.cfg, NewLogger(&bytes.Buffer{}, "error"))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			t.Cleanup(func() { _ = tel.Shutdown(ctx) })

			assert.NotNil(t, tel.Tracer)
			assert.NotNil(t, tel.Metrics)
			assert.Equal(t, tt.wantHandler, tel.MetricsHandler != nil)
		})
	}
}

func TestPipelineMetricsExposedOnScrape(t *testing.T) {
	ctx := context.Background()
	tel, err := InitializeTelemetry(ctx, config.TelemetryConfig{
		Environment:    "test",
		TraceExporter:  "none",
		MetricExporter: "prometheus",
		SampleRatio:    1,
	}, NewLogger(&bytes.Buffer{}, "error"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(ctx) })

	tel.Metrics.RecordStage(ctx, "merge", 20*time.Millisecond, nil)
	tel.Metrics.RecordStage(ctx, "persist", 5*time.Millisecond, errors.New("disk full"))
	tel.Metrics.RecordTransform(ctx, "segmentation", time.Second)

	rec := httptest.NewRecorder()
	tel.MetricsHandler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "pipeline_stage_duration_seconds")
	assert.Contains(t, body, "pipeline_stage_errors_total")
	assert.Contains(t, body, "analytics_transform_duration_seconds")
}

func TestSpanIDsFlowIntoLogs(t *testing.T) {
	ctx := context.Background()
	tel, err := InitializeTelemetry(ctx, config.TelemetryConfig{TraceExporter: "none", MetricExporter: "none", SampleRatio: 1},
		NewLogger(&bytes.Buffer{}, "error"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(ctx) })

	spanCtx, span := tel.Tracer.Start(ctx, "test")
	defer span.End()

	var buf bytes.Buffer
	NewLogger(&buf, "info").InfoContext(spanCtx, "inside span")

	entry := decodeLine(t, &buf)
	assert.Equal(t, span.SpanContext().TraceID().String(), entry["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), entry["span_id"])
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *PipelineMetrics
	assert.NotPanics(t, func() {
		m.RecordStage(context.Background(), "x", time.Second, nil)
		m.RecordTransform(context.Background(), "x", time.Second)
	})
}
