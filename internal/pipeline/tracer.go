package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"foodpulse/internal/infrastructure"
)

// TracerName names the pipeline instrumentation scope
const TracerName = "foodpulse.pipeline"

// Tracer provides OpenTelemetry instrumentation for runs and stages
type Tracer struct {
	tracer  trace.Tracer
	metrics *infrastructure.PipelineMetrics
}

// NewTracer creates a tracer from telemetry. A nil telemetry uses the global
// tracer provider and records no metrics.
func NewTracer(t *infrastructure.Telemetry) *Tracer {
	if t == nil {
		return &Tracer{tracer: otel.Tracer(TracerName)}
	}
	tr := t.Tracer
	if tr == nil {
		tr = otel.Tracer(TracerName)
	}
	return &Tracer{tracer: tr, metrics: t.Metrics}
}

// StartRun opens the span of a whole run
func (t *Tracer) StartRun(ctx context.Context, runID string, stages []string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "pipeline.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("pipeline.run_id", runID),
			attribute.StringSlice("pipeline.stages", stages),
		),
	)
}

// EndRun records the outcome of a run and ends its span
func (t *Tracer) EndRun(ctx context.Context, span trace.Span, status RunStatus, duration time.Duration, err error) {
	span.SetAttributes(
		attribute.String("pipeline.status", string(status)),
		attribute.Float64("pipeline.duration_seconds", duration.Seconds()),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "run completed")
	}

	if t.metrics != nil {
		attrs := metric.WithAttributes(attribute.String("status", string(status)))
		t.metrics.PipelineRunsTotal.Add(ctx, 1, attrs)
		t.metrics.PipelineRunDuration.Record(ctx, duration.Seconds(), attrs)
	}
	span.End()
}

// StartStage opens a child span for one stage
func (t *Tracer) StartStage(ctx context.Context, runID, stageID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "pipeline.stage."+stageID,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("pipeline.run_id", runID),
			attribute.String("stage.id", stageID),
		),
	)
}

// EndStage records the outcome of a stage and ends its span
func (t *Tracer) EndStage(ctx context.Context, span trace.Span, stageID string, status StageStatus, duration time.Duration, err error) {
	span.SetAttributes(
		attribute.String("stage.status", string(status)),
		attribute.Float64("stage.duration_seconds", duration.Seconds()),
	)
	if err != nil {
		infrastructure.RecordError(ctx, err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	t.metrics.RecordStage(ctx, stageID, duration, err)
	span.End()
}

// RecordLoad counts rows read from one source
func (t *Tracer) RecordLoad(ctx context.Context, source string, rows int) {
	if t.metrics == nil {
		return
	}
	t.metrics.RowsLoaded.Add(ctx, int64(rows), metric.WithAttributes(attribute.String("source", source)))
}

// RecordUnmatched counts order rows without a match in a joined source
func (t *Tracer) RecordUnmatched(ctx context.Context, source string, rows int) {
	if t.metrics == nil || rows == 0 {
		return
	}
	t.metrics.RowsUnmatched.Add(ctx, int64(rows), metric.WithAttributes(attribute.String("source", source)))
}

// RecordTransform records the duration of an analytics transform
func (t *Tracer) RecordTransform(ctx context.Context, name string, duration time.Duration) {
	t.metrics.RecordTransform(ctx, name, duration)
	trace.SpanFromContext(ctx).AddEvent("transform.completed", trace.WithAttributes(
		attribute.String("transform", name),
		attribute.Float64("duration_seconds", duration.Seconds()),
	))
}
