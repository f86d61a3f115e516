package license

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	TracerName = "license-engine"
	MeterName  = "license-engine"
)

// Metrics holds the engine's OpenTelemetry instruments.
type Metrics struct {
	Activations metric.Int64Counter
	Mutations   metric.Int64Counter
	Imports     metric.Int64Counter
	Evaluations metric.Int64Counter
	CatalogSize metric.Int64Gauge
}

// NewMetrics creates the engine instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.Activations, err = meter.Int64Counter(
		"license_activations_total",
		metric.WithDescription("License activation attempts by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create activations counter: %w", err)
	}

	m.Mutations, err = meter.Int64Counter(
		"license_catalog_mutations_total",
		metric.WithDescription("Catalog mutations by operation and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mutations counter: %w", err)
	}

	m.Imports, err = meter.Int64Counter(
		"license_catalog_imports_total",
		metric.WithDescription("Catalog imports by mode and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create imports counter: %w", err)
	}

	m.Evaluations, err = meter.Int64Counter(
		"license_evaluations_total",
		metric.WithDescription("Entitlement evaluations by resulting state"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create evaluations counter: %w", err)
	}

	m.CatalogSize, err = meter.Int64Gauge(
		"license_catalog_size",
		metric.WithDescription("Number of records in the license catalog"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog size gauge: %w", err)
	}

	return m, nil
}

func outcome(success bool) attribute.KeyValue {
	if success {
		return attribute.String("outcome", "success")
	}
	return attribute.String("outcome", "failure")
}

func (m *Metrics) recordActivation(ctx context.Context, success bool) {
	if m == nil {
		return
	}
	m.Activations.Add(ctx, 1, metric.WithAttributes(outcome(success)))
}

func (m *Metrics) recordMutation(ctx context.Context, op string, success bool) {
	if m == nil {
		return
	}
	m.Mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op), outcome(success)))
}

func (m *Metrics) recordImport(ctx context.Context, mode ImportMode, success bool) {
	if m == nil {
		return
	}
	m.Imports.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", string(mode)), outcome(success)))
}

func (m *Metrics) recordEvaluation(ctx context.Context, state EntitlementState) {
	if m == nil {
		return
	}
	m.Evaluations.Add(ctx, 1, metric.WithAttributes(attribute.String("state", string(state))))
}

func (m *Metrics) recordCatalogSize(ctx context.Context, size int) {
	if m == nil {
		return
	}
	m.CatalogSize.Record(ctx, int64(size))
}

func defaultTracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// endSpan marks span failed when err is set and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
