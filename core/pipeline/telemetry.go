package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/FocuswithJustin/ifcslim/core/pipeline"

// Without an installed SDK both resolve to no-op implementations.
var (
	tracer = otel.Tracer(instrumentationName)
	meter  = otel.Meter(instrumentationName)
)

// instruments holds the metric instruments of one run.
type instruments struct {
	exported metric.Int64Counter
	skipped  metric.Int64Counter
	phases   metric.Float64Histogram
}

func newInstruments() (*instruments, error) {
	var (
		ins instruments
		err error
	)
	ins.exported, err = meter.Int64Counter(
		"ifcslim.products.exported",
		metric.WithDescription("Products whose geometry was exported"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create exported counter: %w", err)
	}
	ins.skipped, err = meter.Int64Counter(
		"ifcslim.products.skipped",
		metric.WithDescription("Products skipped because their geometry failed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create skipped counter: %w", err)
	}
	ins.phases, err = meter.Float64Histogram(
		"ifcslim.phase.duration",
		metric.WithDescription("Pipeline phase duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create phase histogram: %w", err)
	}
	return &ins, nil
}

func (ins *instruments) phaseDone(ctx context.Context, name string, d time.Duration) {
	ins.phases.Record(ctx, float64(d.Microseconds())/1000, metric.WithAttributes(attribute.String("phase", name)))
}

func (ins *instruments) productSkipped(ctx context.Context, kind string) {
	ins.skipped.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (ins *instruments) productsExported(ctx context.Context, n int) {
	ins.exported.Add(ctx, int64(n))
}
