package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/teamnewpipe/crashreportimporter"

// Metrics counts message outcomes.
type Metrics struct {
	received       otelmetric.Int64Counter
	rejected       otelmetric.Int64Counter
	delivered      otelmetric.Int64Counter
	deliveryFailed otelmetric.Int64Counter
}

func NewMetrics(mp otelmetric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)

	received, err := meter.Int64Counter("crashreports.received",
		otelmetric.WithDescription("Crash report mails handed to the importer"))
	if err != nil {
		return nil, err
	}
	rejected, err := meter.Int64Counter("crashreports.rejected",
		otelmetric.WithDescription("Crash report mails that could not be turned into a record"))
	if err != nil {
		return nil, err
	}
	delivered, err := meter.Int64Counter("crashreports.delivered",
		otelmetric.WithDescription("Records stored by a sink"))
	if err != nil {
		return nil, err
	}
	deliveryFailed, err := meter.Int64Counter("crashreports.delivery_failed",
		otelmetric.WithDescription("Records a sink failed to store"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		received:       received,
		rejected:       rejected,
		delivered:      delivered,
		deliveryFailed: deliveryFailed,
	}, nil
}

// NoopMetrics discards every measurement.
func NoopMetrics() *Metrics {
	m, _ := NewMetrics(metricnoop.NewMeterProvider())
	return m
}

func (m *Metrics) Received(ctx context.Context) {
	m.received.Add(ctx, 1)
}

func (m *Metrics) Rejected(ctx context.Context, reason string) {
	m.rejected.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) Delivered(ctx context.Context, sink string) {
	m.delivered.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("sink", sink)))
}

func (m *Metrics) DeliveryFailed(ctx context.Context, sink, reason string) {
	m.deliveryFailed.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("sink", sink),
		attribute.String("reason", reason),
	))
}
