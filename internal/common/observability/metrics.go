package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Observability records record-store latency through an OpenTelemetry meter
// exported on the default Prometheus registry.
type Observability struct {
	meterProvider   *metric.MeterProvider
	meter           otelmetric.Meter
	requestCounter  otelmetric.Int64Counter
	requestDuration otelmetric.Float64Histogram
}

func New(serviceName string) (*Observability, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, err
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	o := &Observability{meterProvider: provider}
	o.init(provider.Meter(serviceName))
	return o, nil
}

// NewWithMeter builds an Observability on an existing meter (tests pass a
// manual-reader provider here).
func NewWithMeter(meter otelmetric.Meter) *Observability {
	o := &Observability{}
	o.init(meter)
	return o
}

func (o *Observability) init(meter otelmetric.Meter) {
	o.meter = meter

	o.requestCounter, _ = meter.Int64Counter(
		"record_store.requests",
		otelmetric.WithDescription("Requests sent to the application record store"),
	)

	o.requestDuration, _ = meter.Float64Histogram(
		"record_store.request.duration",
		otelmetric.WithDescription("Application record store request duration"),
		otelmetric.WithUnit("ms"),
	)
}

// RecordStoreRequest records one record-store round trip. A nil receiver is a no-op.
func (o *Observability) RecordStoreRequest(ctx context.Context, endpoint string, statusCode int, duration time.Duration) {
	if o == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.Int("status_code", statusCode),
	)
	if o.requestCounter != nil {
		o.requestCounter.Add(ctx, 1, attrs)
	}
	if o.requestDuration != nil {
		o.requestDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

func (o *Observability) Shutdown() {
	if o == nil || o.meterProvider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = o.meterProvider.Shutdown(ctx)
}
