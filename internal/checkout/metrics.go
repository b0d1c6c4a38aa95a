package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/xenking/marketplace-checkout/internal/checkout"

// Metrics holds the checkout instruments. Create once per process and share
// across sessions.
type Metrics struct {
	attempts    metric.Int64Counter
	rejections  metric.Int64Counter
	transitions metric.Int64Counter
	gatewayTime metric.Float64Histogram
}

// NewMetrics registers the checkout instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(instrumentationName)

	var (
		m   Metrics
		err error
	)
	if m.attempts, err = meter.Int64Counter("checkout.attempts",
		metric.WithDescription("Resolved order attempts by outcome"),
	); err != nil {
		return nil, errors.Wrap(err, "attempts counter")
	}
	if m.rejections, err = meter.Int64Counter("checkout.validation_rejections",
		metric.WithDescription("Submit calls stopped by a guard"),
	); err != nil {
		return nil, errors.Wrap(err, "rejections counter")
	}
	if m.transitions, err = meter.Int64Counter("checkout.transitions",
		metric.WithDescription("State machine transitions"),
	); err != nil {
		return nil, errors.Wrap(err, "transitions counter")
	}
	if m.gatewayTime, err = meter.Float64Histogram("checkout.gateway.duration",
		metric.WithDescription("Order gateway latency"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, errors.Wrap(err, "gateway histogram")
	}
	return &m, nil
}

func noopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider())
	return m
}

func (m *Metrics) attempt(ctx context.Context, outcome string, took time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.attempts.Add(ctx, 1, attrs)
	m.gatewayTime.Record(ctx, took.Seconds(), attrs)
}

func (m *Metrics) rejected(ctx context.Context) {
	m.rejections.Add(ctx, 1)
}

func (m *Metrics) transition(ctx context.Context, tr Transition) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", tr.From.String()),
		attribute.String("to", tr.To.String()),
	))
}
