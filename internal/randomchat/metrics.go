package randomchat

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics holds the counters recorded by the random chat operations.
type Metrics struct {
	searches metric.Int64Counter
	matches  metric.Int64Counter
	messages metric.Int64Counter
	ended    metric.Int64Counter
	reports  metric.Int64Counter
}

// NewMetrics registers the counters on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	if m.searches, err = meter.Int64Counter("random_chat.searches",
		metric.WithDescription("Search requests by topic")); err != nil {
		return nil, err
	}
	if m.matches, err = meter.Int64Counter("random_chat.matches",
		metric.WithDescription("Sessions that became active, by how they matched")); err != nil {
		return nil, err
	}
	if m.messages, err = meter.Int64Counter("random_chat.messages",
		metric.WithDescription("User messages relayed")); err != nil {
		return nil, err
	}
	if m.ended, err = meter.Int64Counter("random_chat.sessions_ended",
		metric.WithDescription("Sessions ended, by reason")); err != nil {
		return nil, err
	}
	if m.reports, err = meter.Int64Counter("random_chat.reports",
		metric.WithDescription("Reports filed, by reason")); err != nil {
		return nil, err
	}
	return &m, nil
}

func noopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter("random_chat"))
	return m
}

func (m *Metrics) search(ctx context.Context, topic string) {
	m.searches.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *Metrics) match(ctx context.Context, how string) {
	m.matches.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", how)))
}

func (m *Metrics) message(ctx context.Context) {
	m.messages.Add(ctx, 1)
}

func (m *Metrics) end(ctx context.Context, reason string) {
	m.ended.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) report(ctx context.Context, reason string) {
	m.reports.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
