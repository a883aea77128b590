package engine

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/sentinel-replay/log"
)

type engineMetrics struct {
	ticks       metric.Int64Counter
	frames      metric.Int64Counter
	injections  metric.Int64Counter
	endOfStream metric.Int64Counter
	visited     atomic.Int64
	loaded      atomic.Int64
}

//nolint:funlen // readability
func newEngineMetrics(l *log.Logger) *engineMetrics {
	meter := otel.GetMeterProvider().Meter("sentinel.engine")
	m := &engineMetrics{}
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name,
			metric.WithDescription(desc),
			metric.WithUnit("{count}"))
		if err != nil {
			l.Error("failed to register metric",
				log.String("metric", name),
				log.ErrorField(err))
		}
		return c
	}
	m.ticks = counter("sentinel.engine.ticks", "Number of accepted ticks")
	m.frames = counter("sentinel.engine.frames", "Number of assembled frames")
	m.injections = counter("sentinel.engine.injections",
		"Number of buffer entries corrupted by attack injection")
	m.endOfStream = counter("sentinel.engine.eos", "Number of replays reaching the end")

	gauge := func(name, desc string, value func() int64) {
		if _, err := meter.Int64ObservableGauge(name,
			metric.WithDescription(desc),
			metric.WithUnit("{count}"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(value())
				return nil
			})); err != nil {
			l.Error("failed to register metric",
				log.String("metric", name),
				log.ErrorField(err))
		}
	}
	gauge("sentinel.engine.visited", "Highest buffer index reached by playback",
		m.visited.Load)
	gauge("sentinel.engine.samples", "Number of samples in the buffer", m.loaded.Load)
	return m
}

func (m *engineMetrics) add(ctx context.Context, c metric.Int64Counter, attrs ...attribute.KeyValue) {
	if c == nil {
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(attrs...))
}
