// Package broadcast fans out values from one source channel to many listeners.
package broadcast

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/sentinel-replay/log"
)

type Server[T any] interface {
	// Subscribe registers a listener. The channel is closed on CancelSubscription
	// or Close.
	Subscribe() <-chan T
	CancelSubscription(<-chan T)
	Close()
}

type (
	server[T any] struct {
		name           string
		source         <-chan T
		listeners      []chan T
		addListener    chan chan T
		removeListener chan (<-chan T)
		ctx            context.Context
		cancel         context.CancelFunc
		bufferSize     int
		sendTimeout    time.Duration
		dropOldest     bool
		numRcv         int64
		numSnd         int64
		numSkip        int64
		l              *log.Logger
	}
	Option[T any] func(*server[T])
)

// WithBufferSize sets the channel capacity of each listener.
func WithBufferSize[T any](n int) Option[T] {
	return func(s *server[T]) {
		s.bufferSize = n
	}
}

// WithSendTimeout sets how long a slow listener may block delivery before the
// value is skipped for it.
func WithSendTimeout[T any](d time.Duration) Option[T] {
	return func(s *server[T]) {
		s.sendTimeout = d
	}
}

// WithDropOldest makes delivery non-blocking: when a listener's buffer is full
// its oldest value is discarded in favor of the new one. The send timeout is
// not used then.
func WithDropOldest[T any]() Option[T] {
	return func(s *server[T]) {
		s.dropOldest = true
	}
}

func WithLogger[T any](l *log.Logger) Option[T] {
	return func(s *server[T]) {
		s.l = l
	}
}

func New[T any](name string, source <-chan T, opts ...Option[T]) Server[T] {
	ctx, cancel := context.WithCancel(context.Background())
	s := &server[T]{
		name:           name,
		source:         source,
		addListener:    make(chan chan T),
		removeListener: make(chan (<-chan T)),
		ctx:            ctx,
		cancel:         cancel,
		bufferSize:     8,
		sendTimeout:    50 * time.Millisecond,
		l:              log.Default().Named("broadcast"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupMetrics()
	go s.serve()
	return s
}

func (s *server[T]) Subscribe() <-chan T {
	ch := make(chan T, s.bufferSize)
	select {
	case s.addListener <- ch:
	case <-s.ctx.Done():
		close(ch)
	}
	return ch
}

func (s *server[T]) CancelSubscription(ch <-chan T) {
	select {
	case s.removeListener <- ch:
	case <-s.ctx.Done():
	}
}

func (s *server[T]) Close() {
	s.l.Info("closing broadcast server",
		log.String("name", s.name),
		log.Int64("rcv", s.numRcv),
		log.Int64("snd", s.numSnd),
		log.Int64("skip", s.numSkip))
	s.cancel()
}

//nolint:funlen // readability
func (s *server[T]) setupMetrics() {
	meter := otel.GetMeterProvider().Meter(fmt.Sprintf("sentinel.broadcast.%s", s.name))
	register := func(metricName, desc string, valueProvider func() int64) {
		if _, err := meter.Int64ObservableGauge(
			metricName,
			metric.WithDescription(desc),
			metric.WithUnit("{count}"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(valueProvider(),
					metric.WithAttributes(attribute.String("name", s.name)))
				return nil
			})); err != nil {
			s.l.Error("failed to register metric",
				log.String("metric", metricName),
				log.ErrorField(err))
		}
	}
	// values are read without synchronization, they are informational only
	register("sentinel.broadcast.rcv", "Number of received messages",
		func() int64 { return s.numRcv })
	register("sentinel.broadcast.snd", "Number of sent messages",
		func() int64 { return s.numSnd })
	register("sentinel.broadcast.skip", "Number of skipped messages",
		func() int64 { return s.numSkip })
}

//nolint:cyclop // by design
func (s *server[T]) serve() {
	defer func() {
		for _, listener := range s.listeners {
			close(listener)
		}
		s.listeners = nil
	}()
	for {
		select {
		case <-s.ctx.Done():
			s.l.Debug("broadcast server done", log.String("name", s.name))
			return
		case ch := <-s.addListener:
			s.listeners = append(s.listeners, ch)
		case ch := <-s.removeListener:
			for i, listener := range s.listeners {
				if listener == ch {
					s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
					close(listener)
					break
				}
			}
			s.l.Debug("removed listener",
				log.String("name", s.name), log.Int("len", len(s.listeners)))
		case msg, ok := <-s.source:
			if !ok {
				s.l.Debug("source closed", log.String("name", s.name))
				s.cancel()
				return
			}
			s.numRcv++
			for _, listener := range s.listeners {
				s.send(listener, msg)
			}
		}
	}
}

func (s *server[T]) send(listener chan T, msg T) {
	select {
	case listener <- msg:
		s.numSnd++
		return
	default:
	}
	if s.dropOldest {
		select {
		case <-listener:
			s.numSkip++
		default:
		}
		select {
		case listener <- msg:
			s.numSnd++
		default:
			s.numSkip++
		}
		return
	}
	t := time.NewTimer(s.sendTimeout)
	defer t.Stop()
	select {
	case listener <- msg:
		s.numSnd++
	case <-t.C:
		s.numSkip++
	}
}
