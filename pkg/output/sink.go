// Package output delivers assembled frames to their consumers.
package output

import (
	"context"
	"errors"

	"github.com/mpapenbr/sentinel-replay/pkg/engine/frame"
)

// Sink receives every frame the engine produces. Frames are shared between
// sinks and must not be modified.
type Sink interface {
	Publish(ctx context.Context, f *frame.Frame) error
}

type SinkFunc func(ctx context.Context, f *frame.Frame) error

func (fn SinkFunc) Publish(ctx context.Context, f *frame.Frame) error {
	return fn(ctx, f)
}

// Discard drops all frames.
var Discard Sink = SinkFunc(func(context.Context, *frame.Frame) error { return nil })

type multiSink []Sink

// Multi publishes to all sinks. Every sink is called, errors are joined.
func Multi(sinks ...Sink) Sink {
	return multiSink(sinks)
}

func (m multiSink) Publish(ctx context.Context, f *frame.Frame) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
