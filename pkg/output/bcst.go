package output

import (
	"context"

	"github.com/mpapenbr/sentinel-replay/pkg/engine/frame"
	"github.com/mpapenbr/sentinel-replay/pkg/utils/broadcast"
)

// Broadcast fans frames out to local subscribers, e.g. streaming http clients.
// A subscriber that falls behind loses its oldest frames; publishing never waits
// for it.
type Broadcast struct {
	source chan *frame.Frame
	server broadcast.Server[*frame.Frame]
}

func NewBroadcast(name string, opts ...broadcast.Option[*frame.Frame]) *Broadcast {
	source := make(chan *frame.Frame)
	return &Broadcast{
		source: source,
		server: broadcast.New(name, source,
			append([]broadcast.Option[*frame.Frame]{broadcast.WithDropOldest[*frame.Frame]()},
				opts...)...),
	}
}

func (b *Broadcast) Publish(ctx context.Context, f *frame.Frame) error {
	select {
	case b.source <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Broadcast) Subscribe() <-chan *frame.Frame {
	return b.server.Subscribe()
}

func (b *Broadcast) CancelSubscription(ch <-chan *frame.Frame) {
	b.server.CancelSubscription(ch)
}

func (b *Broadcast) Close() {
	b.server.Close()
}
