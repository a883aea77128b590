// Package natsout publishes frames on NATS subjects.
package natsout

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/mpapenbr/sentinel-replay/log"
	"github.com/mpapenbr/sentinel-replay/pkg/engine/frame"
)

const DefaultSubjectPrefix = "frames"

// Conn is the part of *nats.Conn used by the publisher.
type Conn interface {
	Publish(subj string, data []byte) error
}

type (
	Publisher struct {
		conn   Conn
		prefix string
		l      *log.Logger
	}
	Option func(*Publisher)
)

func WithSubjectPrefix(p string) Option {
	return func(pub *Publisher) {
		pub.prefix = p
	}
}

func WithLogger(l *log.Logger) Option {
	return func(pub *Publisher) {
		pub.l = l
	}
}

func New(conn Conn, opts ...Option) *Publisher {
	p := &Publisher{
		conn:   conn,
		prefix: DefaultSubjectPrefix,
		l:      log.Default().Named("output.nats"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Connect dials url and returns a publisher owning the connection.
func Connect(url string, opts ...Option) (*Publisher, *nats.Conn, error) {
	nc, err := nats.Connect(url, nats.Name("sentinel-replay"))
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return New(nc, opts...), nc, nil
}

// Subject returns the subject frames of sessionID are published on.
func (p *Publisher) Subject(sessionID string) string {
	return fmt.Sprintf("%s.%s", p.prefix, sessionID)
}

func (p *Publisher) Publish(_ context.Context, f *frame.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	subj := p.Subject(f.SessionID)
	if err := p.conn.Publish(subj, data); err != nil {
		p.l.Debug("publish failed", log.String("subject", subj), log.ErrorField(err))
		return fmt.Errorf("publish %s: %w", subj, err)
	}
	return nil
}
