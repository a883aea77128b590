package natsout

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/sentinel-replay/pkg/engine/frame"
)

type msg struct {
	subj string
	data []byte
}

type fakeConn struct {
	msgs []msg
	err  error
}

func (c *fakeConn) Publish(subj string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msg{subj, data})
	return nil
}

func TestPublisher_Publish(t *testing.T) {
	conn := &fakeConn{}
	p := New(conn)
	f := &frame.Frame{Seq: 4, SessionID: "s1", Index: 12.5, Attack: "none"}
	require.NoError(t, p.Publish(context.Background(), f))
	require.Len(t, conn.msgs, 1)
	assert.Equal(t, "frames.s1", conn.msgs[0].subj)

	var got frame.Frame
	require.NoError(t, json.Unmarshal(conn.msgs[0].data, &got))
	assert.Equal(t, uint64(4), got.Seq)
	assert.InDelta(t, 12.5, got.Index, 1e-9)
}

func TestPublisher_prefixAndError(t *testing.T) {
	failure := errors.New("disconnected")
	p := New(&fakeConn{err: failure}, WithSubjectPrefix("replay"))
	assert.Equal(t, "replay.x", p.Subject("x"))
	err := p.Publish(context.Background(), &frame.Frame{SessionID: "x"})
	assert.ErrorIs(t, err, failure)
}
