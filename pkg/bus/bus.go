// Package bus wraps a NATS JetStream connection for publishing lifecycle
// events. The pod engine only publishes; notification and achievement
// consumers live in other deployments and never feed back into pod state.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
)

// Bus is a JetStream publisher. Every publish carries a deduplication ID so
// redelivered lifecycle events collapse server-side instead of fanning out to
// consumers twice.
type Bus struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// New connects to the NATS endpoint with reconnect defaults suited to a
// long-running engine process. Caller options apply after the defaults and
// may override them.
func New(url string, opts ...nats.Option) (*Bus, error) {
	base := []nats.Option{
		nats.Name("podvault-engine"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
	}
	nc, err := nats.Connect(url, append(base, opts...)...)
	if err != nil {
		return nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}
	return &Bus{conn: nc, js: js}, nil
}

// Close drains pending publishes before shutting the connection down.
func (b *Bus) Close() {
	if b == nil || b.conn == nil {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
	}
}

// Publish sends v as JSON to subj. A non-empty msgID becomes the JetStream
// message ID, letting the stream's dedup window absorb retried publishes of
// the same event.
func (b *Bus) Publish(ctx context.Context, subj, msgID string, v any) error {
	if b == nil {
		return errors.New("bus not configured")
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	msg := nats.NewMsg(subj)
	msg.Data = data
	if msgID != "" {
		msg.Header.Set(nats.MsgIdHdr, msgID)
	}
	_, err = b.js.PublishMsg(msg, nats.Context(ctx))
	return err
}
