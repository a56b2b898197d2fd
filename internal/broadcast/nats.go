package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/atinyakov/gnoixus/internal/models"
)

const (
	subjectPrefix = "gnoixus.context."
	// SenderHeader carries the id of the sending context on NATS messages.
	SenderHeader = "Gnoixus-Sender"
)

// Subject is the NATS subject a context listens on.
func Subject(id string) string { return subjectPrefix + id }

// Connect dials url with reconnect handling that logs through log.
func Connect(url, name string, log *zap.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(name),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			log.Info("nats connection closed")
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

type requester interface {
	RequestMsgWithContext(ctx context.Context, msg *nats.Msg) (*nats.Msg, error)
}

// NATSTransport delivers envelopes by request/reply on the peer's subject.
type NATSTransport struct {
	conn requester
	self string
}

// NewNATSTransport sends as the context self over nc.
func NewNATSTransport(nc *nats.Conn, self string) *NATSTransport {
	return &NATSTransport{conn: nc, self: self}
}

func (t *NATSTransport) Send(ctx context.Context, peer models.Peer, env models.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	msg := nats.NewMsg(Subject(peer.ID))
	msg.Header.Set(SenderHeader, t.self)
	msg.Data = data

	reply, err := t.conn.RequestMsgWithContext(ctx, msg)
	if err != nil {
		return err
	}
	return checkReply(reply.Data)
}

// Handler serves a decoded envelope; it is satisfied by *dispatch.Dispatcher.
type Handler interface {
	Dispatch(ctx context.Context, sender string, env models.Envelope) any
}

// ServeNATS answers requests on the subject of the context id with h.
func ServeNATS(nc *nats.Conn, id string, h Handler, log *zap.Logger) (*nats.Subscription, error) {
	sub, err := nc.Subscribe(Subject(id), func(msg *nats.Msg) {
		reply := handleMessage(context.Background(), h, msg, log)
		if err := msg.Respond(reply); err != nil {
			log.Warn("failed to respond", zap.String("subject", msg.Subject), zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", Subject(id), err)
	}
	log.Debug("serving on nats", zap.String("subject", Subject(id)))
	return sub, nil
}

func handleMessage(ctx context.Context, h Handler, msg *nats.Msg, log *zap.Logger) (reply []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("handler panicked", zap.String("subject", msg.Subject), zap.Any("panic", r))
			reply = encodeReply(models.Fail("Internal error"))
		}
	}()

	var env models.Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		return encodeReply(models.Fail("Invalid request"))
	}
	sender := ""
	if msg.Header != nil {
		sender = msg.Header.Get(SenderHeader)
	}
	return encodeReply(h.Dispatch(ctx, sender, env))
}

func encodeReply(v any) []byte {
	out, err := json.Marshal(v)
	if err != nil {
		out, _ = json.Marshal(models.Status{})
	}
	return out
}
