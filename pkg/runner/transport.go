package runner

import "github.com/nats-io/nats.go"

// Transport delivers inbound NATS messages to a channel and publishes
// outbound ones.
type Transport interface {
	// Subscribe joins queue on subject, delivering to ch. The returned
	// function ends the subscription.
	Subscribe(subject, queue string, ch chan *nats.Msg) (func() error, error)

	// PublishMsg publishes a message with headers
	PublishMsg(msg *nats.Msg) error
}

type natsTransport struct {
	conn *nats.Conn
}

// NATSTransport returns a Transport backed by a NATS connection.
func NATSTransport(conn *nats.Conn) Transport {
	return &natsTransport{conn: conn}
}

func (t *natsTransport) Subscribe(subject, queue string, ch chan *nats.Msg) (func() error, error) {
	sub, err := t.conn.ChanQueueSubscribe(subject, queue, ch)
	if err != nil {
		return nil, err
	}
	return sub.Unsubscribe, nil
}

func (t *natsTransport) PublishMsg(msg *nats.Msg) error {
	return t.conn.PublishMsg(msg)
}
