package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// natsConn is the part of *nats.Conn the publisher needs.
type natsConn interface {
	Publish(subject string, data []byte) error
	Close()
}

// NATSPublisher sends each event to the subject "<prefix>.<type>", e.g.
// "desk.booking.created".
type NATSPublisher struct {
	conn   natsConn
	prefix string
}

func NewNATSPublisher(url, prefix string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url, nats.Name("deskbooking"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return newNATSPublisher(conn, prefix), nil
}

func newNATSPublisher(conn natsConn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = "desk"
	}
	return &NATSPublisher{conn: conn, prefix: prefix}
}

func (p *NATSPublisher) Subject(eventType EventType) string {
	return p.prefix + "." + string(eventType)
}

func (p *NATSPublisher) PublishBooking(_ context.Context, event BookingEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	return p.conn.Publish(p.Subject(event.Type), payload)
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}

var _ Publisher = (*NATSPublisher)(nil)
