package email

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Domenick1991/deskbooking/internal/domain"
	"github.com/Domenick1991/deskbooking/internal/notify"
	"github.com/segmentio/kafka-go"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// OutboundMessage is the outbox record consumed by the worker.
type OutboundMessage struct {
	Channel Channel `json:"channel"`
	To      string  `json:"to"`
	Subject string  `json:"subject,omitempty"`
	Body    string  `json:"body"`
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

// Outbox is a Messenger that queues messages on a Kafka topic instead of sending them.
type Outbox struct {
	producer Producer
	topic    string
}

func NewOutbox(producer Producer, topic string) *Outbox {
	return &Outbox{producer: producer, topic: topic}
}

func (o *Outbox) SendEmail(ctx context.Context, address, subject, body string) error {
	return o.enqueue(ctx, OutboundMessage{Channel: ChannelEmail, To: address, Subject: subject, Body: body})
}

func (o *Outbox) SendSMS(ctx context.Context, phone, body string) error {
	return o.enqueue(ctx, OutboundMessage{Channel: ChannelSMS, To: phone, Body: body})
}

func (o *Outbox) enqueue(ctx context.Context, msg OutboundMessage) error {
	if err := o.producer.Publish(ctx, o.topic, msg.To, msg); err != nil {
		return &domain.TransportError{Channel: string(msg.Channel), Err: err}
	}
	return nil
}

// Dispatcher delivers messages read from Kafka. Undecodable or undeliverable messages are
// logged and skipped so one bad record never stalls the consumer.
type Dispatcher struct {
	messenger Messenger
	logger    *slog.Logger
}

func NewDispatcher(messenger Messenger, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{messenger: messenger, logger: logger}
}

func (d *Dispatcher) Deliver(ctx context.Context, msg OutboundMessage) error {
	switch msg.Channel {
	case ChannelEmail:
		return d.messenger.SendEmail(ctx, msg.To, msg.Subject, msg.Body)
	case ChannelSMS:
		return d.messenger.SendSMS(ctx, msg.To, msg.Body)
	default:
		return fmt.Errorf("unknown channel %q", msg.Channel)
	}
}

// HandleOutbound is a kafka consumer handler for the outbound topic.
func (d *Dispatcher) HandleOutbound(ctx context.Context, m kafka.Message) error {
	var msg OutboundMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		d.logger.Error("decode outbound message", "offset", m.Offset, "error", err)
		return nil
	}
	if err := d.Deliver(ctx, msg); err != nil {
		d.logger.Error("deliver outbound message", "channel", msg.Channel, "error", err)
	}
	return nil
}

// HandleNotification is a kafka consumer handler for the notifications topic. Accounts
// without an e-mail address are skipped.
func (d *Dispatcher) HandleNotification(ctx context.Context, m kafka.Message) error {
	var n notify.Notification
	if err := json.Unmarshal(m.Value, &n); err != nil {
		d.logger.Error("decode notification", "offset", m.Offset, "error", err)
		return nil
	}
	if n.Email == "" {
		d.logger.Debug("notification without email", "account_id", n.AccountID)
		return nil
	}
	if err := d.messenger.SendEmail(ctx, n.Email, n.Title, n.Body); err != nil {
		d.logger.Error("deliver notification", "account_id", n.AccountID, "booking_id", n.BookingID, "error", err)
	}
	return nil
}

var _ Messenger = (*Outbox)(nil)
