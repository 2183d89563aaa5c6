// Package notify delivers messages to account holders.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/Domenick1991/deskbooking/internal/domain"
)

// Notification is the message sent to one account.
type Notification struct {
	AccountID string    `json:"account_id"`
	Email     string    `json:"email,omitempty"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Locale    string    `json:"locale"`
	BookingID string    `json:"booking_id,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

// Notifier is fire-and-forget: a failure is reported but never retried here.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

// KafkaNotifier puts notifications on a topic consumed by the delivery worker.
type KafkaNotifier struct {
	producer Producer
	topic    string
}

func NewKafkaNotifier(producer Producer, topic string) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topic: topic}
}

func (n *KafkaNotifier) Send(ctx context.Context, msg Notification) error {
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	if err := n.producer.Publish(ctx, n.topic, msg.AccountID, msg); err != nil {
		return &domain.TransportError{Channel: "notification", Err: err}
	}
	return nil
}

// LogNotifier only logs. It is used when no broker is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, msg Notification) error {
	n.logger.Info("notification", "account_id", msg.AccountID, "booking_id", msg.BookingID, "title", msg.Title, "locale", msg.Locale)
	return nil
}

var (
	_ Notifier = (*KafkaNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
)
