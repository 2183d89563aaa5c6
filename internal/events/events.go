// Package events publishes booking state changes to the configured broker.
package events

import (
	"context"
	"time"

	"github.com/Domenick1991/deskbooking/internal/domain"
)

type EventType string

const (
	BookingCreated      EventType = "booking.created"
	BookingActivated    EventType = "booking.activated"
	BookingEnded        EventType = "booking.ended"
	BookingCanceled     EventType = "booking.canceled"
	BookingAutoCanceled EventType = "booking.auto_canceled"
	BookingAutoOver     EventType = "booking.auto_over"
	BookingSwept        EventType = "booking.swept"
)

type BookingEvent struct {
	Type              EventType `json:"type"`
	BookingID         string    `json:"booking_id"`
	TableID           string    `json:"table_id"`
	UserID            string    `json:"user_id"`
	GroupID           string    `json:"group_id,omitempty"`
	Status            string    `json:"status"`
	DateFrom          time.Time `json:"date_from"`
	DateTo            time.Time `json:"date_to"`
	DateActivateUntil time.Time `json:"date_activate_until"`
	OccurredAt        time.Time `json:"occurred_at"`
}

func NewBookingEvent(eventType EventType, b *domain.Booking, at time.Time) BookingEvent {
	event := BookingEvent{
		Type:              eventType,
		BookingID:         b.ID,
		TableID:           b.TableID,
		UserID:            b.UserID,
		Status:            string(b.Status),
		DateFrom:          b.DateFrom,
		DateTo:            b.DateTo,
		DateActivateUntil: b.DateActivateUntil,
		OccurredAt:        at.UTC(),
	}
	if b.GroupID != nil {
		event.GroupID = *b.GroupID
	}
	return event
}

// Publisher delivers booking events. Callers log failures and carry on.
type Publisher interface {
	PublishBooking(ctx context.Context, event BookingEvent) error
}

// Producer is the kafka producer surface used here.
type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type KafkaPublisher struct {
	producer Producer
	topic    string
}

func NewKafkaPublisher(producer Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) PublishBooking(ctx context.Context, event BookingEvent) error {
	return p.producer.Publish(ctx, p.topic, event.BookingID, event)
}

// Nop drops every event.
type Nop struct{}

func (Nop) PublishBooking(context.Context, BookingEvent) error { return nil }

var (
	_ Publisher = (*KafkaPublisher)(nil)
	_ Publisher = Nop{}
)
