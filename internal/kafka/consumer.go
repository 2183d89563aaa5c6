package kafka

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// messageReader is the part of *kafka.Reader the consumer drives.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer commits an offset only after the handler accepted the message, so a crash
// mid-delivery replays it.
type Consumer struct {
	reader messageReader
	topic  string
	logger *slog.Logger
}

func NewConsumer(brokers []string, groupID, topic string, logger *slog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		Topic:             topic,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
		MaxWait:           time.Second,
	})
	return newConsumer(reader, topic, logger)
}

func newConsumer(reader messageReader, topic string, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{reader: reader, topic: topic, logger: logger.With("topic", topic)}
}

func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// Consume reads until ctx is canceled or the handler fails. A canceled context is a clean
// stop and returns nil.
func (c *Consumer) Consume(ctx context.Context, handler Handler) error {
	c.logger.Info("consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if stopped(ctx, err) {
				return nil
			}
			return err
		}

		if err := handler(ctx, msg); err != nil {
			c.logger.Error("handle message", "partition", msg.Partition, "offset", msg.Offset, "error", err)
			return err
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if stopped(ctx, err) {
				return nil
			}
			return err
		}
	}
}

func stopped(ctx context.Context, err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled)
}
