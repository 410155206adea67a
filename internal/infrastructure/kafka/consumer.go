package kafka

import (
	"context"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

type MessageHandler func(ctx context.Context, key, value []byte) error

const (
	handleAttempts = 3
	retryBackoff   = 500 * time.Millisecond
)

// Consumer reads a topic as part of a consumer group and commits each
// message after it has been handled.
type Consumer struct {
	reader  *kafka.Reader
	backoff time.Duration
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
	})
	return &Consumer{reader: reader, backoff: retryBackoff}
}

func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[Kafka] Error reading message: %v", err)
			continue
		}

		if err := deliver(ctx, handler, msg.Key, msg.Value, handleAttempts, c.backoff); err != nil {
			log.Printf("[Kafka] Dropping message at partition %d offset %d: %v", msg.Partition, msg.Offset, err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[Kafka] Error committing offset %d: %v", msg.Offset, err)
		}
	}
}

// deliver calls handler up to attempts times, waiting backoff between tries.
func deliver(ctx context.Context, handler MessageHandler, key, value []byte, attempts int, backoff time.Duration) error {
	var err error
	for i := 1; i <= attempts; i++ {
		if err = handler(ctx, key, value); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		log.Printf("[Kafka] Handler failed (attempt %d/%d): %v", i, attempts, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return err
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
