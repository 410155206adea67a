package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/example/tunestore/internal/infrastructure/aws"
)

// Publisher is satisfied by the Kafka producer.
type Publisher interface {
	Publish(ctx context.Context, key string, payload any) error
}

// KafkaSender queues messages on a topic for cmd/notifier to deliver.
type KafkaSender struct {
	publisher Publisher
}

func NewKafkaSender(publisher Publisher) *KafkaSender {
	return &KafkaSender{publisher: publisher}
}

// Send keys by address so one recipient's mail stays ordered.
func (s *KafkaSender) Send(ctx context.Context, address, subject, body string) error {
	msg := NewMessage(address, subject, body)
	if err := s.publisher.Publish(ctx, address, msg); err != nil {
		return fmt.Errorf("publish notification %s: %w", msg.ID, err)
	}
	return nil
}

// SQSSender queues messages for the notifier lambda.
type SQSSender struct {
	client   aws.SQSAPI
	queueURL string
}

func NewSQSSender(client aws.SQSAPI, queueURL string) *SQSSender {
	return &SQSSender{client: client, queueURL: queueURL}
}

func (s *SQSSender) Send(ctx context.Context, address, subject, body string) error {
	msg := NewMessage(address, subject, body)
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    sdkaws.String(s.queueURL),
		MessageBody: sdkaws.String(string(data)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"message_id": {DataType: sdkaws.String("String"), StringValue: sdkaws.String(msg.ID)},
		},
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// LogSender only logs. Used for local development.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, address, subject, body string) error {
	log.Printf("[Notify] To: %s Subject: %s (%d bytes)", address, subject, len(body))
	return nil
}
