package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/example/tunestore/internal/email"
	"github.com/example/tunestore/internal/notification"
)

var notificationHandler *notification.Handler

func init() {
	smtpHost := getEnv("SMTP_HOST", "localhost")
	smtpPort := getEnv("SMTP_PORT", "1025")
	smtpFrom := getEnv("SMTP_FROM", "noreply@tunestore.local")

	emailSvc := email.NewService(smtpHost, smtpPort, smtpFrom)
	notificationHandler = notification.NewHandler(emailSvc)

	log.Printf("[Lambda Notifier] Initialized successfully (SMTP: %s:%s)", smtpHost, smtpPort)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

type messageHandler func(ctx context.Context, key, value []byte) error

// processBatch hands every record to handle and reports the ones that failed,
// so SQS only redelivers those.
func processBatch(ctx context.Context, sqsEvent events.SQSEvent, handle messageHandler) events.SQSEventResponse {
	var batchItemFailures []events.SQSBatchItemFailure

	for _, record := range sqsEvent.Records {
		var key []byte
		if attr, ok := record.MessageAttributes["message_id"]; ok && attr.StringValue != nil {
			key = []byte(*attr.StringValue)
		}
		if err := handle(ctx, key, []byte(record.Body)); err != nil {
			log.Printf("[Lambda Notifier] Failed to process message %s: %v", record.MessageId, err)
			batchItemFailures = append(batchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: record.MessageId,
			})
		}
	}

	successCount := len(sqsEvent.Records) - len(batchItemFailures)
	log.Printf("[Lambda Notifier] Processed %d/%d messages successfully", successCount, len(sqsEvent.Records))

	return events.SQSEventResponse{BatchItemFailures: batchItemFailures}
}

func handler(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	log.Printf("[Lambda Notifier] Received %d messages", len(sqsEvent.Records))
	return processBatch(ctx, sqsEvent, notificationHandler.HandleMessage), nil
}

func main() {
	lambda.Start(handler)
}
