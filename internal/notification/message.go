package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Sender delivers one message to one address.
type Sender interface {
	Send(ctx context.Context, address, subject, body string) error
}

// Message is the queued form of a notification, as published to Kafka or SQS.
type Message struct {
	ID        string    `json:"id"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

func NewMessage(to, subject, body string) Message {
	return Message{
		ID:        uuid.New().String(),
		To:        to,
		Subject:   subject,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
}
