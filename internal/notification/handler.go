package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
)

// Handler delivers queued messages taken off Kafka or SQS.
type Handler struct {
	sender Sender
}

func NewHandler(sender Sender) *Handler {
	return &Handler{sender: sender}
}

// HandleMessage decodes one queued Message and sends it. Undecodable or
// addressless messages are dropped, since retrying cannot fix them.
func (h *Handler) HandleMessage(ctx context.Context, key, value []byte) error {
	var msg Message
	if err := json.Unmarshal(value, &msg); err != nil {
		log.Printf("[Notifier] Failed to unmarshal message: %v", err)
		return nil
	}
	if msg.To == "" {
		log.Printf("[Notifier] Dropping message %s without recipient", msg.ID)
		return nil
	}

	if err := h.sender.Send(ctx, msg.To, msg.Subject, msg.Body); err != nil {
		log.Printf("[Notifier] Failed to send message %s to %s: %v", msg.ID, msg.To, err)
		return fmt.Errorf("deliver %s: %w", msg.ID, err)
	}

	log.Printf("[Notifier] Message %s sent to %s", msg.ID, msg.To)
	return nil
}
