package notification_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/tunestore/internal/domain/identity"
	"github.com/example/tunestore/internal/domain/order"
	"github.com/example/tunestore/internal/domain/ticket"
	"github.com/example/tunestore/internal/infrastructure/store/memory"
	"github.com/example/tunestore/internal/notification"
)

type sent struct {
	address, subject, body string
	ctxErr                 error
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (f *fakeSender) Send(ctx context.Context, address, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{address: address, subject: subject, body: body, ctxErr: ctx.Err()})
	return f.err
}

func newDirectory() *memory.Store {
	st := memory.New()
	st.PutPerson(identity.Person{ID: 1, Username: "alice", Email: "alice@example.com", Role: identity.RoleCustomer})
	return st
}

func placedOrder() *order.Order {
	return &order.Order{
		ID:         10,
		CustomerID: 1,
		Status:     order.StatusPending,
		Total:      decimal.RequireFromString("9.99"),
		Items: []order.Item{
			{Position: 1, TrackID: 5, Title: "Blue", ArtistName: "Nina", UnitPrice: decimal.RequireFromString("9.99"), Quantity: 1},
		},
	}
}

// ============================================
// Dispatcher
// ============================================

func TestDispatcher_OrderPlaced_SendsReceipt(t *testing.T) {
	sender := &fakeSender{}
	d := notification.NewDispatcher(newDirectory(), sender)

	d.OrderPlaced(context.Background(), placedOrder())

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "alice@example.com", sender.sent[0].address)
	assert.Contains(t, sender.sent[0].subject, "#10")
	assert.Contains(t, sender.sent[0].body, "Blue")
	assert.Contains(t, sender.sent[0].body, "$9.99")
}

func TestDispatcher_OrderStatusChanged_IncludesCancelReason(t *testing.T) {
	sender := &fakeSender{}
	d := notification.NewDispatcher(newDirectory(), sender)
	o := placedOrder()
	o.Status = order.StatusCancelled
	o.CancelReason = "bought by mistake"

	d.OrderStatusChanged(context.Background(), o, order.StatusPending)

	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].subject, "CANCELLED")
	assert.Contains(t, sender.sent[0].body, "bought by mistake")
}

func TestDispatcher_TicketReplied_OnlyStaff(t *testing.T) {
	sender := &fakeSender{}
	d := notification.NewDispatcher(newDirectory(), sender)
	tk := &ticket.Ticket{ID: 3, CustomerID: 1, Subject: "Download fails", Status: ticket.StatusOpen}

	d.TicketReplied(context.Background(), tk, &ticket.Message{Author: ticket.CustomerAuthor(1), Content: "still broken"})
	assert.Empty(t, sender.sent)

	d.TicketReplied(context.Background(), tk, &ticket.Message{Author: ticket.StaffAuthor(9), Content: "fixed now"})
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].body, "fixed now")
}

func TestDispatcher_TicketStatusChanged(t *testing.T) {
	sender := &fakeSender{}
	d := notification.NewDispatcher(newDirectory(), sender)
	tk := &ticket.Ticket{ID: 3, CustomerID: 1, Subject: "Download fails", Status: ticket.StatusClosed}

	d.TicketStatusChanged(context.Background(), tk, ticket.StatusOpen)

	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].subject, "CLOSED")
}

func TestDispatcher_UnknownCustomer_DoesNotSend(t *testing.T) {
	sender := &fakeSender{}
	d := notification.NewDispatcher(newDirectory(), sender)
	o := placedOrder()
	o.CustomerID = 404

	assert.NotPanics(t, func() { d.OrderPlaced(context.Background(), o) })
	assert.Empty(t, sender.sent)
}

func TestDispatcher_SendFailure_IsSwallowed(t *testing.T) {
	sender := &fakeSender{err: errors.New("smtp down")}
	d := notification.NewDispatcher(newDirectory(), sender)

	assert.NotPanics(t, func() { d.OrderPlaced(context.Background(), placedOrder()) })
	assert.Len(t, sender.sent, 1)
}

func TestDispatcher_DetachedFromCallerCancellation(t *testing.T) {
	sender := &fakeSender{}
	d := notification.NewDispatcher(newDirectory(), sender)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d.OrderPlaced(ctx, placedOrder())

	require.Len(t, sender.sent, 1)
	assert.NoError(t, sender.sent[0].ctxErr)
}

func TestDispatcher_BreakerOpensAfterFailures(t *testing.T) {
	sender := &fakeSender{err: errors.New("smtp down")}
	d := notification.NewDispatcher(newDirectory(), sender,
		notification.WithSendTimeout(time.Second),
		notification.WithBreakerSettings(gobreaker.Settings{
			Name:    "test",
			Timeout: time.Hour,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 2
			},
		}))

	for i := 0; i < 5; i++ {
		d.OrderPlaced(context.Background(), placedOrder())
	}

	// the breaker rejects calls once open, so the sender is not reached again
	assert.Len(t, sender.sent, 2)
}

// blockingSender holds every Send until release is closed.
type blockingSender struct {
	fakeSender
	release chan struct{}
}

func (b *blockingSender) Send(ctx context.Context, address, subject, body string) error {
	<-b.release
	return b.fakeSender.Send(ctx, address, subject, body)
}

func TestDispatcher_AsyncDelivery_DoesNotBlockCaller(t *testing.T) {
	sender := &blockingSender{release: make(chan struct{})}
	d := notification.NewDispatcher(newDirectory(), sender, notification.WithAsyncDelivery(2))

	returned := make(chan struct{})
	go func() {
		d.OrderPlaced(context.Background(), placedOrder())
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("OrderPlaced waited for the sender")
	}

	close(sender.release)
	d.Close()

	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "alice@example.com", sender.sent[0].address)
	assert.NoError(t, sender.sent[0].ctxErr)
}

func TestDispatcher_AsyncDelivery_FullSlotsDeliverInline(t *testing.T) {
	sender := &blockingSender{release: make(chan struct{})}
	d := notification.NewDispatcher(newDirectory(), sender, notification.WithAsyncDelivery(1))

	d.OrderPlaced(context.Background(), placedOrder())

	// the only slot is taken, so this call delivers on the caller
	inline := make(chan struct{})
	go func() {
		d.OrderPlaced(context.Background(), placedOrder())
		close(inline)
	}()
	select {
	case <-inline:
		t.Fatal("second delivery should wait for the sender")
	case <-time.After(50 * time.Millisecond):
	}

	close(sender.release)
	<-inline
	d.Close()

	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.Len(t, sender.sent, 2)
}

// ============================================
// Handler
// ============================================

func TestHandler_HandleMessage(t *testing.T) {
	sender := &fakeSender{}
	h := notification.NewHandler(sender)
	value, err := json.Marshal(notification.NewMessage("alice@example.com", "Hi", "<p>x</p>"))
	require.NoError(t, err)

	require.NoError(t, h.HandleMessage(context.Background(), nil, value))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "alice@example.com", sender.sent[0].address)
	assert.Equal(t, "Hi", sender.sent[0].subject)
}

func TestHandler_HandleMessage_DropsBadInput(t *testing.T) {
	sender := &fakeSender{}
	h := notification.NewHandler(sender)

	assert.NoError(t, h.HandleMessage(context.Background(), nil, []byte("not json")))
	assert.NoError(t, h.HandleMessage(context.Background(), nil, []byte(`{"subject":"no recipient"}`)))
	assert.Empty(t, sender.sent)
}

func TestHandler_HandleMessage_SendFailureIsReturned(t *testing.T) {
	h := notification.NewHandler(&fakeSender{err: errors.New("smtp down")})
	value, err := json.Marshal(notification.NewMessage("alice@example.com", "Hi", "x"))
	require.NoError(t, err)

	assert.Error(t, h.HandleMessage(context.Background(), nil, value))
}

// ============================================
// Queue senders
// ============================================

type fakePublisher struct {
	key     string
	payload any
	err     error
}

func (f *fakePublisher) Publish(ctx context.Context, key string, payload any) error {
	f.key, f.payload = key, payload
	return f.err
}

func TestKafkaSender_Send(t *testing.T) {
	pub := &fakePublisher{}
	s := notification.NewKafkaSender(pub)

	require.NoError(t, s.Send(context.Background(), "alice@example.com", "Hi", "body"))

	assert.Equal(t, "alice@example.com", pub.key)
	msg, ok := pub.payload.(notification.Message)
	require.True(t, ok)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "Hi", msg.Subject)

	pub.err = errors.New("broker down")
	assert.Error(t, s.Send(context.Background(), "alice@example.com", "Hi", "body"))
}

type fakeSQS struct {
	input *sqs.SendMessageInput
	err   error
}

func (f *fakeSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{}, nil
}

func TestSQSSender_Send(t *testing.T) {
	client := &fakeSQS{}
	s := notification.NewSQSSender(client, "https://sqs.example/queue")

	require.NoError(t, s.Send(context.Background(), "alice@example.com", "Hi", "body"))

	require.NotNil(t, client.input)
	assert.Equal(t, "https://sqs.example/queue", *client.input.QueueUrl)
	var msg notification.Message
	require.NoError(t, json.Unmarshal([]byte(*client.input.MessageBody), &msg))
	assert.Equal(t, "alice@example.com", msg.To)
	assert.Equal(t, msg.ID, *client.input.MessageAttributes["message_id"].StringValue)

	client.err = errors.New("throttled")
	assert.Error(t, s.Send(context.Background(), "alice@example.com", "Hi", "body"))
}
