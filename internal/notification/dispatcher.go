package notification

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/example/tunestore/internal/domain/identity"
	"github.com/example/tunestore/internal/domain/order"
	"github.com/example/tunestore/internal/domain/ticket"
	"github.com/example/tunestore/internal/email"
)

const (
	defaultSendTimeout = 10 * time.Second
	tripAfterFailures  = 5
)

// Dispatcher turns committed order and ticket changes into customer email.
// Delivery problems are logged and never reach the caller.
type Dispatcher struct {
	people      identity.Directory
	sender      Sender
	breaker     *gobreaker.CircuitBreaker[struct{}]
	sendTimeout time.Duration

	// slots bounds background deliveries; nil means deliver inline
	slots    chan struct{}
	inFlight sync.WaitGroup
}

type Option func(*Dispatcher)

func WithSendTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) { disp.sendTimeout = d }
}

// WithBreakerSettings replaces the default circuit breaker settings.
func WithBreakerSettings(st gobreaker.Settings) Option {
	return func(disp *Dispatcher) { disp.breaker = gobreaker.NewCircuitBreaker[struct{}](st) }
}

// WithAsyncDelivery moves delivery off the caller's goroutine, with at most
// maxInFlight deliveries running at once. When every slot is busy the caller
// delivers inline, so mail is slowed down rather than dropped.
func WithAsyncDelivery(maxInFlight int) Option {
	return func(disp *Dispatcher) {
		if maxInFlight > 0 {
			disp.slots = make(chan struct{}, maxInFlight)
		}
	}
}

func NewDispatcher(people identity.Directory, sender Sender, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		people:      people,
		sender:      sender,
		sendTimeout: defaultSendTimeout,
		breaker: gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:        "notify",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= tripAfterFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Printf("[Notify] Circuit %s: %s -> %s", name, from, to)
			},
		}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) OrderPlaced(ctx context.Context, o *order.Order) {
	lines := make([]email.ReceiptLine, len(o.Items))
	for i, it := range o.Items {
		lines[i] = email.ReceiptLine{
			Title:      it.Title,
			ArtistName: it.ArtistName,
			UnitPrice:  it.UnitPrice,
			Quantity:   it.Quantity,
		}
	}
	d.send(ctx, o.CustomerID, email.ReceiptSubject(o.ID), email.BuildReceiptBody(o.ID, o.Total, lines))
}

func (d *Dispatcher) OrderStatusChanged(ctx context.Context, o *order.Order, previous order.Status) {
	reason := ""
	if o.Status == order.StatusCancelled {
		reason = o.CancelReason
	}
	d.send(ctx, o.CustomerID,
		email.OrderStatusSubject(o.ID, string(o.Status)),
		email.BuildOrderStatusBody(o.ID, string(previous), string(o.Status), reason))
}

// TicketReplied only mails staff replies; customers do not get copies of their own messages.
func (d *Dispatcher) TicketReplied(ctx context.Context, t *ticket.Ticket, m *ticket.Message) {
	if m.Author.Kind() != ticket.AuthorStaff {
		return
	}
	d.send(ctx, t.CustomerID,
		email.TicketReplySubject(t.ID, t.Subject),
		email.BuildTicketReplyBody(t.ID, t.Subject, m.Content))
}

func (d *Dispatcher) TicketStatusChanged(ctx context.Context, t *ticket.Ticket, previous ticket.Status) {
	d.send(ctx, t.CustomerID,
		email.TicketStatusSubject(t.ID, string(t.Status)),
		email.BuildTicketStatusBody(t.ID, t.Subject, string(previous), string(t.Status)))
}

// Close waits for background deliveries to finish.
func (d *Dispatcher) Close() {
	d.inFlight.Wait()
}

// send runs detached from the caller's cancellation, so a client hanging up
// right after commit does not lose the mail.
func (d *Dispatcher) send(ctx context.Context, customerID int64, subject, body string) {
	ctx = context.WithoutCancel(ctx)
	if d.slots == nil {
		d.deliver(ctx, customerID, subject, body)
		return
	}
	select {
	case d.slots <- struct{}{}:
		d.inFlight.Add(1)
		go func() {
			defer func() {
				<-d.slots
				d.inFlight.Done()
			}()
			d.deliver(ctx, customerID, subject, body)
		}()
	default:
		log.Printf("[Notify] All %d delivery slots busy, sending inline", cap(d.slots))
		d.deliver(ctx, customerID, subject, body)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, customerID int64, subject, body string) {
	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	person, err := d.people.ByID(ctx, customerID)
	if err != nil {
		log.Printf("[Notify] warning: no address for customer %d: %v", customerID, err)
		return
	}

	_, err = d.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, d.sender.Send(ctx, person.Email, subject, body)
	})
	if err != nil {
		log.Printf("[Notify] warning: failed to notify customer %d (%q): %v", customerID, subject, err)
		return
	}
	log.Printf("[Notify] Sent %q to customer %d", subject, customerID)
}

var (
	_ order.Notifier  = (*Dispatcher)(nil)
	_ ticket.Notifier = (*Dispatcher)(nil)
)
