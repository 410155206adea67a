// Package dynamo stores support tickets in a single DynamoDB table.
//
// Every ticket lives under partition "TICKET#<id>": the header is the "META"
// item and each message is a "MSG#<created nanos>#<message id>" item, so a
// Query on the partition returns the thread in order. Numeric ids come from
// atomic counter items under "COUNTER#<name>".
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/example/tunestore/internal/domain/ticket"
	"github.com/example/tunestore/internal/infrastructure/aws"
	"github.com/example/tunestore/internal/pagination"
)

const (
	entityTicket  = "TICKET"
	entityMessage = "MESSAGE"
	metaSK        = "META"

	// updateAttempts bounds the optimistic-lock retry loop in Update.
	updateAttempts = 3
)

type ticketItem struct {
	PK              string     `dynamodbav:"pk"`
	SK              string     `dynamodbav:"sk"`
	Entity          string     `dynamodbav:"entity"`
	ID              int64      `dynamodbav:"id"`
	CustomerID      int64      `dynamodbav:"customer_id"`
	OrderID         *int64     `dynamodbav:"order_id,omitempty"`
	AssignedStaffID *int64     `dynamodbav:"assigned_staff_id,omitempty"`
	Subject         string     `dynamodbav:"subject"`
	Status          string     `dynamodbav:"status"`
	CloseReason     string     `dynamodbav:"close_reason,omitempty"`
	CreatedAt       time.Time  `dynamodbav:"created_at"`
	UpdatedAt       time.Time  `dynamodbav:"updated_at"`
	ClosedAt        *time.Time `dynamodbav:"closed_at,omitempty"`
	Version         int64      `dynamodbav:"version"`
}

type messageItem struct {
	PK         string    `dynamodbav:"pk"`
	SK         string    `dynamodbav:"sk"`
	Entity     string    `dynamodbav:"entity"`
	ID         int64     `dynamodbav:"id"`
	TicketID   int64     `dynamodbav:"ticket_id"`
	AuthorKind string    `dynamodbav:"author_kind"`
	AuthorID   int64     `dynamodbav:"author_id"`
	Content    string    `dynamodbav:"content"`
	CreatedAt  time.Time `dynamodbav:"created_at"`
}

func ticketPK(id int64) string { return "TICKET#" + strconv.FormatInt(id, 10) }

func messageSK(m ticket.Message) string {
	return fmt.Sprintf("MSG#%020d#%020d", m.CreatedAt.UnixNano(), m.ID)
}

func toTicketItem(t *ticket.Ticket, version int64) ticketItem {
	return ticketItem{
		PK:              ticketPK(t.ID),
		SK:              metaSK,
		Entity:          entityTicket,
		ID:              t.ID,
		CustomerID:      t.CustomerID,
		OrderID:         t.OrderID,
		AssignedStaffID: t.AssignedStaffID,
		Subject:         t.Subject,
		Status:          string(t.Status),
		CloseReason:     t.CloseReason,
		CreatedAt:       t.CreatedAt.UTC(),
		UpdatedAt:       t.UpdatedAt.UTC(),
		ClosedAt:        t.ClosedAt,
		Version:         version,
	}
}

func (it ticketItem) toTicket() *ticket.Ticket {
	return &ticket.Ticket{
		ID:              it.ID,
		CustomerID:      it.CustomerID,
		OrderID:         it.OrderID,
		AssignedStaffID: it.AssignedStaffID,
		Subject:         it.Subject,
		Status:          ticket.Status(it.Status),
		CloseReason:     it.CloseReason,
		CreatedAt:       it.CreatedAt,
		UpdatedAt:       it.UpdatedAt,
		ClosedAt:        it.ClosedAt,
	}
}

func toMessageItem(m ticket.Message) messageItem {
	return messageItem{
		PK:         ticketPK(m.TicketID),
		SK:         messageSK(m),
		Entity:     entityMessage,
		ID:         m.ID,
		TicketID:   m.TicketID,
		AuthorKind: string(m.Author.Kind()),
		AuthorID:   m.Author.ID(),
		Content:    m.Content,
		CreatedAt:  m.CreatedAt.UTC(),
	}
}

func (it messageItem) toMessage() (ticket.Message, error) {
	author, err := ticket.NewAuthor(ticket.AuthorKind(it.AuthorKind), it.AuthorID)
	if err != nil {
		return ticket.Message{}, fmt.Errorf("message %d: %w", it.ID, err)
	}
	return ticket.Message{
		ID:        it.ID,
		TicketID:  it.TicketID,
		Author:    author,
		Content:   it.Content,
		CreatedAt: it.CreatedAt,
	}, nil
}

// TicketStore implements ticket.Repository on DynamoDB.
type TicketStore struct {
	client    aws.DynamoDBAPI
	tableName string
}

func NewTicketStore(client aws.DynamoDBAPI, tableName string) *TicketStore {
	return &TicketStore{client: client, tableName: tableName}
}

// nextID atomically increments the named counter and returns the new value.
func (s *TicketStore) nextID(ctx context.Context, counter string) (int64, error) {
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: sdkaws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: "COUNTER#" + counter},
			"sk": &types.AttributeValueMemberS{Value: metaSK},
		},
		UpdateExpression:          sdkaws.String("ADD #v :one"),
		ExpressionAttributeNames:  map[string]string{"#v": "value"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":one": &types.AttributeValueMemberN{Value: "1"}},
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to allocate %s id: %w", counter, err)
	}
	var v struct {
		Value int64 `dynamodbav:"value"`
	}
	if err := attributevalue.UnmarshalMap(out.Attributes, &v); err != nil {
		return 0, fmt.Errorf("failed to read %s counter: %w", counter, err)
	}
	return v.Value, nil
}

func (s *TicketStore) Create(ctx context.Context, t *ticket.Ticket, first ticket.Message) (*ticket.Ticket, error) {
	if !first.Author.Valid() {
		return nil, ticket.ErrInvalidAuthor
	}
	ticketID, err := s.nextID(ctx, "tickets")
	if err != nil {
		return nil, err
	}
	msgID, err := s.nextID(ctx, "ticket_messages")
	if err != nil {
		return nil, err
	}

	out := *t
	out.ID = ticketID
	out.Messages = nil
	first.ID = msgID
	first.TicketID = ticketID

	meta, err := attributevalue.MarshalMap(toTicketItem(&out, 1))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ticket: %w", err)
	}
	msg, err := attributevalue.MarshalMap(toMessageItem(first))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           sdkaws.String(s.tableName),
				Item:                meta,
				ConditionExpression: sdkaws.String("attribute_not_exists(pk)"),
			}},
			{Put: &types.Put{
				TableName: sdkaws.String(s.tableName),
				Item:      msg,
			}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ticket: %w", err)
	}

	out.Messages = []ticket.Message{first}
	return &out, nil
}

func (s *TicketStore) getMeta(ctx context.Context, id int64) (*ticketItem, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: sdkaws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: ticketPK(id)},
			"sk": &types.AttributeValueMemberS{Value: metaSK},
		},
		ConsistentRead: sdkaws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket %d: %w", id, err)
	}
	if len(out.Item) == 0 {
		return nil, ticket.ErrTicketNotFound
	}
	var it ticketItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ticket: %w", err)
	}
	return &it, nil
}

// Get returns the ticket with its thread in creation order.
func (s *TicketStore) Get(ctx context.Context, id int64) (*ticket.Ticket, error) {
	var (
		header   *ticket.Ticket
		messages []ticket.Message
		startKey map[string]types.AttributeValue
	)
	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              sdkaws.String(s.tableName),
			KeyConditionExpression: sdkaws.String("pk = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: ticketPK(id)},
			},
			ConsistentRead:    sdkaws.Bool(true),
			ScanIndexForward:  sdkaws.Bool(true),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query ticket %d: %w", id, err)
		}
		for _, raw := range out.Items {
			var kind struct {
				Entity string `dynamodbav:"entity"`
			}
			if err := attributevalue.UnmarshalMap(raw, &kind); err != nil {
				return nil, fmt.Errorf("failed to unmarshal item: %w", err)
			}
			switch kind.Entity {
			case entityTicket:
				var it ticketItem
				if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
					return nil, fmt.Errorf("failed to unmarshal ticket: %w", err)
				}
				header = it.toTicket()
			case entityMessage:
				var it messageItem
				if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
					return nil, fmt.Errorf("failed to unmarshal message: %w", err)
				}
				m, err := it.toMessage()
				if err != nil {
					return nil, err
				}
				messages = append(messages, m)
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	if header == nil {
		return nil, ticket.ErrTicketNotFound
	}
	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].ID < messages[j].ID
		}
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	header.Messages = messages
	if header.Messages == nil {
		header.Messages = []ticket.Message{}
	}
	return header, nil
}

// AppendMessage writes the message only if the ticket header still exists.
func (s *TicketStore) AppendMessage(ctx context.Context, ticketID int64, m ticket.Message) (*ticket.Message, error) {
	if !m.Author.Valid() {
		return nil, ticket.ErrInvalidAuthor
	}
	id, err := s.nextID(ctx, "ticket_messages")
	if err != nil {
		return nil, err
	}
	m.ID = id
	m.TicketID = ticketID

	msg, err := attributevalue.MarshalMap(toMessageItem(m))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{ConditionCheck: &types.ConditionCheck{
				TableName: sdkaws.String(s.tableName),
				Key: map[string]types.AttributeValue{
					"pk": &types.AttributeValueMemberS{Value: ticketPK(ticketID)},
					"sk": &types.AttributeValueMemberS{Value: metaSK},
				},
				ConditionExpression: sdkaws.String("attribute_exists(pk)"),
			}},
			{Put: &types.Put{
				TableName: sdkaws.String(s.tableName),
				Item:      msg,
			}},
		},
	})
	if err != nil {
		if conditionFailed(err) {
			return nil, ticket.ErrTicketNotFound
		}
		return nil, fmt.Errorf("failed to append message: %w", err)
	}
	return &m, nil
}

// Update applies mutate under optimistic locking on the header version,
// reloading and retrying a few times before giving up.
func (s *TicketStore) Update(ctx context.Context, id int64, mutate func(t *ticket.Ticket) error) (*ticket.Ticket, error) {
	for attempt := 1; attempt <= updateAttempts; attempt++ {
		current, err := s.getMeta(ctx, id)
		if err != nil {
			return nil, err
		}
		t := current.toTicket()
		if err := mutate(t); err != nil {
			return nil, err
		}

		item, err := attributevalue.MarshalMap(toTicketItem(t, current.Version+1))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal ticket: %w", err)
		}
		_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           sdkaws.String(s.tableName),
			Item:                item,
			ConditionExpression: sdkaws.String("version = :v"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":v": &types.AttributeValueMemberN{Value: strconv.FormatInt(current.Version, 10)},
			},
		})
		if err == nil {
			return t, nil
		}
		if !conditionFailed(err) {
			return nil, fmt.Errorf("failed to update ticket %d: %w", id, err)
		}
		log.Printf("[Store] Ticket %d changed underneath update, attempt %d/%d", id, attempt, updateAttempts)
	}
	return nil, ticket.ErrConcurrentUpdate
}

// List scans ticket headers. Sorting and paging happen client side, newest first.
func (s *TicketStore) List(ctx context.Context, filter ticket.Filter, page pagination.Request) (pagination.Page[ticket.Ticket], error) {
	expr := "entity = :e"
	values := map[string]types.AttributeValue{
		":e": &types.AttributeValueMemberS{Value: entityTicket},
	}
	names := map[string]string{}
	if filter.Status != "" {
		expr += " AND #s = :s"
		names["#s"] = "status"
		values[":s"] = &types.AttributeValueMemberS{Value: string(filter.Status)}
	}
	if filter.CustomerID != 0 {
		expr += " AND customer_id = :c"
		values[":c"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(filter.CustomerID, 10)}
	}

	input := &dynamodb.ScanInput{
		TableName:                 sdkaws.String(s.tableName),
		FilterExpression:          sdkaws.String(expr),
		ExpressionAttributeValues: values,
	}
	if len(names) > 0 {
		input.ExpressionAttributeNames = names
	}

	var all []ticket.Ticket
	for {
		out, err := s.client.Scan(ctx, input)
		if err != nil {
			return pagination.Page[ticket.Ticket]{}, fmt.Errorf("failed to scan tickets: %w", err)
		}
		for _, raw := range out.Items {
			var it ticketItem
			if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
				return pagination.Page[ticket.Ticket]{}, fmt.Errorf("failed to unmarshal ticket: %w", err)
			}
			t := it.toTicket()
			if it.Entity != entityTicket || !filter.Matches(t) {
				continue
			}
			all = append(all, *t)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}

	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return pagination.Slice(all, page), nil
}

// conditionFailed reports whether err is a failed condition, either on a
// single write or inside a transaction.
func conditionFailed(err error) bool {
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, r := range tce.CancellationReasons {
			if r.Code != nil && *r.Code == "ConditionalCheckFailed" {
				return true
			}
		}
		return false
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException"
}

var _ ticket.Repository = (*TicketStore)(nil)
