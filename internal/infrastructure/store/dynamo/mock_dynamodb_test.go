package dynamo

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// mockDynamo keeps one table in memory keyed by pk and sk. It understands
// only the condition expressions the ticket store issues.
type mockDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue

	// beforePut runs before a conditional PutItem is evaluated, without the lock held.
	beforePut func()
	putCalls  int
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func str(av types.AttributeValue) string {
	if s, ok := av.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func num(av types.AttributeValue) string {
	if n, ok := av.(*types.AttributeValueMemberN); ok {
		return n.Value
	}
	return ""
}

func itemKey(item map[string]types.AttributeValue) string {
	return str(item["pk"]) + "|" + str(item["sk"])
}

func (m *mockDynamo) checkCondition(key string, cond *string, values map[string]types.AttributeValue) bool {
	if cond == nil {
		return true
	}
	existing, exists := m.items[key]
	switch *cond {
	case "attribute_not_exists(pk)":
		return !exists
	case "attribute_exists(pk)":
		return exists
	case "version = :v":
		return exists && num(existing["version"]) == num(values[":v"])
	default:
		return false
	}
}

func (m *mockDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[itemKey(params.Key)]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *mockDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	if params.ConditionExpression != nil && m.beforePut != nil {
		m.beforePut()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putCalls++
	key := itemKey(params.Item)
	if !m.checkCondition(key, params.ConditionExpression, params.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{Message: sdkaws.String("condition failed")}
	}
	m.items[key] = params.Item
	return &dyn.PutItemOutput{}, nil
}

// UpdateItem only supports the counter increment.
func (m *mockDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if params.UpdateExpression == nil || *params.UpdateExpression != "ADD #v :one" {
		return nil, errors.New("unsupported update expression")
	}
	key := itemKey(params.Key)
	item, ok := m.items[key]
	if !ok {
		item = map[string]types.AttributeValue{"pk": params.Key["pk"], "sk": params.Key["sk"]}
	}
	current, _ := strconv.ParseInt(num(item["value"]), 10, 64)
	next := &types.AttributeValueMemberN{Value: strconv.FormatInt(current+1, 10)}
	item["value"] = next
	m.items[key] = item
	return &dyn.UpdateItemOutput{Attributes: map[string]types.AttributeValue{"value": next}}, nil
}

func (m *mockDynamo) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk := str(params.ExpressionAttributeValues[":pk"])
	var out []map[string]types.AttributeValue
	for _, item := range m.items {
		if str(item["pk"]) == pk {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return str(out[i]["sk"]) < str(out[j]["sk"]) })
	return &dyn.QueryOutput{Items: out}, nil
}

// Scan ignores the filter expression; the store filters again client side.
func (m *mockDynamo) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]map[string]types.AttributeValue, 0, len(m.items))
	for _, item := range m.items {
		out = append(out, item)
	}
	return &dyn.ScanOutput{Items: out}, nil
}

func (m *mockDynamo) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reasons := make([]types.CancellationReason, len(params.TransactItems))
	failed := false
	for i, ti := range params.TransactItems {
		reasons[i].Code = sdkaws.String("None")
		switch {
		case ti.Put != nil:
			if !m.checkCondition(itemKey(ti.Put.Item), ti.Put.ConditionExpression, ti.Put.ExpressionAttributeValues) {
				reasons[i].Code = sdkaws.String("ConditionalCheckFailed")
				failed = true
			}
		case ti.ConditionCheck != nil:
			if !m.checkCondition(itemKey(ti.ConditionCheck.Key), ti.ConditionCheck.ConditionExpression, ti.ConditionCheck.ExpressionAttributeValues) {
				reasons[i].Code = sdkaws.String("ConditionalCheckFailed")
				failed = true
			}
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{CancellationReasons: reasons}
	}
	for _, ti := range params.TransactItems {
		if ti.Put != nil {
			m.items[itemKey(ti.Put.Item)] = ti.Put.Item
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}
