package main

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

// ============================================
// Batch Processing Tests
// ============================================

func TestProcessBatch_ReportsOnlyFailures(t *testing.T) {
	var seen []string
	handle := func(ctx context.Context, key, value []byte) error {
		seen = append(seen, string(key))
		if string(value) == "boom" {
			return errors.New("smtp down")
		}
		return nil
	}
	ev := events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m-1", Body: `{"to":"a@example.com"}`, MessageAttributes: map[string]events.SQSMessageAttribute{
			"message_id": {DataType: "String", StringValue: strPtr("n-1")},
		}},
		{MessageId: "m-2", Body: "boom"},
		{MessageId: "m-3", Body: `{"to":"b@example.com"}`},
	}}

	resp := processBatch(context.Background(), ev, handle)

	require.Len(t, resp.BatchItemFailures, 1)
	assert.Equal(t, "m-2", resp.BatchItemFailures[0].ItemIdentifier)
	assert.Equal(t, []string{"n-1", "", ""}, seen)
}

func TestProcessBatch_Empty(t *testing.T) {
	resp := processBatch(context.Background(), events.SQSEvent{}, func(ctx context.Context, key, value []byte) error {
		t.Fatal("handler must not be called")
		return nil
	})

	assert.Empty(t, resp.BatchItemFailures)
}
