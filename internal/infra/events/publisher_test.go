package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/boddenberg/finance-dashboard-api/internal/domain"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	evt := domain.TransactionEvent{
		Kind:          domain.EventTransactionCreated,
		TransactionID: "t1",
		UserID:        "alice",
		OccurredAt:    at,
		Transaction: &domain.Transaction{
			ID:     "t1",
			UserID: "alice",
			Amount: decimal.RequireFromString("19.90"),
			Type:   domain.TypeExpense,
		},
	}

	msg, err := Encode(evt)
	require.NoError(t, err)

	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "t1", msg.MessageId)
	assert.Equal(t, domain.EventTransactionCreated, msg.Type)
	assert.Equal(t, at, msg.Timestamp)

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Body, &body))
	assert.Equal(t, "transaction.created", body["kind"])
	assert.Equal(t, "alice", body["userId"])
	tx := body["transaction"].(map[string]any)
	assert.Equal(t, 19.9, tx["amount"])
}

func TestEncode_DeleteOmitsTransaction(t *testing.T) {
	msg, err := Encode(domain.TransactionEvent{Kind: domain.EventTransactionDeleted, TransactionID: "t2"})
	require.NoError(t, err)
	assert.NotContains(t, string(msg.Body), `"transaction"`)
}

func TestNoop(t *testing.T) {
	assert.NoError(t, Noop{}.Publish(context.Background(), domain.TransactionEvent{}))
}
