package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts travel as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// MaxAmount bounds transaction amounts and amount filters. Stores keep
// amounts as int64 cents.
var MaxAmount = decimal.New(1, 12)

// TransactionType is the direction of a transaction.
type TransactionType string

const (
	TypeIncome  TransactionType = "income"
	TypeExpense TransactionType = "expense"
)

// Valid reports whether t is one of the two known directions.
func (t TransactionType) Valid() bool {
	return t == TypeIncome || t == TypeExpense
}

// TransactionStatus is the settlement state of a transaction.
type TransactionStatus string

const (
	StatusCompleted TransactionStatus = "completed"
	StatusPending   TransactionStatus = "pending"
	StatusCancelled TransactionStatus = "cancelled"
)

// Valid reports whether s is one of the three known statuses.
func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusCompleted, StatusPending, StatusCancelled:
		return true
	}
	return false
}

// Transaction is a single income or expense record owned by one user.
// Amount is always a non-negative magnitude; Type carries the direction.
type Transaction struct {
	ID          string            `json:"_id"`
	UserID      string            `json:"userId"`
	Date        time.Time         `json:"date"`
	Amount      decimal.Decimal   `json:"amount"`
	Type        TransactionType   `json:"type"`
	Category    string            `json:"category"`
	Description string            `json:"description,omitempty"`
	Status      TransactionStatus `json:"status"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// TransactionInput is the body of POST and PUT /api/transactions.
// Every field is optional at the decoding level; create requires
// amount, type and category.
type TransactionInput struct {
	Amount      *decimal.Decimal `json:"amount"`
	Type        *string          `json:"type"`
	Category    *string          `json:"category"`
	Date        *string          `json:"date"`
	Status      *string          `json:"status"`
	Description *string          `json:"description"`
	UserID      *string          `json:"userId"`
}

// TransactionPatch is a validated partial update. Nil fields are left as-is.
// The owner is deliberately absent: it can never change.
type TransactionPatch struct {
	Amount      *decimal.Decimal
	Type        *TransactionType
	Category    *string
	Date        *time.Time
	Status      *TransactionStatus
	Description *string
	UpdatedAt   time.Time
}

// IsEmpty reports whether the patch changes nothing but the timestamp.
func (p *TransactionPatch) IsEmpty() bool {
	return p.Amount == nil && p.Type == nil && p.Category == nil &&
		p.Date == nil && p.Status == nil && p.Description == nil
}

// Apply copies the patch onto t.
func (p *TransactionPatch) Apply(t *Transaction) {
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if !p.UpdatedAt.IsZero() {
		t.UpdatedAt = p.UpdatedAt
	}
}

// TransactionEvent is published after every successful write.
type TransactionEvent struct {
	Kind          string       `json:"kind"` // transaction.created, transaction.updated, transaction.deleted
	TransactionID string       `json:"transactionId"`
	UserID        string       `json:"userId"`
	OccurredAt    time.Time    `json:"occurredAt"`
	Transaction   *Transaction `json:"transaction,omitempty"`
}

const (
	EventTransactionCreated = "transaction.created"
	EventTransactionUpdated = "transaction.updated"
	EventTransactionDeleted = "transaction.deleted"
)
