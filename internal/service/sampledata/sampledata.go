// Package sampledata embeds the demo transaction set loaded for new users.
package sampledata

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

//go:embed transactions.json
var raw []byte

// Record is one entry of the bundled statement export. Category "Revenue"
// marks income; Status uses the statement's Paid/Pending/Cancelled wording.
type Record struct {
	Date     time.Time       `json:"date"`
	Amount   decimal.Decimal `json:"amount"`
	Category string          `json:"category"`
	Status   string          `json:"status"`
}

// Records decodes the embedded set.
func Records() ([]Record, error) {
	var out []Record
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode sample transactions: %w", err)
	}
	return out, nil
}
