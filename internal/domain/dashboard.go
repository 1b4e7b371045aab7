package domain

import "github.com/shopspring/decimal"

// Summary is the body of GET /api/dashboard/summary.
type Summary struct {
	TotalRevenue        decimal.Decimal `json:"totalRevenue"`
	TotalExpenses       decimal.Decimal `json:"totalExpenses"`
	NetBalance          decimal.Decimal `json:"netBalance"`
	TotalTransactions   int             `json:"totalTransactions"`
	PendingTransactions int             `json:"pendingTransactions"`
}

// MonthlyPoint is one row of the revenue/expense chart.
type MonthlyPoint struct {
	Month   string          `json:"month"` // "Jan 2024"
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
}

// CategoryShare is one slice of the category breakdown chart.
type CategoryShare struct {
	Category   string          `json:"category"`
	Amount     decimal.Decimal `json:"amount"`
	Percentage decimal.Decimal `json:"percentage"`
}

// BreakdownFilter narrows the category breakdown.
type BreakdownFilter struct {
	Type      string
	StartDate string
	EndDate   string
}
