package query

import (
	"sort"

	"github.com/boddenberg/finance-dashboard-api/internal/domain"

	"github.com/shopspring/decimal"
)

// GroupKey names one grouping dimension.
type GroupKey string

const (
	KeyYear     GroupKey = "year"
	KeyMonth    GroupKey = "month"
	KeyType     GroupKey = "type"
	KeyCategory GroupKey = "category"
	KeyStatus   GroupKey = "status"
)

// GroupRow is one aggregate bucket. Only the fields named by the requested
// keys are populated.
type GroupRow struct {
	Year     int
	Month    int
	Type     domain.TransactionType
	Category string
	Status   domain.TransactionStatus
	Total    decimal.Decimal
	Count    int
}

type groupID struct {
	year     int
	month    int
	typ      domain.TransactionType
	category string
	status   domain.TransactionStatus
}

// GroupRows buckets txs by keys in memory, summing amounts. Month and year
// are taken in UTC. Rows come back in key order so results are stable.
func GroupRows(txs []domain.Transaction, keys []GroupKey) []GroupRow {
	buckets := make(map[groupID]*GroupRow)
	order := make([]groupID, 0)

	for i := range txs {
		t := &txs[i]
		var id groupID
		for _, k := range keys {
			switch k {
			case KeyYear:
				id.year = t.Date.UTC().Year()
			case KeyMonth:
				id.month = int(t.Date.UTC().Month())
			case KeyType:
				id.typ = t.Type
			case KeyCategory:
				id.category = t.Category
			case KeyStatus:
				id.status = t.Status
			}
		}
		row, ok := buckets[id]
		if !ok {
			row = &GroupRow{
				Year:     id.year,
				Month:    id.month,
				Type:     id.typ,
				Category: id.category,
				Status:   id.status,
				Total:    decimal.Zero,
			}
			buckets[id] = row
			order = append(order, id)
		}
		row.Total = row.Total.Add(t.Amount)
		row.Count++
	}

	out := make([]GroupRow, 0, len(order))
	for _, id := range order {
		out = append(out, *buckets[id])
	}
	SortGroupRows(out)
	return out
}

// SortGroupRows orders rows by year, month, type, category and status.
func SortGroupRows(rows []GroupRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.Month != b.Month {
			return a.Month < b.Month
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.Status < b.Status
	})
}
