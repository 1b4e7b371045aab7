package query

import (
	"math"
	"sort"
	"strings"

	"github.com/boddenberg/finance-dashboard-api/internal/domain"
)

const (
	DefaultLimit     = 10
	MaxLimit         = 100
	DefaultSortField = "date"
)

// Order is a sort direction.
type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

// sortable lists the attributes a caller may order by.
var sortable = map[string]bool{
	"date":        true,
	"amount":      true,
	"type":        true,
	"category":    true,
	"status":      true,
	"description": true,
	"createdAt":   true,
	"updatedAt":   true,
}

// SortableFields returns the allowed sort field names.
func SortableFields() []string {
	out := make([]string, 0, len(sortable))
	for f := range sortable {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Page holds normalized fetch parameters. A zero Limit means unbounded.
type Page struct {
	Page      int
	Limit     int
	Offset    int
	SortField string
	Order     Order
}

// Unbounded returns fetch parameters for a full, date-descending read.
func Unbounded() Page {
	return Page{Page: 1, SortField: DefaultSortField, Order: Desc}
}

// Paginate clamps page and limit and validates the sort field.
func Paginate(page, limit int, sortField, sortOrder string) (Page, error) {
	if page < 1 {
		page = 1
	}
	switch {
	case limit == 0:
		limit = DefaultLimit
	case limit < 1:
		limit = 1
	case limit > MaxLimit:
		limit = MaxLimit
	}
	// Keep (page-1)*limit within int.
	if maxPage := math.MaxInt / limit; page > maxPage {
		page = maxPage
	}

	field := strings.TrimSpace(sortField)
	if field == "" {
		field = DefaultSortField
	}
	if !sortable[field] {
		return Page{}, &domain.ErrInvalidQuery{Reason: "cannot sort by '" + field + "'"}
	}

	order := Desc
	if strings.EqualFold(strings.TrimSpace(sortOrder), string(Asc)) {
		order = Asc
	}

	return Page{
		Page:      page,
		Limit:     limit,
		Offset:    (page - 1) * limit,
		SortField: field,
		Order:     order,
	}, nil
}

// NewPageInfo computes the list metadata for total matching rows.
func NewPageInfo(total int, p Page) domain.PageInfo {
	pages := 0
	if total > 0 && p.Limit > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return domain.PageInfo{
		Total:       total,
		Page:        p.Page,
		Limit:       p.Limit,
		Pages:       pages,
		HasNextPage: p.Page < pages,
		HasPrevPage: p.Page > 1,
	}
}

// SortTransactions orders txs in place by p's field and direction, with id
// ascending as the tie-breaker.
func SortTransactions(txs []domain.Transaction, p Page) {
	field := p.SortField
	if field == "" {
		field = DefaultSortField
	}
	sort.SliceStable(txs, func(i, j int) bool {
		c := compareField(&txs[i], &txs[j], field)
		if c == 0 {
			return txs[i].ID < txs[j].ID
		}
		if p.Order == Asc {
			return c < 0
		}
		return c > 0
	})
}

// Window returns the page slice of an already sorted result.
func Window(txs []domain.Transaction, p Page) []domain.Transaction {
	if p.Offset < 0 || p.Offset >= len(txs) {
		return []domain.Transaction{}
	}
	end := len(txs)
	if p.Limit > 0 && p.Offset+p.Limit < end {
		end = p.Offset + p.Limit
	}
	return txs[p.Offset:end]
}

func compareField(a, b *domain.Transaction, field string) int {
	switch field {
	case "amount":
		return a.Amount.Cmp(b.Amount)
	case "type":
		return strings.Compare(string(a.Type), string(b.Type))
	case "category":
		return strings.Compare(a.Category, b.Category)
	case "status":
		return strings.Compare(string(a.Status), string(b.Status))
	case "description":
		return strings.Compare(a.Description, b.Description)
	case "createdAt":
		return a.CreatedAt.Compare(b.CreatedAt)
	case "updatedAt":
		return a.UpdatedAt.Compare(b.UpdatedAt)
	default:
		return a.Date.Compare(b.Date)
	}
}
