package sqlstore

import (
	"strings"

	"github.com/boddenberg/finance-dashboard-api/internal/domain"
	"github.com/boddenberg/finance-dashboard-api/internal/query"

	"github.com/shopspring/decimal"
)

// sortColumns maps API sort fields to columns.
var sortColumns = map[string]string{
	"date":        "date",
	"amount":      "amount_cents",
	"type":        "type",
	"category":    "category",
	"status":      "status",
	"description": "description",
	"createdAt":   "created_at",
	"updatedAt":   "updated_at",
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// where renders p as a WHERE clause body with '?' placeholders.
func (d Dialect) where(p query.Predicate) (string, []any, error) {
	clauses := []string{"user_id = ?"}
	args := []any{p.Owner}

	if p.From != nil {
		clauses = append(clauses, "date >= ?")
		args = append(args, d.timeArg(*p.From))
	}
	if p.To != nil {
		clauses = append(clauses, "date <= ?")
		args = append(args, d.timeArg(*p.To))
	}
	if p.MinAmount != nil {
		c, err := centsOf(p.MinAmount.Shift(2).Ceil())
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, "amount_cents >= ?")
		args = append(args, c)
	}
	if p.MaxAmount != nil {
		c, err := centsOf(p.MaxAmount.Shift(2).Floor())
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, "amount_cents <= ?")
		args = append(args, c)
	}
	if p.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, string(p.Type))
	}
	if p.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, p.Category)
	}
	if p.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(p.Status))
	}
	if p.Search != nil {
		pattern := "%" + likeEscaper.Replace(p.Search.Term) + "%"
		or := []string{
			d.lowerExpr("description") + ` LIKE ? ESCAPE '\'`,
			d.lowerExpr("category") + ` LIKE ? ESCAPE '\'`,
			`status LIKE ? ESCAPE '\'`,
		}
		args = append(args, pattern, pattern, pattern)
		if p.Search.Amount != nil {
			shifted := p.Search.Amount.Shift(2)
			if c, err := centsOf(shifted); err == nil && shifted.Equal(shifted.Truncate(0)) {
				or = append(or, "amount_cents = ?")
				args = append(args, c)
			}
		}
		clauses = append(clauses, "("+strings.Join(or, " OR ")+")")
	}
	return strings.Join(clauses, " AND "), args, nil
}

// orderBy renders the ORDER BY body for pg. ID breaks ties.
func orderBy(pg query.Page) string {
	col, ok := sortColumns[pg.SortField]
	if !ok {
		col = "date"
	}
	dir := "DESC"
	if pg.Order == query.Asc {
		dir = "ASC"
	}
	return col + " " + dir + ", id ASC"
}

// toCents converts an amount to whole cents, rejecting values an int64
// column cannot hold.
func toCents(d decimal.Decimal) (int64, error) {
	return centsOf(d.Shift(2).Round(0))
}

func centsOf(c decimal.Decimal) (int64, error) {
	if !c.Truncate(0).BigInt().IsInt64() {
		return 0, &domain.ErrValidation{
			Field:   "amount",
			Message: "Amount " + c.Shift(-2).String() + " is out of range",
		}
	}
	return c.IntPart(), nil
}

func fromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}
