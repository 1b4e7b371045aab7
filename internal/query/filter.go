// Package query turns boundary-validated query specifications into
// store-evaluable predicates, bounded fetch parameters and group keys.
package query

import (
	"math"
	"strings"
	"time"

	"github.com/boddenberg/finance-dashboard-api/internal/domain"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Search is the free-text OR-group of a predicate.
type Search struct {
	// Term is the trimmed, lower-cased search text.
	Term string
	// Amount is set when Term parses as a number.
	Amount *decimal.Decimal
}

// Predicate is an owner-scoped conjunction of filters. Nil/empty fields are
// inactive. Search, when present, is a disjunction ANDed with the rest.
type Predicate struct {
	Owner     string
	From      *time.Time
	To        *time.Time
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
	Type      domain.TransactionType
	Category  string
	Status    domain.TransactionStatus
	Search    *Search
}

// Build validates the filter half of spec and returns its predicate.
func Build(spec domain.QuerySpec) (Predicate, error) {
	owner := strings.TrimSpace(spec.Owner)
	if owner == "" {
		return Predicate{}, &domain.ErrInvalidQuery{Reason: "owner is required"}
	}
	p := Predicate{Owner: owner, Category: strings.TrimSpace(spec.Category)}

	var err error
	if p.From, err = parseBound("startDate", spec.StartDate, false); err != nil {
		return Predicate{}, err
	}
	if p.To, err = parseBound("endDate", spec.EndDate, true); err != nil {
		return Predicate{}, err
	}
	if p.MinAmount, err = amountBound("minAmount", spec.MinAmount); err != nil {
		return Predicate{}, err
	}
	if p.MaxAmount, err = amountBound("maxAmount", spec.MaxAmount); err != nil {
		return Predicate{}, err
	}

	if t := strings.TrimSpace(spec.Type); t != "" {
		p.Type = domain.TransactionType(strings.ToLower(t))
		if !p.Type.Valid() {
			return Predicate{}, &domain.ErrInvalidFilter{Field: "type", Value: spec.Type, Reason: "must be income or expense"}
		}
	}
	if s := strings.TrimSpace(spec.Status); s != "" {
		p.Status = domain.TransactionStatus(strings.ToLower(s))
		if !p.Status.Valid() {
			return Predicate{}, &domain.ErrInvalidFilter{Field: "status", Value: spec.Status, Reason: "must be completed, pending or cancelled"}
		}
	}

	p.Search = NewSearch(spec.Search)
	return p, nil
}

// NewSearch returns nil for a blank term.
func NewSearch(raw string) *Search {
	term := strings.TrimSpace(raw)
	if term == "" {
		return nil
	}
	s := &Search{Term: strings.ToLower(term)}
	if d, err := decimal.NewFromString(term); err == nil && d.Abs().LessThanOrEqual(domain.MaxAmount) {
		s.Amount = &d
	}
	return s
}

// ParseDate accepts YYYY-MM-DD or RFC3339. Date-only values are midnight UTC.
func ParseDate(raw string) (time.Time, bool, error) {
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t.UTC(), true, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return t.UTC(), false, nil
}

// parseBound parses an inclusive date bound. A date-only upper bound covers
// the whole day.
func parseBound(field, raw string, upper bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, dateOnly, err := ParseDate(raw)
	if err != nil {
		return nil, &domain.ErrInvalidFilter{Field: field, Value: raw, Reason: "expected YYYY-MM-DD or RFC3339"}
	}
	if upper && dateOnly {
		t = t.Add(24*time.Hour - time.Millisecond)
	}
	return &t, nil
}

func amountBound(field string, v *float64) (*decimal.Decimal, error) {
	if v == nil {
		return nil, nil
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil, &domain.ErrInvalidFilter{Field: field, Value: "NaN", Reason: "must be a finite number"}
	}
	d := decimal.NewFromFloat(*v)
	if d.Abs().GreaterThan(domain.MaxAmount) {
		return nil, &domain.ErrInvalidFilter{
			Field:  field,
			Value:  d.String(),
			Reason: "magnitude must not exceed " + domain.MaxAmount.String(),
		}
	}
	return &d, nil
}

// Match evaluates the predicate against t in memory.
func (p Predicate) Match(t *domain.Transaction) bool {
	if t.UserID != p.Owner {
		return false
	}
	if p.From != nil && t.Date.Before(*p.From) {
		return false
	}
	if p.To != nil && t.Date.After(*p.To) {
		return false
	}
	if p.MinAmount != nil && t.Amount.LessThan(*p.MinAmount) {
		return false
	}
	if p.MaxAmount != nil && t.Amount.GreaterThan(*p.MaxAmount) {
		return false
	}
	if p.Type != "" && t.Type != p.Type {
		return false
	}
	if p.Category != "" && t.Category != p.Category {
		return false
	}
	if p.Status != "" && t.Status != p.Status {
		return false
	}
	if p.Search != nil && !p.Search.Match(t) {
		return false
	}
	return true
}

// Match reports whether any searchable attribute of t satisfies the term.
func (s *Search) Match(t *domain.Transaction) bool {
	if strings.Contains(strings.ToLower(t.Description), s.Term) ||
		strings.Contains(strings.ToLower(t.Category), s.Term) ||
		strings.Contains(string(t.Status), s.Term) {
		return true
	}
	return s.Amount != nil && t.Amount.Equal(*s.Amount)
}
