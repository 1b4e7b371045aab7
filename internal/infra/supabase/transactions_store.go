package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/boddenberg/finance-dashboard-api/internal/domain"
	"github.com/boddenberg/finance-dashboard-api/internal/query"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// TransactionStore implementation via PostgREST
// ============================================================

const txTable = "transactions"

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

// txRow maps the transactions table columns.
type txRow struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Date        time.Time `json:"date"`
	AmountCents int64     `json:"amount_cents"`
	Type        string    `json:"type"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toRow(t *domain.Transaction) txRow {
	return txRow{
		ID:          t.ID,
		UserID:      t.UserID,
		Date:        t.Date.UTC(),
		AmountCents: t.Amount.Shift(2).Round(0).IntPart(),
		Type:        string(t.Type),
		Category:    t.Category,
		Description: t.Description,
		Status:      string(t.Status),
		CreatedAt:   t.CreatedAt.UTC(),
		UpdatedAt:   t.UpdatedAt.UTC(),
	}
}

func (r txRow) toDomain() domain.Transaction {
	return domain.Transaction{
		ID:          r.ID,
		UserID:      r.UserID,
		Date:        r.Date.UTC(),
		Amount:      decimal.New(r.AmountCents, -2),
		Type:        domain.TransactionType(r.Type),
		Category:    r.Category,
		Description: r.Description,
		Status:      domain.TransactionStatus(r.Status),
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func decodeRows(body []byte) ([]domain.Transaction, error) {
	out := make([]domain.Transaction, 0)
	if len(body) == 0 {
		return out, nil
	}
	var rows []txRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode transactions: %w", err)
	}
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// filterParams renders a predicate as PostgREST horizontal filters.
func filterParams(p query.Predicate) url.Values {
	v := url.Values{}
	v.Set("user_id", "eq."+p.Owner)
	if p.From != nil {
		v.Add("date", "gte."+formatTime(*p.From))
	}
	if p.To != nil {
		v.Add("date", "lte."+formatTime(*p.To))
	}
	if p.MinAmount != nil {
		v.Add("amount_cents", "gte."+strconv.FormatInt(p.MinAmount.Shift(2).Ceil().IntPart(), 10))
	}
	if p.MaxAmount != nil {
		v.Add("amount_cents", "lte."+strconv.FormatInt(p.MaxAmount.Shift(2).Floor().IntPart(), 10))
	}
	if p.Type != "" {
		v.Set("type", "eq."+string(p.Type))
	}
	if p.Category != "" {
		v.Set("category", "eq."+p.Category)
	}
	if p.Status != "" {
		v.Set("status", "eq."+string(p.Status))
	}
	if p.Search != nil {
		pattern := quote("*" + p.Search.Term + "*")
		or := []string{
			"description.ilike." + pattern,
			"category.ilike." + pattern,
			"status.ilike." + pattern,
		}
		if p.Search.Amount != nil {
			if cents := p.Search.Amount.Shift(2); cents.Equal(cents.Truncate(0)) {
				or = append(or, "amount_cents.eq."+cents.String())
			}
		}
		v.Set("or", "("+strings.Join(or, ",")+")")
	}
	return v
}

func orderParam(pg query.Page) string {
	col, ok := sortColumns[pg.SortField]
	if !ok {
		col = "date"
	}
	dir := "desc"
	if pg.Order == query.Asc {
		dir = "asc"
	}
	return col + "." + dir + ",id.asc"
}

func (c *Client) Insert(ctx context.Context, t *domain.Transaction) error {
	ctx, span := tracer.Start(ctx, "Supabase.InsertTransaction")
	defer span.End()

	if _, err := c.doPost(ctx, txTable, toRow(t)); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// InsertMany posts txs as one bulk insert, which PostgREST runs in a
// single statement.
func (c *Client) InsertMany(ctx context.Context, txs []domain.Transaction) error {
	ctx, span := tracer.Start(ctx, "Supabase.InsertTransactions")
	defer span.End()
	span.SetAttributes(attribute.Int("rows", len(txs)))

	if len(txs) == 0 {
		return nil
	}
	rows := make([]txRow, 0, len(txs))
	for i := range txs {
		rows = append(rows, toRow(&txs[i]))
	}
	if _, err := c.doPost(ctx, txTable, rows); err != nil {
		return fmt.Errorf("insert transactions: %w", err)
	}
	return nil
}

func (c *Client) FindOne(ctx context.Context, owner, id string) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Supabase.FindTransaction")
	defer span.End()

	v := url.Values{}
	v.Set("id", "eq."+id)
	v.Set("user_id", "eq."+owner)
	v.Set("limit", "1")

	body, err := c.doRequest(ctx, http.MethodGet, tablePath(txTable, v))
	if err != nil {
		return nil, fmt.Errorf("find transaction: %w", err)
	}
	txs, err := decodeRows(body)
	if err != nil || len(txs) == 0 {
		return nil, err
	}
	return &txs[0], nil
}

func (c *Client) Find(ctx context.Context, pred query.Predicate, page query.Page) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Supabase.FindTransactions")
	defer span.End()

	v := filterParams(pred)
	v.Set("order", orderParam(page))
	if page.Limit > 0 {
		v.Set("limit", strconv.Itoa(page.Limit))
		v.Set("offset", strconv.Itoa(page.Offset))
	}

	body, err := c.doRequest(ctx, http.MethodGet, tablePath(txTable, v))
	if err != nil {
		return nil, fmt.Errorf("find transactions: %w", err)
	}
	return decodeRows(body)
}

func (c *Client) Count(ctx context.Context, pred query.Predicate) (int, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CountTransactions")
	defer span.End()

	n, err := c.doCount(ctx, tablePath(txTable, filterParams(pred)))
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

// UpdateOne issues one PATCH filtered by id and owner; PostgREST returns
// the updated representation.
func (c *Client) UpdateOne(ctx context.Context, owner, id string, patch domain.TransactionPatch) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateTransaction")
	defer span.End()

	data := map[string]any{"updated_at": formatTime(patch.UpdatedAt)}
	if patch.Amount != nil {
		data["amount_cents"] = patch.Amount.Shift(2).Round(0).IntPart()
	}
	if patch.Type != nil {
		data["type"] = string(*patch.Type)
	}
	if patch.Category != nil {
		data["category"] = *patch.Category
	}
	if patch.Date != nil {
		data["date"] = formatTime(*patch.Date)
	}
	if patch.Status != nil {
		data["status"] = string(*patch.Status)
	}
	if patch.Description != nil {
		data["description"] = *patch.Description
	}

	v := url.Values{}
	v.Set("id", "eq."+id)
	v.Set("user_id", "eq."+owner)

	body, err := c.doPatch(ctx, tablePath(txTable, v), data)
	if err != nil {
		return nil, fmt.Errorf("update transaction: %w", err)
	}
	txs, err := decodeRows(body)
	if err != nil || len(txs) == 0 {
		return nil, err
	}
	return &txs[0], nil
}

func (c *Client) DeleteOne(ctx context.Context, owner, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteTransaction")
	defer span.End()

	v := url.Values{}
	v.Set("id", "eq."+id)
	v.Set("user_id", "eq."+owner)

	body, err := c.doDelete(ctx, tablePath(txTable, v))
	if err != nil {
		return false, fmt.Errorf("delete transaction: %w", err)
	}
	txs, err := decodeRows(body)
	if err != nil {
		return false, err
	}
	return len(txs) > 0, nil
}

func (c *Client) DistinctCategories(ctx context.Context, owner string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Supabase.DistinctCategories")
	defer span.End()

	v := url.Values{}
	v.Set("select", "category")
	v.Set("user_id", "eq."+owner)
	v.Set("order", "category.asc")

	body, err := c.doRequest(ctx, http.MethodGet, tablePath(txTable, v))
	if err != nil {
		return nil, fmt.Errorf("distinct categories: %w", err)
	}

	var rows []struct {
		Category string `json:"category"`
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("decode categories: %w", err)
		}
	}

	out := make([]string, 0)
	for i, r := range rows {
		if i > 0 && rows[i-1].Category == r.Category {
			continue
		}
		out = append(out, r.Category)
	}
	return out, nil
}

// Group fetches the matching rows and buckets them locally; PostgREST has
// no GROUP BY without a database view.
func (c *Client) Group(ctx context.Context, pred query.Predicate, keys []query.GroupKey) ([]query.GroupRow, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GroupTransactions")
	defer span.End()

	txs, err := c.Find(ctx, pred, query.Unbounded())
	if err != nil {
		return nil, err
	}
	return query.GroupRows(txs, keys), nil
}
