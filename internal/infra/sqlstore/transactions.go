package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/boddenberg/finance-dashboard-api/internal/domain"
	"github.com/boddenberg/finance-dashboard-api/internal/query"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const txColumns = "id, user_id, date, amount_cents, type, category, description, status, created_at, updated_at"

const insertTxSQL = "INSERT INTO transactions (" + txColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		t     domain.Transaction
		cents int64
		typ   string
		stat  string
	)
	err := row.Scan(&t.ID, &t.UserID, timeValue{&t.Date}, &cents, &typ, &t.Category,
		&t.Description, &stat, timeValue{&t.CreatedAt}, timeValue{&t.UpdatedAt})
	if err != nil {
		return nil, err
	}
	t.Amount = fromCents(cents)
	t.Type = domain.TransactionType(typ)
	t.Status = domain.TransactionStatus(stat)
	return &t, nil
}

func (s *Store) txArgs(t *domain.Transaction) ([]any, error) {
	cents, err := toCents(t.Amount)
	if err != nil {
		return nil, err
	}
	return []any{
		t.ID, t.UserID, s.dialect.timeArg(t.Date), cents, string(t.Type),
		t.Category, t.Description, string(t.Status),
		s.dialect.timeArg(t.CreatedAt), s.dialect.timeArg(t.UpdatedAt),
	}, nil
}

func (s *Store) Insert(ctx context.Context, t *domain.Transaction) error {
	ctx, span := tracer.Start(ctx, "sqlstore.Insert")
	defer span.End()

	args, err := s.txArgs(t)
	if err != nil {
		return err
	}
	if _, err := s.exec(ctx, insertTxSQL, args...); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// InsertMany writes txs in one database transaction.
func (s *Store) InsertMany(ctx context.Context, txs []domain.Transaction) error {
	ctx, span := tracer.Start(ctx, "sqlstore.InsertMany")
	defer span.End()
	span.SetAttributes(attribute.Int("rows", len(txs)))

	if len(txs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert batch: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, s.dialect.rebind(insertTxSQL))
	if err != nil {
		return fmt.Errorf("prepare insert batch: %w", err)
	}
	defer stmt.Close()

	for i := range txs {
		args, err := s.txArgs(&txs[i])
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert transaction %s: %w", txs[i].ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert batch: %w", err)
	}
	return nil
}

func (s *Store) FindOne(ctx context.Context, owner, id string) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.FindOne")
	defer span.End()

	row := s.queryRow(ctx, "SELECT "+txColumns+" FROM transactions WHERE id = ? AND user_id = ?", id, owner)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find transaction: %w", err)
	}
	return t, nil
}

func (s *Store) Find(ctx context.Context, pred query.Predicate, page query.Page) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.Find")
	defer span.End()

	where, args, err := s.dialect.where(pred)
	if err != nil {
		return nil, err
	}
	q := "SELECT " + txColumns + " FROM transactions WHERE " + where + " ORDER BY " + orderBy(page)
	if page.Limit > 0 {
		q += " LIMIT ? OFFSET ?"
		args = append(args, page.Limit, page.Offset)
	}

	rows, err := s.queryRows(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("find transactions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context, pred query.Predicate) (int, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.Count")
	defer span.End()

	where, args, err := s.dialect.where(pred)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.queryRow(ctx, "SELECT COUNT(*) FROM transactions WHERE "+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

// UpdateOne issues a single UPDATE ... RETURNING so the write and the read
// of the new state are one statement.
func (s *Store) UpdateOne(ctx context.Context, owner, id string, patch domain.TransactionPatch) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.UpdateOne")
	defer span.End()

	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if patch.Amount != nil {
		cents, err := toCents(*patch.Amount)
		if err != nil {
			return nil, err
		}
		set("amount_cents", cents)
	}
	if patch.Type != nil {
		set("type", string(*patch.Type))
	}
	if patch.Category != nil {
		set("category", *patch.Category)
	}
	if patch.Date != nil {
		set("date", s.dialect.timeArg(*patch.Date))
	}
	if patch.Status != nil {
		set("status", string(*patch.Status))
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	set("updated_at", s.dialect.timeArg(patch.UpdatedAt))
	args = append(args, id, owner)

	q := "UPDATE transactions SET " + strings.Join(sets, ", ") +
		" WHERE id = ? AND user_id = ? RETURNING " + txColumns
	t, err := scanTransaction(s.queryRow(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update transaction: %w", err)
	}
	return t, nil
}

func (s *Store) DeleteOne(ctx context.Context, owner, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.DeleteOne")
	defer span.End()

	res, err := s.exec(ctx, "DELETE FROM transactions WHERE id = ? AND user_id = ?", id, owner)
	if err != nil {
		return false, fmt.Errorf("delete transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete transaction: %w", err)
	}
	return n > 0, nil
}

func (s *Store) DistinctCategories(ctx context.Context, owner string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.DistinctCategories")
	defer span.End()

	rows, err := s.queryRows(ctx, "SELECT DISTINCT category FROM transactions WHERE user_id = ? ORDER BY category", owner)
	if err != nil {
		return nil, fmt.Errorf("distinct categories: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Group runs one GROUP BY over the predicate. Rows are returned in key order.
func (s *Store) Group(ctx context.Context, pred query.Predicate, keys []query.GroupKey) ([]query.GroupRow, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.Group")
	defer span.End()

	exprs := make([]string, 0, len(keys))
	for _, k := range keys {
		e, err := s.groupExpr(k)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}

	where, args, err := s.dialect.where(pred)
	if err != nil {
		return nil, err
	}
	selectList := append(append([]string{}, exprs...), "SUM(amount_cents)", "COUNT(*)")
	q := "SELECT " + strings.Join(selectList, ", ") + " FROM transactions WHERE " + where
	if len(exprs) > 0 {
		q += " GROUP BY " + strings.Join(exprs, ", ")
	}

	rows, err := s.queryRows(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("group transactions: %w", err)
	}
	defer rows.Close()

	out := make([]query.GroupRow, 0)
	for rows.Next() {
		var (
			row   query.GroupRow
			typ   string
			stat  string
			total sql.NullString
		)
		dest := make([]any, 0, len(keys)+2)
		for _, k := range keys {
			switch k {
			case query.KeyYear:
				dest = append(dest, &row.Year)
			case query.KeyMonth:
				dest = append(dest, &row.Month)
			case query.KeyType:
				dest = append(dest, &typ)
			case query.KeyCategory:
				dest = append(dest, &row.Category)
			case query.KeyStatus:
				dest = append(dest, &stat)
			}
		}
		dest = append(dest, &total, &row.Count)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan group row: %w", err)
		}
		if row.Count == 0 {
			continue
		}
		cents, err := decimal.NewFromString(total.String)
		if err != nil {
			return nil, fmt.Errorf("parse group total %q: %w", total.String, err)
		}
		row.Total = cents.Shift(-2)
		row.Type = domain.TransactionType(typ)
		row.Status = domain.TransactionStatus(stat)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group rows: %w", err)
	}

	query.SortGroupRows(out)
	return out, nil
}

func (s *Store) groupExpr(k query.GroupKey) (string, error) {
	switch k {
	case query.KeyYear:
		return s.dialect.yearExpr("date"), nil
	case query.KeyMonth:
		return s.dialect.monthExpr("date"), nil
	case query.KeyType:
		return "type", nil
	case query.KeyCategory:
		return "category", nil
	case query.KeyStatus:
		return "status", nil
	}
	return "", &domain.ErrInvalidQuery{Reason: fmt.Sprintf("unknown group key %q", k)}
}
