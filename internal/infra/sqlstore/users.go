package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/boddenberg/finance-dashboard-api/internal/domain"
)

const userColumns = "id, username, email, password_hash, role, onboarded, created_at, updated_at"

func scanUser(row rowScanner) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.Onboarded,
		timeValue{&u.CreatedAt}, timeValue{&u.UpdatedAt})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	ctx, span := tracer.Start(ctx, "sqlstore.CreateUser")
	defer span.End()

	_, err := s.exec(ctx,
		"INSERT INTO users ("+userColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		u.ID, u.Username, u.Email, u.PasswordHash, u.Role, s.dialect.boolArg(u.Onboarded),
		s.dialect.timeArg(u.CreatedAt), s.dialect.timeArg(u.UpdatedAt),
	)
	if err == nil {
		return nil
	}
	if dup, col := s.dialect.uniqueViolation(err); dup {
		switch col {
		case "email":
			return &domain.ErrConflict{Message: "Email already registered"}
		case "username":
			return &domain.ErrConflict{Message: "Username already taken"}
		}
		return &domain.ErrConflict{Message: "User already exists"}
	}
	return fmt.Errorf("insert user: %w", err)
}

func (s *Store) FindUserByEmailOrUsername(ctx context.Context, email, username string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.FindUserByEmailOrUsername")
	defer span.End()

	var (
		conds []string
		args  []any
	)
	if email != "" {
		conds = append(conds, "LOWER(email) = LOWER(?)")
		args = append(args, email)
	}
	if username != "" {
		conds = append(conds, "username = ?")
		args = append(args, username)
	}
	if len(conds) == 0 {
		return nil, nil
	}

	row := s.queryRow(ctx, "SELECT "+userColumns+" FROM users WHERE "+strings.Join(conds, " OR ")+" LIMIT 1", args...)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.GetUserByID")
	defer span.End()

	u, err := scanUser(s.queryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *Store) MarkOnboarded(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "sqlstore.MarkOnboarded")
	defer span.End()

	res, err := s.exec(ctx, "UPDATE users SET onboarded = ? WHERE id = ?", s.dialect.boolArg(true), id)
	if err != nil {
		return fmt.Errorf("mark onboarded: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &domain.ErrNotFound{Resource: "user", ID: id}
	}
	return nil
}
