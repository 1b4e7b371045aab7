package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/boddenberg/finance-dashboard-api/internal/domain"
)

// ============================================================
// UserStore implementation via PostgREST
// ============================================================

const usersTable = "users"

type userRow struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	Role         string    `json:"role"`
	Onboarded    bool      `json:"onboarded"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (r userRow) toDomain() *domain.User {
	return &domain.User{
		ID:           r.ID,
		Username:     r.Username,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Role:         r.Role,
		Onboarded:    r.Onboarded,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

func decodeUser(body []byte) (*domain.User, error) {
	if len(body) == 0 {
		return nil, nil
	}
	var rows []userRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].toDomain(), nil
}

func (c *Client) CreateUser(ctx context.Context, u *domain.User) error {
	ctx, span := tracer.Start(ctx, "Supabase.CreateUser")
	defer span.End()

	row := userRow{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         u.Role,
		Onboarded:    u.Onboarded,
		CreatedAt:    u.CreatedAt.UTC(),
		UpdatedAt:    u.UpdatedAt.UTC(),
	}
	_, err := c.doPost(ctx, usersTable, row)
	if err == nil {
		return nil
	}

	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
		switch {
		case strings.Contains(apiErr.Body, "email"):
			return &domain.ErrConflict{Message: "Email already registered"}
		case strings.Contains(apiErr.Body, "username"):
			return &domain.ErrConflict{Message: "Username already taken"}
		}
		return &domain.ErrConflict{Message: "User already exists"}
	}
	return fmt.Errorf("insert user: %w", err)
}

func (c *Client) FindUserByEmailOrUsername(ctx context.Context, email, username string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Supabase.FindUser")
	defer span.End()

	var conds []string
	if email != "" {
		conds = append(conds, "email.eq."+quote(strings.ToLower(email)))
	}
	if username != "" {
		conds = append(conds, "username.eq."+quote(username))
	}
	if len(conds) == 0 {
		return nil, nil
	}

	v := url.Values{}
	v.Set("or", "("+strings.Join(conds, ",")+")")
	v.Set("limit", "1")

	body, err := c.doRequest(ctx, http.MethodGet, tablePath(usersTable, v))
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return decodeUser(body)
}

func (c *Client) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetUserByID")
	defer span.End()

	v := url.Values{}
	v.Set("id", "eq."+id)
	v.Set("limit", "1")

	body, err := c.doRequest(ctx, http.MethodGet, tablePath(usersTable, v))
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return decodeUser(body)
}

func (c *Client) MarkOnboarded(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Supabase.MarkOnboarded")
	defer span.End()

	v := url.Values{}
	v.Set("id", "eq."+id)

	body, err := c.doPatch(ctx, tablePath(usersTable, v), map[string]any{"onboarded": true})
	if err != nil {
		return fmt.Errorf("mark onboarded: %w", err)
	}
	u, err := decodeUser(body)
	if err != nil {
		return err
	}
	if u == nil {
		return &domain.ErrNotFound{Resource: "user", ID: id}
	}
	return nil
}
