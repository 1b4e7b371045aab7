package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/boddenberg/finance-dashboard-api/internal/domain"
	"github.com/boddenberg/finance-dashboard-api/internal/infra/observability"
	"github.com/boddenberg/finance-dashboard-api/internal/port"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var authTracer = otel.Tracer("service/auth")

const (
	bcryptCost        = 12
	minPasswordLength = 6
	minUsernameLength = 3
	maxUsernameLength = 30
	tokenIssuer       = "findash-api"
)

// Onboarder provisions first-use data for a new account.
type Onboarder interface {
	EnsureSampleData(ctx context.Context, userID string) error
}

// AuthService handles registration, login and access-token verification.
type AuthService struct {
	store     port.UserStore
	onboarder Onboarder
	jwtSecret []byte
	accessTTL time.Duration
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewAuthService creates a new auth service. onboarder may be nil.
func NewAuthService(store port.UserStore, onboarder Onboarder, jwtSecret string, accessTTL time.Duration, metrics *observability.Metrics, logger *zap.Logger) *AuthService {
	return &AuthService{
		store:     store,
		onboarder: onboarder,
		jwtSecret: []byte(jwtSecret),
		accessTTL: accessTTL,
		metrics:   metrics,
		logger:    logger,
	}
}

// ============================================================
// Register - POST /api/auth/register
// ============================================================

func (s *AuthService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.AuthResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Register")
	defer span.End()

	user, err := s.CreateUser(ctx, req, domain.RoleUser)
	if err != nil {
		return nil, err
	}

	// Sample data is provisioned here, once, and never on login.
	if s.onboarder != nil {
		if err := s.onboarder.EnsureSampleData(ctx, user.ID); err != nil {
			s.logger.Warn("onboarding failed",
				zap.String("user_id", user.ID),
				zap.Error(err),
			)
		}
	}

	token, err := s.signAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	return &domain.AuthResponse{User: domain.NewUserView(user), Token: token}, nil
}

// CreateUser validates req and stores a new account with role.
func (s *AuthService) CreateUser(ctx context.Context, req *domain.RegisterRequest, role string) (*domain.User, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.CreateUser")
	defer span.End()

	if err := validateRegistration(req); err != nil {
		return nil, err
	}
	if role != domain.RoleUser && role != domain.RoleAdmin {
		return nil, &domain.ErrValidation{Field: "role", Message: "Role must be user or admin"}
	}

	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))

	existing, err := s.store.FindUserByEmailOrUsername(ctx, email, username)
	if err != nil {
		return nil, fmt.Errorf("check existing user: %w", err)
	}
	if existing != nil {
		return nil, &domain.ErrConflict{Message: "User with this email or username already exists"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user registered",
		zap.String("user_id", user.ID),
		zap.String("username", user.Username),
		zap.String("role", role),
	)
	return user, nil
}

// ============================================================
// Login - POST /api/auth/login
// ============================================================

func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.AuthResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Login")
	defer span.End()

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, &domain.ErrValidation{Message: "Validation failed", Errors: loginErrors(email, req.Password)}
	}

	user, err := s.store.FindUserByEmailOrUsername(ctx, email, "")
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		s.metrics.IncrAuthFailure("unknown_user")
		return nil, &domain.ErrUnauthorized{Message: "Invalid credentials"}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.metrics.IncrAuthFailure("bad_password")
		s.logger.Warn("login: wrong password", zap.String("user_id", user.ID))
		return nil, &domain.ErrUnauthorized{Message: "Invalid credentials"}
	}

	token, err := s.signAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	span.SetAttributes(attribute.String("user.id", user.ID))
	s.logger.Info("user logged in", zap.String("user_id", user.ID))
	return &domain.AuthResponse{User: domain.NewUserView(user), Token: token}, nil
}

// ============================================================
// Me - GET /api/auth/me
// ============================================================

func (s *AuthService) Me(ctx context.Context, userID string) (*domain.MeResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Me")
	defer span.End()

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, &domain.ErrNotFound{Resource: "user", ID: userID}
	}
	return &domain.MeResponse{User: domain.NewUserView(user)}, nil
}

// ============================================================
// ValidateToken - used by middleware
// ============================================================

// JWTClaims represents the custom claims in access tokens.
type JWTClaims struct {
	Sub      string `json:"sub"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Type     string `json:"type"`
	jwt.RegisteredClaims
}

// Identity converts verified claims to the request identity.
func (c *JWTClaims) Identity() domain.Identity {
	return domain.Identity{UserID: c.Sub, Username: c.Username, Role: c.Role}
}

func (s *AuthService) ValidateAccessToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "Invalid or expired token"}
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "Invalid token"}
	}
	if claims.Type != "access" || claims.Sub == "" {
		return nil, &domain.ErrUnauthorized{Message: "Invalid token type"}
	}
	return claims, nil
}

// ============================================================
// Internal helpers
// ============================================================

func (s *AuthService) signAccessToken(u *domain.User) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		Sub:      u.ID,
		Username: u.Username,
		Role:     u.Role,
		Type:     "access",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			Issuer:    tokenIssuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func validateRegistration(req *domain.RegisterRequest) error {
	var errs []domain.FieldError
	fail := func(field, msg string) {
		errs = append(errs, domain.FieldError{Field: field, Message: msg})
	}

	username := strings.TrimSpace(req.Username)
	switch n := utf8.RuneCountInString(username); {
	case n == 0:
		fail("username", "Username is required")
	case n < minUsernameLength || n > maxUsernameLength:
		fail("username", fmt.Sprintf("Username must be between %d and %d characters", minUsernameLength, maxUsernameLength))
	}

	email := strings.TrimSpace(req.Email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		fail("email", "Valid email is required")
	}

	if len(req.Password) < minPasswordLength {
		fail("password", fmt.Sprintf("Password must be at least %d characters long", minPasswordLength))
	}

	if len(errs) > 0 {
		return &domain.ErrValidation{Message: "Validation failed", Errors: errs}
	}
	return nil
}

func loginErrors(email, password string) []domain.FieldError {
	var errs []domain.FieldError
	if email == "" {
		errs = append(errs, domain.FieldError{Field: "email", Message: "Email is required"})
	}
	if password == "" {
		errs = append(errs, domain.FieldError{Field: "password", Message: "Password is required"})
	}
	return errs
}
