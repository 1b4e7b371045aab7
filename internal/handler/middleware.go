package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/boddenberg/finance-dashboard-api/internal/domain"
	"github.com/boddenberg/finance-dashboard-api/internal/infra/observability"
	"github.com/boddenberg/finance-dashboard-api/internal/service"

	"go.uber.org/zap"
)

type contextKey string

const identityKey contextKey = "identity"

// JWTAuthMiddleware validates Bearer tokens and injects the caller's
// identity into the context. Rejected requests never reach a store.
func JWTAuthMiddleware(authSvc *service.AuthService, metrics *observability.Metrics, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reject := func(reason, msg string, fields ...zap.Field) {
				if metrics != nil {
					metrics.IncrAuthFailure(reason)
				}
				logger.Warn("auth: "+reason, append([]zap.Field{
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				}, fields...)...)
				writeError(w, http.StatusUnauthorized, msg)
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				reject("missing_token", "Authentication required")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
				reject("malformed_token", "Authentication required")
				return
			}

			claims, err := authSvc.ValidateAccessToken(strings.TrimSpace(parts[1]))
			if err != nil {
				reject("invalid_token", "Invalid or expired token", zap.Error(err))
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, claims.Identity())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects authenticated callers whose role is not in roles.
// It must run after JWTAuthMiddleware.
func RequireRole(logger *zap.Logger, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if !id.HasRole(roles...) {
				logger.Warn("auth: insufficient role",
					zap.String("user_id", id.UserID),
					zap.String("role", id.Role),
					zap.String("path", r.URL.Path),
				)
				writeError(w, http.StatusForbidden, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IdentityFromContext extracts the authenticated identity from context.
func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	v, ok := ctx.Value(identityKey).(domain.Identity)
	return v, ok
}
