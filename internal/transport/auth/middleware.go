package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"thinqscribe-payments/internal/domain"
)

type ctxKey string

const (
	UserIDKey ctxKey = "userID"
	RoleKey   ctxKey = "role"
)

type TokenFinder interface {
	FindByPlainToken(ctx context.Context, plainToken string) (*domain.APIToken, error)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// TokenMiddleware authenticates requests with an API token taken from the
// Authorization header or, for WebSocket upgrades, the token query parameter.
func TokenMiddleware(tokens TokenFinder, log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var tok *domain.APIToken

			for _, plain := range []string{bearerToken(r), r.URL.Query().Get("token")} {
				if plain == "" {
					continue
				}
				t, err := tokens.FindByPlainToken(r.Context(), plain)
				if err != nil {
					if !errors.Is(err, domain.ErrNotFound) {
						log.Warn("token lookup failed", zap.Error(err))
					}
					continue
				}
				tok = t
				break
			}

			if tok == nil {
				log.Debug("unauthenticated request", zap.String("method", r.Method), zap.String("path", r.URL.Path))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if tok.Expired(time.Now()) {
				http.Error(w, "Token expired", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, tok.UserID)
			ctx = context.WithValue(ctx, RoleKey, domain.Role(tok.Role))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetUserID(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value(UserIDKey).(int64)
	if !ok {
		return 0, errors.New("userID not found in context")
	}
	return userID, nil
}

func GetRole(ctx context.Context) domain.Role {
	role, _ := ctx.Value(RoleKey).(domain.Role)
	return role
}

// WithUser is used by tests and internal callers to fake an authenticated request.
func WithUser(ctx context.Context, userID int64, role domain.Role) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, RoleKey, role)
}
