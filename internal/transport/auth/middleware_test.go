package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thinqscribe-payments/internal/domain"
)

type fakeTokens map[string]*domain.APIToken

func (f fakeTokens) FindByPlainToken(ctx context.Context, plain string) (*domain.APIToken, error) {
	if plain == "broken" {
		return nil, errors.New("db down")
	}
	t, ok := f[plain]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return t, nil
}

func TestTokenMiddleware(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	tokens := fakeTokens{
		"student": {UserID: 10, Role: "student"},
		"expired": {UserID: 11, Role: "writer", ExpiresAt: &past},
	}

	var (
		gotUser int64
		gotRole domain.Role
	)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		gotUser, err = GetUserID(r.Context())
		require.NoError(t, err)
		gotRole = GetRole(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := TokenMiddleware(tokens, nil)(next)

	tests := []struct {
		name   string
		header string
		query  string
		code   int
	}{
		{name: "bearer header", header: "Bearer student", code: http.StatusNoContent},
		{name: "query token", query: "?token=student", code: http.StatusNoContent},
		{name: "bad header falls back to query", header: "Bearer nope", query: "?token=student", code: http.StatusNoContent},
		{name: "lookup error", header: "Bearer broken", code: http.StatusUnauthorized},
		{name: "unknown", header: "Bearer nope", code: http.StatusUnauthorized},
		{name: "missing", code: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic student", code: http.StatusUnauthorized},
		{name: "expired", header: "Bearer expired", code: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotUser, gotRole = 0, ""
			req := httptest.NewRequest(http.MethodGet, "/ws"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.code, rec.Code)
			if tt.code == http.StatusNoContent {
				assert.Equal(t, int64(10), gotUser)
				assert.Equal(t, domain.RoleStudent, gotRole)
			} else {
				assert.Zero(t, gotUser)
			}
		})
	}
}

func TestWithUser(t *testing.T) {
	ctx := WithUser(context.Background(), 42, domain.RoleWriter)

	id, err := GetUserID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, domain.RoleWriter, GetRole(ctx))

	_, err = GetUserID(context.Background())
	assert.Error(t, err)
	assert.Empty(t, GetRole(context.Background()))
}
