package repository

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"thinqscribe-payments/internal/domain"
)

type APITokenRepository struct {
	db *sql.DB
}

func NewAPITokenRepository(db *sql.DB) *APITokenRepository {
	return &APITokenRepository{db: db}
}

// HashToken is the at-rest form of a bearer token.
func HashToken(plain string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(plain)))
	return hex.EncodeToString(sum[:])
}

func (r *APITokenRepository) FindByPlainToken(ctx context.Context, plainToken string) (*domain.APIToken, error) {
	plainToken = strings.TrimSpace(plainToken)
	if plainToken == "" {
		return nil, errors.New("empty token")
	}

	const query = `
		SELECT t.id, t.token_hash, t.user_id, u.role, t.expires_at
		FROM api_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.token_hash = $1
		  AND (t.expires_at IS NULL OR t.expires_at > $2)
		LIMIT 1
	`

	var (
		tok       domain.APIToken
		expiresAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, HashToken(plainToken), time.Now()).Scan(
		&tok.ID,
		&tok.TokenHash,
		&tok.UserID,
		&tok.Role,
		&expiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		tok.ExpiresAt = &expiresAt.Time
	}
	return &tok, nil
}
