package repository

import (
	"context"
	"database/sql"
	"errors"

	"thinqscribe-payments/internal/domain"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{
		db: db,
	}
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (domain.User, error) {
	const query = `
		SELECT u.id, u.name, u.email, u.role, COALESCE(u.preferred_currency, '')
		FROM users u
		WHERE u.id = $1 AND u.deleted_at IS NULL
	`

	var u domain.User
	err := r.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.Currency)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}
