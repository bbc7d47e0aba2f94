package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/and161185/goph-accounts/internal/errs"
	"github.com/and161185/goph-accounts/internal/model"
	"github.com/and161185/goph-accounts/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

const (
	qTokenInsert = `
INSERT INTO auth_tokens (id, account_id, name, token_hash)
VALUES ($1, $2, $3, $4)
RETURNING created_at`

	qTokenByID = `
SELECT id, account_id, name, token_hash, last_used_at, created_at
FROM auth_tokens WHERE id = $1`

	qTokenDeleteByAccount = `DELETE FROM auth_tokens WHERE account_id = $1`

	qTokenTouch = `UPDATE auth_tokens SET last_used_at = $2 WHERE id = $1`
)

// TokenRepo implements TokenRepository using PostgreSQL.
type TokenRepo struct{ db *DB }

var _ repository.TokenRepository = (*TokenRepo)(nil)

// NewTokenRepo constructs a token repository.
func NewTokenRepo(db *DB) *TokenRepo { return &TokenRepo{db: db} }

// Create inserts a token record.
func (r *TokenRepo) Create(ctx context.Context, t *model.AuthToken) error {
	err := r.db.Pool.QueryRow(ctx, qTokenInsert, t.ID, t.AccountID, t.Name, t.TokenHash).Scan(&t.CreatedAt)
	if err != nil {
		return fmt.Errorf("auth_tokens: create: %w", err)
	}
	return nil
}

// GetByID loads a token record by ID.
func (r *TokenRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.AuthToken, error) {
	var t model.AuthToken
	err := r.db.Pool.QueryRow(ctx, qTokenByID, id).Scan(
		&t.ID, &t.AccountID, &t.Name, &t.TokenHash, &t.LastUsedAt, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("auth_tokens: select: %w", err)
	}
	return &t, nil
}

// DeleteByAccount removes every token of the account.
func (r *TokenRepo) DeleteByAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, qTokenDeleteByAccount, accountID)
	if err != nil {
		return 0, fmt.Errorf("auth_tokens: delete: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Touch records when the token was last used. A vanished token is not an error.
func (r *TokenRepo) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	if _, err := r.db.Pool.Exec(ctx, qTokenTouch, id, at); err != nil {
		return fmt.Errorf("auth_tokens: touch: %w", err)
	}
	return nil
}
