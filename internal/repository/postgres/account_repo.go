package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/and161185/goph-accounts/internal/errs"
	"github.com/and161185/goph-accounts/internal/model"
	"github.com/and161185/goph-accounts/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

const accountColumns = `id, username, email, password_hash, verified,
	verification_token_hash, reset_token_hash, deleted_at, created_at, updated_at`

const (
	qAccountInsert = `
INSERT INTO accounts (id, username, email, password_hash, verified, verification_token_hash, reset_token_hash)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING created_at, updated_at`

	qAccountByEmail = `
SELECT ` + accountColumns + `
FROM accounts WHERE lower(email) = lower($1) AND ($2 OR deleted_at IS NULL)`

	qAccountByUsername = `
SELECT ` + accountColumns + `
FROM accounts WHERE lower(username) = lower($1) AND ($2 OR deleted_at IS NULL)`

	qAccountByID = `
SELECT ` + accountColumns + `
FROM accounts WHERE id = $1 AND ($2 OR deleted_at IS NULL)`

	qAccountSetResetToken = `
UPDATE accounts SET reset_token_hash = $2, updated_at = now()
WHERE id = $1 AND deleted_at IS NULL`

	qAccountConsumeReset = `
UPDATE accounts SET password_hash = $3, reset_token_hash = NULL, updated_at = now()
WHERE id = $1 AND reset_token_hash = $2 AND deleted_at IS NULL`

	qAccountConsumeVerification = `
UPDATE accounts SET verified = true, verification_token_hash = NULL, updated_at = now()
WHERE id = $1 AND verification_token_hash = $2 AND deleted_at IS NULL`

	qAccountSoftDelete = `
UPDATE accounts SET deleted_at = now(), updated_at = now()
WHERE id = $1 AND deleted_at IS NULL`

	qAccountRestore = `
UPDATE accounts SET deleted_at = NULL, updated_at = now()
WHERE id = $1 AND deleted_at IS NOT NULL`
)

// AccountRepo implements AccountRepository using PostgreSQL.
type AccountRepo struct{ db *DB }

var _ repository.AccountRepository = (*AccountRepo)(nil)

// NewAccountRepo constructs an account repository.
func NewAccountRepo(db *DB) *AccountRepo { return &AccountRepo{db: db} }

// Create inserts a new account row.
func (r *AccountRepo) Create(ctx context.Context, a *model.Account) error {
	err := r.db.Pool.QueryRow(ctx, qAccountInsert,
		a.ID, a.Username, a.Email, a.PasswordHash, a.Verified, a.VerificationTokenHash, a.ResetTokenHash,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if isUniqueViolation(err) {
		return &repository.DuplicateKeyError{Field: duplicateField(err)}
	}
	if err != nil {
		return fmt.Errorf("accounts: create: %w", err)
	}
	return nil
}

// FindByEmail selects an account by email (case-insensitive).
func (r *AccountRepo) FindByEmail(ctx context.Context, email string, includeSoftDeleted bool) (*model.Account, error) {
	return r.one(ctx, qAccountByEmail, email, includeSoftDeleted)
}

// FindByUsername selects an account by username (case-insensitive).
func (r *AccountRepo) FindByUsername(ctx context.Context, username string, includeSoftDeleted bool) (*model.Account, error) {
	return r.one(ctx, qAccountByUsername, username, includeSoftDeleted)
}

// FindByID selects an account by ID.
func (r *AccountRepo) FindByID(ctx context.Context, id uuid.UUID, includeSoftDeleted bool) (*model.Account, error) {
	return r.one(ctx, qAccountByID, id, includeSoftDeleted)
}

// SetResetToken stores a pending reset code hash on an active account.
func (r *AccountRepo) SetResetToken(ctx context.Context, id uuid.UUID, tokenHash string) error {
	return r.exec(ctx, "set reset token", qAccountSetResetToken, id, tokenHash)
}

// ConsumeResetToken replaces the password while tokenHash is still pending.
func (r *AccountRepo) ConsumeResetToken(ctx context.Context, id uuid.UUID, tokenHash, passwordHash string) error {
	return r.exec(ctx, "consume reset token", qAccountConsumeReset, id, tokenHash, passwordHash)
}

// ConsumeVerificationToken marks the account verified while tokenHash is still pending.
func (r *AccountRepo) ConsumeVerificationToken(ctx context.Context, id uuid.UUID, tokenHash string) error {
	return r.exec(ctx, "consume verification token", qAccountConsumeVerification, id, tokenHash)
}

// SoftDelete stamps deleted_at on an active account.
func (r *AccountRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, "soft delete", qAccountSoftDelete, id)
}

// Restore clears deleted_at on a soft-deleted account.
func (r *AccountRepo) Restore(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, "restore", qAccountRestore, id)
}

// exec runs a single-row update; zero affected rows means the guard did not match.
func (r *AccountRepo) exec(ctx context.Context, op, q string, args ...any) error {
	tag, err := r.db.Pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("accounts: %s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *AccountRepo) one(ctx context.Context, q string, key any, includeSoftDeleted bool) (*model.Account, error) {
	var a model.Account
	err := r.db.Pool.QueryRow(ctx, q, key, includeSoftDeleted).Scan(
		&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.Verified,
		&a.VerificationTokenHash, &a.ResetTokenHash, &a.DeletedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("accounts: select: %w", err)
	}
	return &a, nil
}

func duplicateField(err error) string {
	name := violatedConstraint(err)
	switch {
	case strings.Contains(name, "username"):
		return repository.FieldUsername
	case strings.Contains(name, "email"):
		return repository.FieldEmail
	default:
		return name
	}
}
