// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/goph-accounts/internal/errs"
	"github.com/and161185/goph-accounts/internal/model"
	"github.com/gofrs/uuid/v5"
)

// Unique fields reported by DuplicateKeyError.
const (
	FieldUsername = "username"
	FieldEmail    = "email"
)

// AccountRepository provides access to accounts. Every lookup states explicitly whether
// soft-deleted rows take part; there is no implicit default scope.
// Emails and usernames compare case-insensitively.
type AccountRepository interface {
	// FindByEmail loads an account by email.
	FindByEmail(ctx context.Context, email string, includeSoftDeleted bool) (*model.Account, error)
	// FindByUsername loads an account by username.
	FindByUsername(ctx context.Context, username string, includeSoftDeleted bool) (*model.Account, error)
	// FindByID loads an account by ID.
	FindByID(ctx context.Context, id uuid.UUID, includeSoftDeleted bool) (*model.Account, error)
	// Create inserts a new account; collisions return *DuplicateKeyError.
	Create(ctx context.Context, a *model.Account) error
	// SetResetToken stores tokenHash as the pending reset code of an active account.
	// No other column is written.
	SetResetToken(ctx context.Context, id uuid.UUID, tokenHash string) error
	// ConsumeResetToken sets passwordHash and clears the reset code in one write, but only
	// while tokenHash is still the pending code; otherwise it returns errs.ErrNotFound.
	ConsumeResetToken(ctx context.Context, id uuid.UUID, tokenHash, passwordHash string) error
	// ConsumeVerificationToken marks an active account verified and clears the code, but only
	// while tokenHash is still the pending code; otherwise it returns errs.ErrNotFound.
	ConsumeVerificationToken(ctx context.Context, id uuid.UUID, tokenHash string) error
	// SoftDelete stamps deleted_at on an active account.
	SoftDelete(ctx context.Context, id uuid.UUID) error
	// Restore clears deleted_at on a soft-deleted account.
	Restore(ctx context.Context, id uuid.UUID) error
}

// RoleRepository answers role membership questions.
type RoleRepository interface {
	// HasRole reports whether the account holds role.
	HasRole(ctx context.Context, accountID uuid.UUID, role string) (bool, error)
	// Grant adds role to the account (idempotent).
	Grant(ctx context.Context, accountID uuid.UUID, role string) error
}

// DuplicateKeyError reports which unique field collided on Create.
type DuplicateKeyError struct {
	Field string
}

func (e *DuplicateKeyError) Error() string { return "duplicate " + e.Field }

// Unwrap lets errors.Is(err, errs.ErrAlreadyExists) match.
func (e *DuplicateKeyError) Unwrap() error { return errs.ErrAlreadyExists }
