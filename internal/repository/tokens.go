package repository

import (
	"context"
	"time"

	"github.com/and161185/goph-accounts/internal/model"
	"github.com/gofrs/uuid/v5"
)

// TokenRepository stores bearer token records.
type TokenRepository interface {
	// Create inserts a token record.
	Create(ctx context.Context, t *model.AuthToken) error
	// GetByID loads a token record by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.AuthToken, error)
	// DeleteByAccount removes every token of the account and reports how many went away.
	DeleteByAccount(ctx context.Context, accountID uuid.UUID) (int64, error)
	// Touch records the last time the token authenticated a request.
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
}
