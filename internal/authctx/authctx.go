// Package authctx carries the authenticated caller through a request context.
package authctx

import (
	"context"

	"github.com/gofrs/uuid/v5"
)

type ctxKey string

const accountIDKey ctxKey = "accounts.accountID"

// WithAccountID stores the authenticated account ID in ctx.
func WithAccountID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, accountIDKey, id)
}

// AccountIDFromCtx fetches the authenticated account ID from ctx.
func AccountIDFromCtx(ctx context.Context) (uuid.UUID, bool) {
	v := ctx.Value(accountIDKey)
	if v == nil {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// Context resolves the caller from values placed by transport middleware.
type Context struct{}

// Caller returns the authenticated account ID, if any.
func (Context) Caller(ctx context.Context) (uuid.UUID, bool) { return AccountIDFromCtx(ctx) }
