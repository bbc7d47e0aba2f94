// Package token issues, authenticates and revokes opaque bearer tokens.
//
// A bearer token reads "<token id>|<secret>". Only the hex sha256 of the secret
// is stored, so a leaked table cannot be replayed.
package token

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/and161185/goph-accounts/internal/crypto"
	"github.com/and161185/goph-accounts/internal/errs"
	"github.com/and161185/goph-accounts/internal/model"
	"github.com/and161185/goph-accounts/internal/repository"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// Name is stored with every issued token.
const Name = "auth-token"

const secretLength = 40

// Issuer binds bearer tokens to accounts.
type Issuer struct {
	tokens   repository.TokenRepository
	accounts repository.AccountRepository
	log      *zap.Logger
	now      func() time.Time
}

// Option customizes an Issuer.
type Option func(*Issuer)

// WithClock overrides the time source used for last-use stamps.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// WithLogger sets the logger for non-fatal bookkeeping failures.
func WithLogger(log *zap.Logger) Option {
	return func(i *Issuer) { i.log = log }
}

// NewIssuer constructs an Issuer.
func NewIssuer(tokens repository.TokenRepository, accounts repository.AccountRepository, opts ...Option) *Issuer {
	i := &Issuer{
		tokens:   tokens,
		accounts: accounts,
		log:      zap.NewNop(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue creates a new token for the account. Earlier tokens stay valid.
func (i *Issuer) Issue(ctx context.Context, accountID uuid.UUID) (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	secret, err := crypto.RandomString(secretLength)
	if err != nil {
		return "", err
	}
	rec := &model.AuthToken{ID: id, AccountID: accountID, Name: Name, TokenHash: digest(secret)}
	if err := i.tokens.Create(ctx, rec); err != nil {
		return "", fmt.Errorf("token: issue: %w", err)
	}
	return id.String() + "|" + secret, nil
}

// RevokeAll deletes every token of the account.
func (i *Issuer) RevokeAll(ctx context.Context, accountID uuid.UUID) (int64, error) {
	n, err := i.tokens.DeleteByAccount(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("token: revoke: %w", err)
	}
	return n, nil
}

// Authenticate resolves a bearer token to its active account.
// Unknown, malformed or mismatched tokens and tokens of soft-deleted accounts
// yield errs.ErrUnauthorized.
func (i *Issuer) Authenticate(ctx context.Context, bearer string) (*model.Account, error) {
	id, secret, ok := Parse(bearer)
	if !ok {
		return nil, errs.ErrUnauthorized
	}
	rec, err := i.tokens.GetByID(ctx, id)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("token: lookup: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(rec.TokenHash), []byte(digest(secret))) != 1 {
		return nil, errs.ErrUnauthorized
	}

	acc, err := i.accounts.FindByID(ctx, rec.AccountID, false)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("token: account: %w", err)
	}

	if err := i.tokens.Touch(ctx, rec.ID, i.now()); err != nil {
		i.log.Warn("token touch failed", zap.String("token_id", rec.ID.String()), zap.Error(err))
	}
	return acc, nil
}

// Parse splits a bearer string into token ID and secret.
func Parse(bearer string) (uuid.UUID, string, bool) {
	idPart, secret, found := strings.Cut(strings.TrimSpace(bearer), "|")
	if !found || secret == "" {
		return uuid.Nil, "", false
	}
	id, err := uuid.FromString(idPart)
	if err != nil {
		return uuid.Nil, "", false
	}
	return id, secret, true
}

func digest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
