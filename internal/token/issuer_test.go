package token

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/and161185/goph-accounts/internal/errs"
	"github.com/and161185/goph-accounts/internal/model"
	"github.com/and161185/goph-accounts/internal/repository/memory"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*Issuer, *memory.Store, *model.Account) {
	t.Helper()
	store := memory.NewStore()
	acc := &model.Account{ID: uuid.Must(uuid.NewV4()), Username: "bob", Email: "b@x.com", PasswordHash: "h", Verified: true}
	require.NoError(t, store.Accounts().Create(context.Background(), acc))
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return NewIssuer(store.Tokens(), store.Accounts(), WithClock(func() time.Time { return fixed })), store, acc
}

func TestIssueAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	iss, store, acc := setup(t)

	bearer, err := iss.Issue(ctx, acc.ID)
	require.NoError(t, err)
	id, secret, ok := Parse(bearer)
	require.True(t, ok)
	require.Len(t, secret, secretLength)

	rec, err := store.Tokens().GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, Name, rec.Name)
	require.NotContains(t, rec.TokenHash, secret)

	got, err := iss.Authenticate(ctx, bearer)
	require.NoError(t, err)
	require.Equal(t, acc.ID, got.ID)

	rec, err = store.Tokens().GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, rec.LastUsedAt)

	// several tokens per account
	second, err := iss.Issue(ctx, acc.ID)
	require.NoError(t, err)
	require.NotEqual(t, bearer, second)
	_, err = iss.Authenticate(ctx, bearer)
	require.NoError(t, err)
}

func TestAuthenticate_Rejects(t *testing.T) {
	ctx := context.Background()
	iss, _, acc := setup(t)
	bearer, err := iss.Issue(ctx, acc.ID)
	require.NoError(t, err)
	id, secret, _ := Parse(bearer)

	for name, b := range map[string]string{
		"empty":        "",
		"no separator": "abc",
		"bad id":       "nope|" + secret,
		"empty secret": id.String() + "|",
		"unknown id":   uuid.Must(uuid.NewV4()).String() + "|" + secret,
		"wrong secret": id.String() + "|" + strings.Repeat("x", secretLength),
	} {
		_, err := iss.Authenticate(ctx, b)
		require.ErrorIs(t, err, errs.ErrUnauthorized, name)
	}
}

func TestRevokeAll(t *testing.T) {
	ctx := context.Background()
	iss, _, acc := setup(t)
	a, err := iss.Issue(ctx, acc.ID)
	require.NoError(t, err)
	b, err := iss.Issue(ctx, acc.ID)
	require.NoError(t, err)

	n, err := iss.RevokeAll(ctx, acc.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	for _, bearer := range []string{a, b} {
		_, err := iss.Authenticate(ctx, bearer)
		require.ErrorIs(t, err, errs.ErrUnauthorized)
	}
}

func TestAuthenticate_SoftDeletedAccount(t *testing.T) {
	ctx := context.Background()
	iss, store, acc := setup(t)
	bearer, err := iss.Issue(ctx, acc.ID)
	require.NoError(t, err)

	// tokens that survived a partial delete must not authenticate
	require.NoError(t, store.Accounts().SoftDelete(ctx, acc.ID))
	_, err = iss.Authenticate(ctx, bearer)
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}

type failingTokens struct{ *memory.TokenRepo }

func (failingTokens) GetByID(context.Context, uuid.UUID) (*model.AuthToken, error) {
	return nil, errors.New("db down")
}

func TestAuthenticate_StorageErrorIsNotUnauthorized(t *testing.T) {
	store := memory.NewStore()
	iss := NewIssuer(failingTokens{store.Tokens()}, store.Accounts())
	_, err := iss.Authenticate(context.Background(), uuid.Must(uuid.NewV4()).String()+"|secret")
	require.Error(t, err)
	require.NotErrorIs(t, err, errs.ErrUnauthorized)
}
