package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError_IsMatchesKind(t *testing.T) {
	t.Parallel()

	err := New(ErrUnauthorized, "Invalid credentials.")
	require.ErrorIs(t, err, ErrUnauthorized)
	require.NotErrorIs(t, err, ErrNotFound)

	wrapped := fmt.Errorf("login: %w", err)
	require.ErrorIs(t, wrapped, ErrUnauthorized)
	require.Equal(t, "Invalid credentials.", MessageOf(wrapped))
}

func TestInternal_UnwrapsCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("db down")
	err := Internal("An error occurred", cause)
	require.ErrorIs(t, err, ErrInternal)
	require.ErrorIs(t, err, cause)
	require.Equal(t, "An error occurred: db down", err.Error())
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	require.Nil(t, KindOf(nil))
	require.Equal(t, ErrValidation, KindOf(Validation("Please enter a password.")))
	require.Equal(t, ErrAlreadyExists, KindOf(Conflict("This username is already in use.")))
	require.Equal(t, ErrNotFound, KindOf(fmt.Errorf("repo: %w", ErrNotFound)))
	require.Equal(t, ErrInternal, KindOf(errors.New("boom")))
}

func TestFieldsOf(t *testing.T) {
	t.Parallel()

	err := Validation("a", "b")
	require.Equal(t, []string{"a", "b"}, FieldsOf(err))
	require.Equal(t, "a b", err.Message)
	require.Nil(t, FieldsOf(errors.New("plain")))
}
