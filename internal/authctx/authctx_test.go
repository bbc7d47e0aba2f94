package authctx

import (
	"context"
	"testing"

	"github.com/gofrs/uuid/v5"
)

func TestWithAccountID_And_AccountIDFromCtx(t *testing.T) {
	t.Parallel()

	if id, ok := AccountIDFromCtx(context.Background()); ok || id != uuid.Nil {
		t.Fatalf("expected no account id in empty ctx")
	}

	want := uuid.Must(uuid.NewV4())
	ctx := WithAccountID(context.Background(), want)

	got, ok := Context{}.Caller(ctx)
	if !ok {
		t.Fatalf("expected account id in ctx")
	}
	if got != want {
		t.Fatalf("mismatch: got %s, want %s", got, want)
	}

	bad := context.WithValue(context.Background(), accountIDKey, "not-uuid")
	if id, ok := AccountIDFromCtx(bad); ok || id != uuid.Nil {
		t.Fatalf("expected miss on wrong typed value")
	}
	if _, ok := AccountIDFromCtx(WithAccountID(context.Background(), uuid.Nil)); ok {
		t.Fatalf("nil uuid must not count as a caller")
	}
}
