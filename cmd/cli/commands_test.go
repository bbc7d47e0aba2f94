package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/and161185/goph-accounts/internal/admin"
	"github.com/and161185/goph-accounts/internal/authctx"
	"github.com/and161185/goph-accounts/internal/crypto"
	"github.com/and161185/goph-accounts/internal/repository/memory"
	"github.com/and161185/goph-accounts/internal/rpc"
	grpcserver "github.com/and161185/goph-accounts/internal/server/grpc"
	"github.com/and161185/goph-accounts/internal/service"
	"github.com/and161185/goph-accounts/internal/token"
)

const adminKey = "operator-key"

// startServer runs the accounts service on an in-process listener and returns
// an app wired to it.
func startServer(t *testing.T) (*app, *bytes.Buffer) {
	t.Helper()
	log := zaptest.NewLogger(t)

	kdf, err := crypto.NewKDF(crypto.AlgorithmArgon2id,
		crypto.WithArgonParams(crypto.ArgonParams{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32}))
	if err != nil {
		t.Fatalf("kdf: %v", err)
	}
	store := memory.NewStore()
	issuer := token.NewIssuer(store.Tokens(), store.Accounts())
	svc := service.NewAccountService(service.Deps{
		Accounts:  store.Accounts(),
		Roles:     store.Roles(),
		Hasher:    crypto.NewPooledHasher(kdf, 2),
		Generator: crypto.NewSecretGenerator(),
		Tokens:    issuer,
		Auth:      authctx.Context{},
		Log:       log,
	})

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(
		grpcserver.RecoverUnary(log),
		grpcserver.AuthUnary(issuer, log),
	))
	rpc.RegisterAccountsServer(gs, grpcserver.New(svc, admin.NewGuard([]byte(adminKey))))
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(func() { gs.Stop(); _ = lis.Close() })

	var out bytes.Buffer
	return &app{
		addr:      "bufnet",
		plaintext: true,
		in:        strings.NewReader(""),
		out:       &out,
		dialer:    func(context.Context, string) (net.Conn, error) { return lis.Dial() },
	}, &out
}

func runCmd(t *testing.T, a *app, out *bytes.Buffer, args ...string) string {
	t.Helper()
	out.Reset()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.run(ctx, args[0], args[1:]); err != nil {
		t.Fatalf("%s: %s", args[0], describe(err))
	}
	return strings.TrimSpace(out.String())
}

func wantCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	if s, ok := status.FromError(err); !ok || s.Code() != code {
		t.Fatalf("want %s, got %v", code, err)
	}
}

func TestCLI_FullLifecycle(t *testing.T) {
	_ = withTmpConfig(t)
	a, out := startServer(t)

	msg := runCmd(t, a, out, "signup", "-u", "dave", "-e", "dave@example.com", "-p", "Secret1")
	if !strings.HasPrefix(msg, strings.TrimSpace(service.MsgSignupCode)) {
		t.Fatalf("signup output: %q", msg)
	}
	code := strings.TrimSpace(strings.TrimPrefix(msg, strings.TrimSpace(service.MsgSignupCode)))

	if got := runCmd(t, a, out, "verify", "-e", "dave@example.com", "-code", code); got != service.MsgVerified {
		t.Fatalf("verify output: %q", got)
	}

	// password piped on stdin
	a.in = strings.NewReader("Secret1\n")
	login := runCmd(t, a, out, "login", "-e", "dave@example.com")
	var shown map[string]any
	if err := json.Unmarshal([]byte(login), &shown); err != nil {
		t.Fatalf("login output is not json: %q", login)
	}
	if _, leaked := shown["token"]; leaked {
		t.Fatalf("login must not print the token")
	}
	accountID := shown["user"].(map[string]any)["id"].(string)
	if _, err := loadToken(); err != nil {
		t.Fatalf("token not saved: %v", err)
	}

	if got := runCmd(t, a, out, "delete"); got != service.MsgDeleted {
		t.Fatalf("delete output: %q", got)
	}
	if _, err := loadToken(); err == nil {
		t.Fatalf("token should be forgotten after delete")
	}

	// restore needs an operator token
	err := a.run(context.Background(), "restore", []string{"-id", accountID})
	wantCode(t, err, codes.PermissionDenied)

	adminTok := runCmd(t, a, out, "mint-admin", "-key", adminKey, "-ttl", "1m")
	if got := runCmd(t, a, out, "restore", "-id", accountID, "-admin-token", adminTok); got != service.MsgRestored {
		t.Fatalf("restore output: %q", got)
	}

	runCmd(t, a, out, "login", "-e", "dave@example.com", "-p", "Secret1")
	if got := runCmd(t, a, out, "logout"); got != service.MsgLoggedOut {
		t.Fatalf("logout output: %q", got)
	}
}

func TestCLI_PasswordReset(t *testing.T) {
	_ = withTmpConfig(t)
	a, out := startServer(t)

	msg := runCmd(t, a, out, "signup", "-u", "erin", "-e", "erin@example.com", "-p", "Secret1")
	code := strings.TrimSpace(strings.TrimPrefix(msg, strings.TrimSpace(service.MsgSignupCode)))
	runCmd(t, a, out, "verify", "-e", "erin@example.com", "-code", code)

	msg = runCmd(t, a, out, "forgot", "-e", "erin@example.com")
	reset := strings.TrimSpace(strings.TrimPrefix(msg, strings.TrimSpace(service.MsgResetCode)))

	if got := runCmd(t, a, out, "reset", "-e", "erin@example.com", "-code", reset, "-p", "Newpass1"); got != service.MsgResetDone {
		t.Fatalf("reset output: %q", got)
	}
	err := a.run(context.Background(), "login", []string{"-e", "erin@example.com", "-p", "Secret1"})
	wantCode(t, err, codes.Unauthenticated)
	runCmd(t, a, out, "login", "-e", "erin@example.com", "-p", "Newpass1")
}

func TestCLI_Errors(t *testing.T) {
	_ = withTmpConfig(t)
	a, _ := startServer(t)
	ctx := context.Background()

	err := a.run(ctx, "signup", []string{"-u", "x", "-e", "bad", "-p", "short"})
	wantCode(t, err, codes.InvalidArgument)
	if !strings.Contains(describe(err), "\n  - ") {
		t.Fatalf("field errors missing from %q", describe(err))
	}

	if err := a.run(ctx, "logout", nil); err == nil || !strings.Contains(err.Error(), "login required") {
		t.Fatalf("logout without token: %v", err)
	}
	if err := a.run(ctx, "mint-admin", nil); err == nil {
		t.Fatalf("mint-admin without key should fail")
	}
	if err := a.run(ctx, "nope", nil); err == nil {
		t.Fatalf("unknown command should fail")
	}
}
