package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/goph-accounts/internal/admin"
	"github.com/and161185/goph-accounts/internal/rpc"
)

type command func(a *app, ctx context.Context, args []string) error

var commands = map[string]command{
	"signup":     (*app).cmdSignup,
	"verify":     (*app).cmdVerify,
	"login":      (*app).cmdLogin,
	"logout":     (*app).cmdLogout,
	"forgot":     (*app).cmdForgot,
	"reset":      (*app).cmdReset,
	"delete":     (*app).cmdDelete,
	"restore":    (*app).cmdRestore,
	"mint-admin": (*app).cmdMintAdmin,
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	c, ok := commands[cmd]
	if !ok {
		return fmt.Errorf("unknown command %q", cmd)
	}
	return c(a, ctx, args)
}

// call dials and invokes method with fields as the request body.
func (a *app) call(ctx context.Context, bearer, method string, fields map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	cli, done, err := a.connect(ctx, bearer)
	if err != nil {
		return nil, err
	}
	defer done()
	return cli.Call(ctx, method, fields, opts...)
}

func (a *app) message(out *structpb.Struct) {
	fmt.Fprintln(a.out, out.GetFields()["message"].GetStringValue())
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func (a *app) cmdSignup(ctx context.Context, args []string) error {
	fs := newFlagSet("signup")
	u := fs.String("u", "", "username")
	e := fs.String("e", "", "email")
	p := fs.String("p", "", "password (prompted when omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pass, err := a.secret(*p, "Password: ")
	if err != nil {
		return err
	}
	out, err := a.call(ctx, "", rpc.MethodSignup, map[string]any{"username": *u, "email": *e, "password": pass})
	if err != nil {
		return err
	}
	a.message(out)
	return nil
}

func (a *app) cmdVerify(ctx context.Context, args []string) error {
	fs := newFlagSet("verify")
	e := fs.String("e", "", "email")
	code := fs.String("code", "", "verification code")
	if err := fs.Parse(args); err != nil {
		return err
	}
	out, err := a.call(ctx, "", rpc.MethodVerifyEmail, map[string]any{"email": *e, "token": *code})
	if err != nil {
		return err
	}
	a.message(out)
	return nil
}

func (a *app) cmdLogin(ctx context.Context, args []string) error {
	fs := newFlagSet("login")
	e := fs.String("e", "", "email")
	p := fs.String("p", "", "password (prompted when omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pass, err := a.secret(*p, "Password: ")
	if err != nil {
		return err
	}
	out, err := a.call(ctx, "", rpc.MethodLogin, map[string]any{"email": *e, "password": pass})
	if err != nil {
		return err
	}
	tok := out.GetFields()["token"].GetStringValue()
	if tok == "" {
		return errors.New("server returned no token")
	}
	if err := saveToken(tok, *e); err != nil {
		return err
	}
	// the token is on disk; keep it off stdout
	shown := out.AsMap()
	delete(shown, "token")
	a.printJSON(shown)
	return nil
}

func (a *app) cmdLogout(ctx context.Context, _ []string) error {
	tok, err := loadToken()
	if err != nil {
		return err
	}
	out, err := a.call(ctx, tok, rpc.MethodLogout, nil)
	if err != nil {
		return err
	}
	if err := forgetToken(); err != nil {
		return err
	}
	a.message(out)
	return nil
}

func (a *app) cmdForgot(ctx context.Context, args []string) error {
	fs := newFlagSet("forgot")
	e := fs.String("e", "", "email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	out, err := a.call(ctx, "", rpc.MethodForgotPassword, map[string]any{"email": *e})
	if err != nil {
		return err
	}
	a.message(out)
	return nil
}

func (a *app) cmdReset(ctx context.Context, args []string) error {
	fs := newFlagSet("reset")
	e := fs.String("e", "", "email")
	code := fs.String("code", "", "reset code")
	p := fs.String("p", "", "new password (prompted when omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pass, err := a.secret(*p, "New password: ")
	if err != nil {
		return err
	}
	out, err := a.call(ctx, "", rpc.MethodResetPassword, map[string]any{"email": *e, "token": *code, "password": pass})
	if err != nil {
		return err
	}
	a.message(out)
	return nil
}

func (a *app) cmdDelete(ctx context.Context, _ []string) error {
	tok, err := loadToken()
	if err != nil {
		return err
	}
	out, err := a.call(ctx, tok, rpc.MethodSoftDeleteAccount, nil)
	if err != nil {
		return err
	}
	if err := forgetToken(); err != nil {
		return err
	}
	a.message(out)
	return nil
}

func (a *app) cmdRestore(ctx context.Context, args []string) error {
	fs := newFlagSet("restore")
	id := fs.String("id", "", "account id")
	adminTok := fs.String("admin-token", os.Getenv("ACCOUNTS_ADMIN_TOKEN"), "operator JWT (see mint-admin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *adminTok != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, rpc.MDAdminToken, *adminTok)
	}
	out, err := a.call(ctx, "", rpc.MethodRestoreAccount, map[string]any{"user_id": *id})
	if err != nil {
		return err
	}
	a.message(out)
	return nil
}

func (a *app) cmdMintAdmin(_ context.Context, args []string) error {
	fs := newFlagSet("mint-admin")
	key := fs.String("key", os.Getenv("ACCOUNTS_ADMIN_JWT_KEY"), "HS256 signing key (admin.jwt_key)")
	sub := fs.String("sub", "operator", "token subject")
	ttl := fs.Duration("ttl", 15*time.Minute, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *key == "" {
		return errors.New("need -key or ACCOUNTS_ADMIN_JWT_KEY")
	}
	tok, err := admin.NewGuard([]byte(*key)).Mint(*sub, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, tok)
	return nil
}
