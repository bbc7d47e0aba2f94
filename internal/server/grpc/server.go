// Package grpcserver exposes the accounts service over gRPC.
package grpcserver

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/and161185/goph-accounts/internal/admin"
	"github.com/and161185/goph-accounts/internal/errs"
	"github.com/and161185/goph-accounts/internal/model"
	"github.com/and161185/goph-accounts/internal/rpc"
	"github.com/and161185/goph-accounts/internal/service"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/protoadapt"
	"google.golang.org/protobuf/types/known/structpb"
)

// Server wires the account service into gRPC handlers.
type Server struct {
	accounts service.AccountService
	guard    *admin.Guard
}

var _ rpc.AccountsServer = (*Server)(nil)

// New constructs a gRPC server. A nil or keyless guard leaves restore open.
func New(accounts service.AccountService, guard *admin.Guard) *Server {
	return &Server{accounts: accounts, guard: guard}
}

// Signup registers an account.
func (s *Server) Signup(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	msg, err := s.accounts.Signup(ctx, service.SignupInput{
		Username: str(req, "username"),
		Email:    str(req, "email"),
		Password: str(req, "password"),
	})
	return message(msg, err)
}

// VerifyEmail confirms an email address.
func (s *Server) VerifyEmail(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	msg, err := s.accounts.VerifyEmail(ctx, service.VerifyEmailInput{
		Email: str(req, "email"),
		Token: str(req, "token"),
	})
	return message(msg, err)
}

// Login exchanges credentials for a bearer token.
func (s *Server) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	res, err := s.accounts.Login(ctx, service.LoginInput{
		Email:    str(req, "email"),
		Password: str(req, "password"),
	})
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := structpb.NewStruct(map[string]any{
		"token":        res.Token,
		"user":         snapshot(res.Account),
		"is_admin":     res.IsAdmin,
		"soft_deleted": res.SoftDeleted,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}

// Logout revokes the caller's tokens.
func (s *Server) Logout(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return message(s.accounts.Logout(ctx))
}

// ForgotPassword issues a reset code.
func (s *Server) ForgotPassword(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return message(s.accounts.ForgotPassword(ctx, service.ForgotPasswordInput{Email: str(req, "email")}))
}

// ResetPassword sets a new password.
func (s *Server) ResetPassword(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	msg, err := s.accounts.ResetPassword(ctx, service.ResetPasswordInput{
		Email:    str(req, "email"),
		Token:    str(req, "token"),
		Password: str(req, "password"),
	})
	return message(msg, err)
}

// SoftDeleteAccount deletes the caller's account.
func (s *Server) SoftDeleteAccount(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return message(s.accounts.SoftDeleteAccount(ctx))
}

// RestoreAccount undeletes an account; operator-only when the admin guard is keyed.
func (s *Server) RestoreAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.guard.Authorize(firstMD(ctx, rpc.MDAdminToken)); err != nil {
		return nil, status.Error(codes.PermissionDenied, "Forbidden.")
	}
	return message(s.accounts.RestoreAccount(ctx, service.RestoreInput{UserID: str(req, "user_id")}))
}

func message(msg string, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"message": structpb.NewStringValue(msg),
	}}, nil
}

// toStatus maps an outcome to a gRPC status. Per-field messages travel as a
// google.protobuf.ListValue detail.
func toStatus(err error) error {
	var code codes.Code
	switch errs.KindOf(err) {
	case errs.ErrValidation:
		code = codes.InvalidArgument
	case errs.ErrNotFound:
		code = codes.NotFound
	case errs.ErrUnauthorized:
		code = codes.Unauthenticated
	case errs.ErrAlreadyExists:
		code = codes.AlreadyExists
	case errs.ErrBadRequest, errs.ErrInvalidTransition:
		code = codes.FailedPrecondition
	default:
		code = codes.Internal
	}

	msg := errs.MessageOf(err)
	var e *errs.Error
	if code == codes.Internal && !errors.As(err, &e) {
		msg = "internal"
	}
	st := status.New(code, msg)

	fields := errs.FieldsOf(err)
	if len(fields) == 0 {
		return st.Err()
	}
	vals := make([]*structpb.Value, 0, len(fields))
	for _, f := range fields {
		vals = append(vals, structpb.NewStringValue(f))
	}
	withDetails, derr := st.WithDetails(protoadapt.MessageV1Of(&structpb.ListValue{Values: vals}))
	if derr != nil {
		return st.Err()
	}
	return withDetails.Err()
}

// FieldErrors extracts per-field messages from a status error.
func FieldErrors(err error) []string {
	st, ok := status.FromError(err)
	if !ok {
		return nil
	}
	var out []string
	for _, d := range st.Details() {
		if lv, ok := d.(*structpb.ListValue); ok {
			for _, v := range lv.GetValues() {
				out = append(out, v.GetStringValue())
			}
		}
	}
	return out
}

func snapshot(a model.Snapshot) map[string]any {
	var deleted any
	if a.DeletedAt != nil {
		deleted = a.DeletedAt.UTC().Format(time.RFC3339)
	}
	return map[string]any{
		"id":         a.ID,
		"username":   a.Username,
		"email":      a.Email,
		"verified":   a.Verified,
		"created_at": a.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at": a.UpdatedAt.UTC().Format(time.RFC3339),
		"deleted_at": deleted,
	}
}

func str(req *structpb.Struct, key string) string {
	v, ok := req.GetFields()[key]
	if !ok {
		return ""
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return k.StringValue
	case *structpb.Value_NumberValue:
		return strconv.FormatFloat(k.NumberValue, 'f', -1, 64)
	default:
		return ""
	}
}

func firstMD(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get(key) {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func bearerTokenFromMD(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("no metadata")
	}
	for _, v := range md.Get(rpc.MDAuthorization) {
		v = strings.TrimSpace(v)
		if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
			t := strings.TrimSpace(v[7:])
			if t != "" {
				return t, nil
			}
		}
	}
	return "", errors.New("no bearer token")
}
