// Package rpc describes the accounts gRPC service. Requests and responses are
// google.protobuf.Struct messages keyed by the same field names as the HTTP API.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "accounts.v1.Accounts"

// Method names.
const (
	MethodSignup            = "Signup"
	MethodVerifyEmail       = "VerifyEmail"
	MethodLogin             = "Login"
	MethodLogout            = "Logout"
	MethodForgotPassword    = "ForgotPassword"
	MethodResetPassword     = "ResetPassword"
	MethodSoftDeleteAccount = "SoftDeleteAccount"
	MethodRestoreAccount    = "RestoreAccount"
)

// Metadata keys.
const (
	MDAuthorization = "authorization"
	MDAdminToken    = "x-admin-token"
)

// FullMethod returns "/accounts.v1.Accounts/<method>".
func FullMethod(method string) string { return "/" + ServiceName + "/" + method }

// AccountsServer is implemented by the gRPC transport.
type AccountsServer interface {
	Signup(context.Context, *structpb.Struct) (*structpb.Struct, error)
	VerifyEmail(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Logout(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ForgotPassword(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResetPassword(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SoftDeleteAccount(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RestoreAccount(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type call func(AccountsServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(method string, fn call) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(srv.(AccountsServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return fn(srv.(AccountsServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc is the grpc.ServiceDesc for the accounts service. Payloads are
// structpb.Struct, so no file descriptor is registered and Metadata stays empty.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AccountsServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodSignup, AccountsServer.Signup),
		unary(MethodVerifyEmail, AccountsServer.VerifyEmail),
		unary(MethodLogin, AccountsServer.Login),
		unary(MethodLogout, AccountsServer.Logout),
		unary(MethodForgotPassword, AccountsServer.ForgotPassword),
		unary(MethodResetPassword, AccountsServer.ResetPassword),
		unary(MethodSoftDeleteAccount, AccountsServer.SoftDeleteAccount),
		unary(MethodRestoreAccount, AccountsServer.RestoreAccount),
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterAccountsServer registers srv on s.
func RegisterAccountsServer(s grpc.ServiceRegistrar, srv AccountsServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// AccountsClient calls the accounts service.
type AccountsClient struct {
	cc grpc.ClientConnInterface
}

// NewAccountsClient wraps a client connection.
func NewAccountsClient(cc grpc.ClientConnInterface) *AccountsClient {
	return &AccountsClient{cc: cc}
}

// Call invokes method with fields as the request body.
func (c *AccountsClient) Call(ctx context.Context, method string, fields map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
