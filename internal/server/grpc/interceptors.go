package grpcserver

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"github.com/and161185/goph-accounts/internal/authctx"
	"github.com/and161185/goph-accounts/internal/errs"
	"github.com/and161185/goph-accounts/internal/model"
	"github.com/and161185/goph-accounts/internal/rpc"
	"github.com/and161185/goph-accounts/internal/service"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// LoggingUnary returns a unary server interceptor for structured logging.
// Server-side failures are logged at error level, caller mistakes at info.
func LoggingUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		code := status.Code(err)

		var remote string
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			remote = p.Addr.String()
		}

		// metadata only, payloads carry passwords
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", remote),
		}
		switch code {
		case codes.Internal, codes.Unknown, codes.DataLoss:
			log.Error("grpc", fields...)
		default:
			log.Info("grpc", fields...)
		}
		return resp, err
	}
}

// RecoverUnary returns a unary server interceptor that recovers from panics.
func RecoverUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("method", info.FullMethod),
				)
				err = status.Error(codes.Internal, "internal")
			}
		}()
		return next(ctx, req)
	}
}

// Authenticator resolves a bearer token to its account.
type Authenticator interface {
	Authenticate(ctx context.Context, bearer string) (*model.Account, error)
}

// protected lists the methods that act on the caller's own account.
var protected = map[string]bool{
	rpc.FullMethod(rpc.MethodLogout):            true,
	rpc.FullMethod(rpc.MethodSoftDeleteAccount): true,
}

// AuthUnary resolves the bearer token of protected methods into the context.
// A call without a token reaches the handler unauthenticated; a bad token is rejected here.
func AuthUnary(auth Authenticator, log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if !protected[info.FullMethod] {
			return next(ctx, req)
		}
		tok, err := bearerTokenFromMD(ctx)
		if err != nil {
			return next(ctx, req)
		}
		acc, err := auth.Authenticate(ctx, tok)
		if err != nil {
			if !errors.Is(err, errs.ErrUnauthorized) {
				log.Error("authenticate", zap.String("method", info.FullMethod), zap.Error(err))
				return nil, status.Error(codes.Internal, "internal")
			}
			return nil, status.Error(codes.Unauthenticated, service.MsgUnauthenticated)
		}
		return next(authctx.WithAccountID(ctx, acc.ID), req)
	}
}
