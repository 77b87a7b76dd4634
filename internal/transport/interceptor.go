package transport

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/zde37/chordkv/pkg"
)

// RecoveryInterceptor creates a gRPC unary interceptor that turns handler
// panics into codes.Internal and logs failed calls at debug level.
func RecoveryInterceptor(logger *pkg.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error().
					Interface("panic", r).
					Str("method", info.FullMethod).
					Msg("gRPC handler panicked")
				err = status.Error(codes.Internal, "internal error")
			}
		}()

		resp, err = handler(ctx, req)
		if err != nil {
			logger.Debug().Err(err).Str("method", info.FullMethod).Msg("gRPC call failed")
		}
		return resp, err
	}
}
