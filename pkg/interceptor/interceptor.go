// Package interceptor attaches the authentication envelope to outbound gRPC
// calls.
//
// For every call it derives fresh purpose-bound keys from the session secrets,
// mints a 60-second bearer token, signs method/timestamp/nonce/body/token and
// encrypts the identity fields, then merges the result into the outgoing
// metadata. Nothing is retried; a missing login fails the call synchronously
// with ErrAuthenticationRequired.
package interceptor

import (
	"context"
	"errors"

	"github.com/open-runtime/runtime-aot-client-examples/pkg/interfaces/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// Interceptor holds an immutable Config and is safe for concurrent calls.
type Interceptor struct {
	cfg Config
}

// New fills unset collaborators with the production implementations and
// freezes cfg.
func New(cfg Config) *Interceptor {
	return &Interceptor{cfg: cfg.withDefaults()}
}

// DialOptions returns the interceptors as grpc.DialOption values.
func (i *Interceptor) DialOptions() []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithChainUnaryInterceptor(i.Unary()),
		grpc.WithChainStreamInterceptor(i.Stream()),
	}
}

// Unary returns the unary client interceptor.
func (i *Interceptor) Unary() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		existing, _ := metadata.FromOutgoingContext(ctx)
		env, err := BuildUnaryEnvelope(i.cfg, method, req, existing)
		if err != nil {
			i.fail(KindUnary, method, err)
			return err
		}
		i.signed(env)
		return invoker(metadata.NewOutgoingContext(ctx, env.Merge(existing)), method, req, reply, cc, opts...)
	}
}

// Stream returns the streaming client interceptor.
func (i *Interceptor) Stream() grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		existing, _ := metadata.FromOutgoingContext(ctx)
		env, err := BuildStreamEnvelope(i.cfg, method, existing)
		if err != nil {
			i.fail(KindStream, method, err)
			return nil, err
		}
		i.signed(env)
		return streamer(metadata.NewOutgoingContext(ctx, env.Merge(existing)), desc, cc, method, opts...)
	}
}

func (i *Interceptor) signed(env Envelope) {
	i.cfg.Metrics.envelope(env.Kind, OutcomeSigned)
	i.cfg.Logger.Debug("call envelope attached",
		logger.Field{Key: "kind", Value: env.Kind},
		logger.Field{Key: "method", Value: env.Method},
		logger.Field{Key: "call_id", Value: env.CallID},
	)
}

func (i *Interceptor) fail(kind, method string, err error) {
	outcome := OutcomeFailed
	if errors.Is(err, ErrAuthenticationRequired) {
		outcome = OutcomeUnauthorized
	}
	i.cfg.Metrics.envelope(kind, outcome)
	i.cfg.Logger.Warn("call envelope rejected",
		logger.Field{Key: "kind", Value: kind},
		logger.Field{Key: "method", Value: method},
		logger.Field{Key: "error", Value: err},
	)
}
