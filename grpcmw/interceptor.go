// Package grpcmw puts a limiter in front of gRPC servers.
//
//	server := grpc.NewServer(
//		grpc.ChainUnaryInterceptor(grpcmw.UnaryServerInterceptor(l)),
//		grpc.ChainStreamInterceptor(grpcmw.StreamServerInterceptor(l)),
//	)
//
// Every call is checked as a POST to its full method name, so routes like
// "/greeter.v1.Greeter/SayHello" can be configured like any HTTP path.
package grpcmw

import (
	"context"
	"net"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/toolink/admit/limiter"
)

// Method is the HTTP method gRPC calls are checked under.
const Method = "POST"

// Admitter decides on a single request. *limiter.Limiter implements it.
type Admitter interface {
	Admit(ctx context.Context, identity, method, path string) (limiter.Result, error)
}

type options struct {
	identity func(ctx context.Context) string
	failOpen bool
	skip     func(fullMethod string) bool
}

// Option configures the interceptors.
type Option func(*options)

// WithIdentity sets the identity extractor. Default: PeerHost.
func WithIdentity(fn func(ctx context.Context) string) Option {
	return func(o *options) {
		if fn != nil {
			o.identity = fn
		}
	}
}

// WithFailOpen lets calls through when the limiter cannot decide.
func WithFailOpen(failOpen bool) Option {
	return func(o *options) {
		o.failOpen = failOpen
	}
}

// WithSkip exempts the methods fn returns true for.
func WithSkip(fn func(fullMethod string) bool) Option {
	return func(o *options) {
		o.skip = fn
	}
}

// PeerHost returns the host part of the caller address, or "" if the
// context carries no peer.
func PeerHost(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func newOptions(opts []Option) *options {
	o := &options{identity: PeerHost}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// admit returns nil when the call may proceed, or a status error.
func (o *options) admit(ctx context.Context, l Admitter, fullMethod string) error {
	if o.skip != nil && o.skip(fullMethod) {
		return nil
	}

	identity := o.identity(ctx)
	res, err := l.Admit(ctx, identity, Method, fullMethod)
	if err != nil {
		if o.failOpen {
			log.Warn().Err(err).Str("identity", identity).Str("method", fullMethod).Msg("limiter unavailable, failing open")
			return nil
		}
		return status.Error(codes.Unavailable, "rate limiter unavailable")
	}
	if !res.Allowed() {
		return status.Errorf(codes.ResourceExhausted, "rate limit exceeded for %s, limit %s", fullMethod, res.Limit)
	}
	return nil
}

// UnaryServerInterceptor returns a unary interceptor that admits each call
// through l.
func UnaryServerInterceptor(l Admitter, opts ...Option) grpc.UnaryServerInterceptor {
	if l == nil {
		panic("grpcmw: limiter is required")
	}
	o := newOptions(opts)

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if err := o.admit(ctx, l, info.FullMethod); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor returns a stream interceptor that admits each
// stream through l when it is opened. Messages on an open stream are not
// counted.
func StreamServerInterceptor(l Admitter, opts ...Option) grpc.StreamServerInterceptor {
	if l == nil {
		panic("grpcmw: limiter is required")
	}
	o := newOptions(opts)

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if err := o.admit(ss.Context(), l, info.FullMethod); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}
