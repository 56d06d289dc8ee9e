// Package grpcx puts gRPC client calls behind the circuit breaker and retry
// orchestrator.
package grpcx

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/vietddude/faultline/internal/breaker"
)

// KeyFunc maps a full method name to a circuit key.
type KeyFunc func(method string) string

// ServiceKey keys circuits by service, so every method of a service shares
// one breaker: "/pkg.Service/Method" becomes "grpc:pkg.Service".
func ServiceKey(method string) string {
	m := strings.TrimPrefix(method, "/")
	if i := strings.LastIndex(m, "/"); i >= 0 {
		m = m[:i]
	}
	return "grpc:" + m
}

// MethodKey keys circuits by full method name.
func MethodKey(method string) string {
	return "grpc:" + strings.TrimPrefix(method, "/")
}

// IdempotentFunc reports whether a method is safe to call more than once.
type IdempotentFunc func(method string) bool

// Methods allows retries for the listed full method names only.
func Methods(methods ...string) IdempotentFunc {
	allowed := make(map[string]bool, len(methods))
	for _, m := range methods {
		allowed[m] = true
	}
	return func(method string) bool { return allowed[method] }
}

// UnaryClientInterceptor runs every unary call through b. Failed calls
// surface as *fault.Error; the original status stays reachable through
// errors.Unwrap. Only methods idempotent approves are retried; a nil
// idempotent retries nothing.
func UnaryClientInterceptor(b *breaker.Breaker, opts breaker.Options, key KeyFunc, idempotent IdempotentFunc) grpc.UnaryClientInterceptor {
	if key == nil {
		key = ServiceKey
	}
	once := opts
	once.Retry.MaxAttempts = 1

	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		callOpts ...grpc.CallOption,
	) error {
		policy := once
		if idempotent != nil && idempotent(method) {
			policy = opts
		}
		_, err := breaker.Execute(ctx, b, key(method), func(ctx context.Context) (struct{}, error) {
			return struct{}{}, invoker(ctx, method, req, reply, cc, callOpts...)
		}, policy)
		return err
	}
}

// NewClient creates a connection to endpoint with the interceptor
// installed. https:// or :443 endpoints use TLS.
func NewClient(endpoint string, b *breaker.Breaker, opts breaker.Options, idempotent IdempotentFunc, extra ...grpc.DialOption) (*grpc.ClientConn, error) {
	target := endpoint
	var dialOpts []grpc.DialOption

	if strings.HasPrefix(endpoint, "https://") || strings.HasSuffix(endpoint, ":443") {
		creds := credentials.NewTLS(&tls.Config{})
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(creds))
		target = strings.TrimPrefix(target, "https://")
	} else {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		target = strings.TrimPrefix(target, "http://")
	}

	dialOpts = append(dialOpts, grpc.WithChainUnaryInterceptor(UnaryClientInterceptor(b, opts, nil, idempotent)))
	dialOpts = append(dialOpts, extra...)

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", target, err)
	}
	return conn, nil
}
