package grpcx

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/vietddude/faultline/internal/breaker"
	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/fault"
	"github.com/vietddude/faultline/internal/retry"
)

// flakyServer serves grpc health and fails the first failFirst calls with
// Unavailable.
type flakyServer struct {
	calls     atomic.Int32
	failFirst int32
}

func (f *flakyServer) intercept(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	n := f.calls.Add(1)
	if n <= f.failFirst {
		return nil, status.Error(codes.Unavailable, "backend warming up")
	}
	return handler(ctx, req)
}

func startServer(t *testing.T, f *flakyServer) *bufconn.Listener {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(f.intercept))
	healthpb.RegisterHealthServer(srv, health.NewServer())
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return lis
}

func dial(t *testing.T, lis *bufconn.Listener, b *breaker.Breaker, opts breaker.Options, idempotent IdempotentFunc) healthpb.HealthClient {
	t.Helper()
	conn, err := NewClient("passthrough:///bufnet", b, opts, idempotent,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func noSleep(context.Context, time.Duration) error { return nil }

func newBreaker() *breaker.Breaker {
	return breaker.New(retry.New(nil, retry.WithSleeper(noSleep)), nil)
}

func TestInterceptor_RetriesTransientUnavailable(t *testing.T) {
	f := &flakyServer{failFirst: 2}
	lis := startServer(t, f)
	b := newBreaker()
	client := dial(t, lis, b, breaker.Options{Retry: retry.Config{MaxAttempts: 3}}, Methods(healthpb.Health_Check_FullMethodName))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
	assert.Equal(t, int32(3), f.calls.Load())

	st := b.State(ServiceKey(healthpb.Health_Check_FullMethodName))
	assert.Equal(t, domain.PhaseClosed, st.Phase)
	assert.Equal(t, 0, st.ConsecutiveFailures)
}

func TestInterceptor_OpensCircuit(t *testing.T) {
	f := &flakyServer{failFirst: 1000}
	lis := startServer(t, f)
	b := newBreaker()
	opts := breaker.Options{FailureThreshold: 2, Retry: retry.Config{MaxAttempts: 1}}
	client := dial(t, lis, b, opts, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < 2; i++ {
		_, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
		require.Error(t, err)
		assert.Equal(t, domain.KindNetwork, fault.KindOf(err))

		s, ok := status.FromError(err)
		require.True(t, ok, "status reachable through the fault")
		assert.Equal(t, codes.Unavailable, s.Code())
	}

	_, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	var fe *fault.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, fault.CodeCircuitOpen, fe.Code())
	assert.Equal(t, int32(2), f.calls.Load(), "open circuit does not reach the server")
}

func TestInterceptor_NotFoundIsNotRetriedOrCounted(t *testing.T) {
	f := &flakyServer{}
	lis := startServer(t, f)
	b := newBreaker()
	client := dial(t, lis, b, breaker.Options{Retry: retry.Config{MaxAttempts: 3}}, Methods(healthpb.Health_Check_FullMethodName))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: "no.such.Service"})
	require.Error(t, err)
	assert.Equal(t, domain.KindNotFound, fault.KindOf(err))
	assert.Equal(t, int32(1), f.calls.Load())
	assert.Equal(t, 0, b.State(ServiceKey(healthpb.Health_Check_FullMethodName)).ConsecutiveFailures)
}

func TestInterceptor_UnlistedMethodsAreNotRetried(t *testing.T) {
	f := &flakyServer{failFirst: 2}
	lis := startServer(t, f)
	b := newBreaker()
	client := dial(t, lis, b, breaker.Options{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.Error(t, err)
	assert.Equal(t, domain.KindNetwork, fault.KindOf(err))
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestMethods(t *testing.T) {
	idempotent := Methods("/pkg.Profiles/Get")
	assert.True(t, idempotent("/pkg.Profiles/Get"))
	assert.False(t, idempotent("/pkg.Profiles/Create"))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "grpc:grpc.health.v1.Health", ServiceKey("/grpc.health.v1.Health/Check"))
	assert.Equal(t, "grpc:grpc.health.v1.Health/Check", MethodKey("/grpc.health.v1.Health/Check"))
}
