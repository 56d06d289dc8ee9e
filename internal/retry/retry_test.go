package retry

import (
	"context"
	"errors"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/fault"
)

type recordingSubmitter struct {
	mu      sync.Mutex
	faults  []*fault.Error
	notices []string
}

func (s *recordingSubmitter) Submit(err *fault.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, err)
}

func (s *recordingSubmitter) Notice(_, message string, _ map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, message)
}

type recordingSleeper struct {
	delays []time.Duration
}

func (s *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func TestExecute_RecoversAfterNetworkFaults(t *testing.T) {
	sub := &recordingSubmitter{}
	sl := &recordingSleeper{}
	r := New(sub, WithSleeper(sl.sleep))

	calls := 0
	op := func(context.Context) (string, error) {
		calls++
		if calls <= 2 {
			return "", syscall.ECONNREFUSED
		}
		return "ok", nil
	}

	got, err := Execute(context.Background(), r, op, Config{
		MaxAttempts:   3,
		BaseDelay:     100 * time.Millisecond,
		BackoffFactor: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, sl.delays)
	assert.Empty(t, sub.faults)
	assert.Equal(t, []string{"recovered after 3 attempts"}, sub.notices)
}

func TestExecute_RealTimerDelays(t *testing.T) {
	calls := 0
	var stamps []time.Time
	op := func(context.Context) (int, error) {
		stamps = append(stamps, time.Now())
		calls++
		if calls <= 2 {
			return 0, errors.New("failed to fetch")
		}
		return 42, nil
	}

	got, err := Execute(context.Background(), New(nil), op, Config{
		MaxAttempts:   3,
		BaseDelay:     20 * time.Millisecond,
		BackoffFactor: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	require.Len(t, stamps, 3)
	assert.GreaterOrEqual(t, stamps[1].Sub(stamps[0]), 20*time.Millisecond)
	assert.GreaterOrEqual(t, stamps[2].Sub(stamps[1]), 40*time.Millisecond)
}

func TestExecute_BoundedAttempts(t *testing.T) {
	for _, limit := range []int{1, 2, 5} {
		sub := &recordingSubmitter{}
		sl := &recordingSleeper{}
		calls := 0
		_, err := Execute(context.Background(), New(sub, WithSleeper(sl.sleep)), func(context.Context) (struct{}, error) {
			calls++
			return struct{}{}, syscall.ECONNRESET
		}, Config{MaxAttempts: limit, BaseDelay: time.Millisecond})

		require.Error(t, err)
		assert.Equal(t, limit, calls, "limit=%d", limit)
		assert.Len(t, sl.delays, limit-1)
		require.Len(t, sub.faults, 1, "terminal fault submitted once")
		assert.Equal(t, domain.KindNetwork, sub.faults[0].Kind())

		var fe *fault.Error
		require.ErrorAs(t, err, &fe)
		assert.Same(t, sub.faults[0], fe)
	}
}

func TestExecute_NonRetryableStopsImmediately(t *testing.T) {
	sub := &recordingSubmitter{}
	sl := &recordingSleeper{}
	calls := 0
	_, err := Execute(context.Background(), New(sub, WithSleeper(sl.sleep)), func(context.Context) (int, error) {
		calls++
		return 0, &fault.BackendError{Code: "auth/weak-password", Message: "password too short"}
	}, Config{MaxAttempts: 5})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, sl.delays)
	assert.Equal(t, domain.KindValidation, fault.KindOf(err))
	assert.Len(t, sub.faults, 1)
}

func TestExecute_CustomConditionAndOnRetry(t *testing.T) {
	sl := &recordingSleeper{}
	var seen []int
	calls := 0
	_, err := Execute(context.Background(), New(nil, WithSleeper(sl.sleep)), func(context.Context) (int, error) {
		calls++
		return 0, fault.New(domain.KindValidation, "still invalid")
	}, Config{
		MaxAttempts:    3,
		BaseDelay:      time.Millisecond,
		RetryCondition: func(*fault.Error) bool { return true },
		OnRetry: func(attempt int, err *fault.Error, _ time.Duration) {
			seen = append(seen, attempt)
			assert.Equal(t, domain.KindValidation, err.Kind())
		},
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, seen)
}

func TestExecute_ContextCancelStopsBackoff(t *testing.T) {
	sub := &recordingSubmitter{}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	op := func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, syscall.ETIMEDOUT
	}

	start := time.Now()
	_, err := Execute(ctx, New(sub), op, Config{MaxAttempts: 3, BaseDelay: time.Hour})
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, calls)
	assert.Equal(t, domain.KindNetwork, fault.KindOf(err))
	assert.Len(t, sub.faults, 1)
}

func TestExecute_AttachesContext(t *testing.T) {
	_, err := Execute(context.Background(), New(nil), func(context.Context) (int, error) {
		return 0, errors.New("boom")
	}, Config{MaxAttempts: 1, Context: map[string]any{"op": "load-profile"}})

	var fe *fault.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "load-profile", fe.Context()["op"])
	assert.Equal(t, domain.KindUnknown, fe.Kind())
}

func TestBackoff(t *testing.T) {
	cfg := Config{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{60, time.Second},
		{5000, time.Second},
	}
	for _, tt := range tests {
		if got := Backoff(tt.attempt, cfg); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	prev := time.Duration(0)
	for i := 1; i <= 100; i++ {
		d := Backoff(i, cfg)
		if d < prev {
			t.Fatalf("backoff decreased at attempt %d: %v < %v", i, d, prev)
		}
		if d > cfg.MaxDelay {
			t.Fatalf("backoff exceeded max at attempt %d: %v", i, d)
		}
		prev = d
	}
}

func TestDefaultRetryCondition(t *testing.T) {
	tests := []struct {
		name string
		err  *fault.Error
		want bool
	}{
		{"network", fault.New(domain.KindNetwork, "x"), true},
		{"server no status", fault.New(domain.KindServerFault, "x"), true},
		{"server 503", fault.New(domain.KindServerFault, "x", fault.WithStatus(503)), true},
		{"backend 429", fault.New(domain.KindBackendFault, "x", fault.WithStatus(429)), true},
		{"backend 408", fault.New(domain.KindBackendFault, "x", fault.WithStatus(408)), true},
		{"backend 400", fault.New(domain.KindBackendFault, "x", fault.WithStatus(400)), false},
		{"validation", fault.New(domain.KindValidation, "x"), false},
		{"auth", fault.New(domain.KindAuthentication, "x", fault.WithStatus(401)), false},
		{"unknown", fault.New(domain.KindUnknown, "x"), false},
		{"circuit open", fault.New(domain.KindServerFault, "x", fault.WithCode(fault.CodeCircuitOpen), fault.WithStatus(503)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultRetryCondition(tt.err))
		})
	}
}
