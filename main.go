package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/faultline/internal/breaker"
	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/events"
	"github.com/vietddude/faultline/internal/fault"
	"github.com/vietddude/faultline/internal/resilience"
	"github.com/vietddude/faultline/internal/retry"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found")
	}
	stylelog.InitDefault(&tint.Options{TimeFormat: time.Kitchen})

	ctx := context.Background()

	// 1. Create the service
	svc := resilience.New(resilience.Options{})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Close(shutdownCtx)
	}()

	// 2. Print what the UI would show
	for _, topic := range []events.Topic{events.TopicError, events.TopicOffline, events.TopicRedirectLogin} {
		svc.Bus().Subscribe(topic, func(_ context.Context, ev events.Event) error {
			fmt.Printf("🔔 [%s] %s (%s)\n", ev.Topic, ev.Notification.UserMessage, ev.Notification.Kind)
			return nil
		})
	}

	fmt.Println("=== Retry ===")

	// 3. An operation that recovers on the third attempt
	calls := 0
	profile, err := resilience.ExecuteWithRetry(ctx, svc, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", syscall.ECONNREFUSED
		}
		return "profile:42", nil
	}, retry.Config{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, BackoffFactor: 2})
	if err != nil {
		log.Printf("Retry failed: %v", err)
	} else {
		fmt.Printf("Got %s after %d attempts\n", profile, calls)
	}

	// 4. A caller mistake is never retried
	_, err = resilience.ExecuteWithRetry(ctx, svc, func(context.Context) (string, error) {
		return "", &fault.BackendError{Code: "auth/weak-password", Message: "password too short"}
	}, retry.Config{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond})
	fmt.Printf("Weak password: kind=%s user=%q\n", fault.KindOf(err), userMessage(err))

	fmt.Println()
	fmt.Println("=== Circuit Breaker ===")

	// 5. Trip the circuit for a failing resource
	opts := breaker.Options{
		FailureThreshold: 3,
		RecoveryTimeout:  2 * time.Second,
		Retry:            retry.Config{MaxAttempts: 1},
	}
	reports := func(context.Context) (int, error) {
		return 0, fault.New(domain.KindServerFault, "reports backend down", fault.WithStatus(503))
	}
	for i := 0; i < 5; i++ {
		_, err := resilience.ExecuteWithCircuitBreaker(ctx, svc, "reports-api", reports, opts)
		st := svc.GetCircuitState("reports-api")
		fmt.Printf("Call %d: %v (phase=%s failures=%d)\n", i+1, err, st.Phase, st.ConsecutiveFailures)
	}

	// 6. Wait out the recovery timeout and let a probe through
	time.Sleep(opts.RecoveryTimeout)
	n, err := resilience.ExecuteWithCircuitBreaker(ctx, svc, "reports-api", func(context.Context) (int, error) {
		return 7, nil
	}, opts)
	fmt.Printf("Probe: value=%d err=%v phase=%s\n", n, err, svc.GetCircuitState("reports-api").Phase)

	flushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = svc.Processor().Flush(flushCtx)

	fmt.Println()
	fmt.Println("=== Circuits ===")
	for key, st := range svc.Circuits() {
		fmt.Printf("%s: %s\n", key, st.Phase)
	}
}

func userMessage(err error) string {
	var fe *fault.Error
	if errors.As(err, &fe) {
		return fe.UserMessage()
	}
	return ""
}
