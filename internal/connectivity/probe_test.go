package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestStatic(t *testing.T) {
	p := NewStatic(true)
	if !p.Online(context.Background()) {
		t.Fatal("expected online")
	}
	p.Set(false)
	if p.Online(context.Background()) {
		t.Fatal("expected offline")
	}
}

func TestHTTPProbe_OnlineAndCached(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Method != http.MethodHead {
			t.Errorf("expected HEAD, got %s", r.Method)
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewHTTPProbe(srv.URL, time.Second, time.Minute)
	for i := 0; i < 3; i++ {
		if !p.Online(context.Background()) {
			t.Fatal("any HTTP response should count as online")
		}
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("expected 1 probe request due to caching, got %d", got)
	}
}

func TestHTTPProbe_Offline(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := NewHTTPProbe(url, 200*time.Millisecond, time.Millisecond)
	if p.Online(context.Background()) {
		t.Fatal("expected offline for closed server")
	}
}

func TestHTTPProbe_DoesNotBlockConcurrentCallers(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entered <- struct{}{}
		<-release
	}))
	defer srv.Close()
	defer close(release)

	p := NewHTTPProbe(srv.URL, 5*time.Second, time.Minute)
	go p.Online(context.Background())
	<-entered

	start := time.Now()
	if !p.Online(context.Background()) {
		t.Fatal("expected the previous answer while a check is in flight")
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("concurrent caller waited %s for the in-flight check", elapsed)
	}
}

func TestHTTPProbe_CallerDeadlineKeepsPreviousAnswer(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	p := NewHTTPProbe(srv.URL, 5*time.Second, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	if !p.Online(ctx) {
		t.Fatal("a check cut short by the caller must not report offline")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("check ignored the caller deadline, took %s", elapsed)
	}
}
