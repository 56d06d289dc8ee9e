package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/faultline/internal/breaker"
	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/fault"
	"github.com/vietddude/faultline/internal/retry"
)

func noSleep(context.Context, time.Duration) error { return nil }

func newBreaker() *breaker.Breaker {
	return breaker.New(retry.New(nil, retry.WithSleeper(noSleep)), nil)
}

type profile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		_ = json.NewEncoder(w).Encode(profile{ID: "42", Name: "Ada"})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, time.Second, newBreaker(),
		breaker.Options{Retry: retry.Config{MaxAttempts: 3}},
		WithHeader("X-Api-Key", "secret"),
	)
	require.NoError(t, err)

	var got profile
	require.NoError(t, c.GetJSON(context.Background(), "/profiles/42", &got))
	assert.Equal(t, profile{ID: "42", Name: "Ada"}, got)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_PostResendsBody(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in profile
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "Ada", in.Name)
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(profile{ID: "7", Name: in.Name})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, time.Second, newBreaker(),
		breaker.Options{Retry: retry.Config{MaxAttempts: 2}},
		WithRetryUnsafe(),
	)
	require.NoError(t, err)

	var out profile
	require.NoError(t, c.PostJSON(context.Background(), "/profiles", profile{Name: "Ada"}, &out))
	assert.Equal(t, "7", out.ID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_PostIsAttemptedOnceByDefault(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, time.Second, newBreaker(), breaker.Options{})
	require.NoError(t, err)

	err = c.PostJSON(context.Background(), "/payments", profile{Name: "Ada"}, nil)
	assert.Equal(t, domain.KindServerFault, fault.KindOf(err))
	assert.Equal(t, int32(1), calls.Load())

	err = c.Do(context.Background(), http.MethodPut, "/payments/1", profile{Name: "Ada"}, nil)
	assert.Error(t, err)
	assert.Equal(t, int32(4), calls.Load(), "PUT is idempotent and uses the default attempts")
}

func TestClient_ClientErrorsDoNotTripCircuit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such profile", http.StatusNotFound)
	}))
	defer srv.Close()

	b := newBreaker()
	c, err := NewClient(srv.URL, time.Second, b, breaker.Options{FailureThreshold: 1, Retry: retry.Config{MaxAttempts: 3}})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		err := c.GetJSON(context.Background(), "/profiles/missing", nil)
		assert.Equal(t, domain.KindNotFound, fault.KindOf(err))

		var se *StatusError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, "no such profile", se.Body)
	}
	assert.Equal(t, domain.PhaseClosed, b.State(c.Key()).Phase)
}

func TestClient_OpensCircuitPerHost(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	b := newBreaker()
	opts := breaker.Options{FailureThreshold: 2, Retry: retry.Config{MaxAttempts: 1}}
	c, err := NewClient(srv.URL, time.Second, b, opts)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		err := c.GetJSON(context.Background(), "/reports", nil)
		assert.Equal(t, domain.KindServerFault, fault.KindOf(err))
	}
	assert.Equal(t, domain.PhaseOpen, b.State(c.Key()).Phase)

	err = c.GetJSON(context.Background(), "/reports", nil)
	var fe *fault.Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, fault.CodeCircuitOpen, fe.Code())
	assert.Equal(t, int32(2), calls.Load())
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient("not a url", time.Second, newBreaker(), breaker.Options{})
	assert.Error(t, err)

	c, err := NewClient("https://api.example.com/v1/", time.Second, newBreaker(), breaker.Options{}, WithKey("profiles"))
	require.NoError(t, err)
	assert.Equal(t, "profiles", c.Key())
}
