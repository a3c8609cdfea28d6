package probe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiveness(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	unhealthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer unhealthy.Close()

	assert.NoError(t, Liveness(context.Background(), healthy.URL))

	err := Liveness(context.Background(), unhealthy.URL)
	assert.True(t, errors.Is(err, ErrUnhealthy))
	assert.Contains(t, err.Error(), "503")
}

func TestLiveness_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	assert.Error(t, Liveness(context.Background(), url))
}

func TestWaitForLiveness_BecomesHealthy(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, WaitForLiveness(context.Background(), srv.URL, 5*time.Second, 10*time.Millisecond))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(3))
}

func TestWaitForLiveness_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := WaitForLiveness(context.Background(), srv.URL, 100*time.Millisecond, 20*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnhealthy))
}

func TestLivenessURL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:8000/health-check", LivenessURL(8000))
}
