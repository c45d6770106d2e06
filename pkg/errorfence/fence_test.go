package errorfence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/KanavDutta/errorfence/core"
	"github.com/KanavDutta/errorfence/metrics"
	"github.com/KanavDutta/errorfence/store"
)

var t0 = time.UnixMilli(1714564800000)

func paymentHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("fail") == "true" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "Pix key not found"})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"pixKey": "fake-pix-key", "value": 100})
	})
}

func do(h http.Handler, target, authorization string) int {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestNew_Defaults(t *testing.T) {
	fence, err := New()
	require.NoError(t, err)
	defer fence.Close()

	assert.Equal(t, core.DefaultPolicy(), fence.Gate().Policy())
	assert.IsType(t, &store.MemoryStore{}, fence.Store())
	assert.Equal(t, BackendMemory, fence.Config().Store.Backend)
}

func TestNew_OptionErrors(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{name: "nil store", opt: WithStore(nil)},
		{name: "nil config", opt: WithConfig(nil)},
		{name: "nil extractor", opt: WithIdentityExtractor(nil)},
		{name: "nil clock", opt: WithClock(nil)},
		{name: "nil recorder", opt: WithRecorder(nil)},
		{name: "zero capacity", opt: WithDefaults(0, time.Hour)},
		{name: "zero interval", opt: WithDefaults(10, 0)},
		{name: "missing file", opt: WithConfigFile("/nonexistent/errorfence.yaml")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opt)
			assert.True(t, errors.Is(err, ErrInvalidConfig), "error = %v", err)
		})
	}
}

func TestFence_EndToEnd(t *testing.T) {
	clk := testingclock.NewFakeClock(t0)
	m := metrics.NewMetricsWithClock(clk)
	reg := prometheus.NewRegistry()

	fence, err := New(
		WithDefaults(3, time.Hour),
		WithClock(clk),
		WithRecorder(m),
		WithRecorder(metrics.NewPrometheus(reg)),
	)
	require.NoError(t, err)
	h := fence.Middleware(paymentHandler())

	assert.Equal(t, http.StatusUnauthorized, do(h, "/path", ""))
	assert.Equal(t, http.StatusOK, do(h, "/path", "Bearer alice"))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusBadRequest, do(h, "/path?fail=true", "Bearer alice"))
	}
	assert.Equal(t, http.StatusTooManyRequests, do(h, "/path", "Bearer alice"))

	// Other identities keep their own budget
	assert.Equal(t, http.StatusBadRequest, do(h, "/path?fail=true", "Bearer bob"))

	clk.Step(time.Hour)
	assert.Equal(t, http.StatusOK, do(h, "/path", "Bearer alice"))

	snap := m.GetSnapshot()
	assert.Equal(t, int64(8), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.Unauthenticated)
	assert.Equal(t, int64(1), snap.Throttled)
	assert.Equal(t, int64(4), snap.Charges)
	assert.Equal(t, int64(1), snap.RefilledTokens)
	assert.Equal(t, core.IdentityLabel("alice"), snap.TopIdentities[0].Identity)

	count, err := testutil.GatherAndCount(reg, "errorfence_charges_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestFence_ConfigFile(t *testing.T) {
	path := writeConfig(t, `
capacity: 2
refill_interval: "10m"
identity_extractor: "raw"
`)

	fence, err := New(WithConfigFile(path))
	require.NoError(t, err)
	h := fence.Middleware(paymentHandler())

	// Raw extractor keys on the whole header value
	assert.Equal(t, http.StatusBadRequest, do(h, "/path?fail=true", "api-key-1"))
	assert.Equal(t, http.StatusBadRequest, do(h, "/path?fail=true", "api-key-1"))
	assert.Equal(t, http.StatusTooManyRequests, do(h, "/path", "api-key-1"))
	assert.Equal(t, http.StatusOK, do(h, "/path", "api-key-2"))
}

func TestFence_RedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)

	config := NewConfig()
	config.Store.Backend = BackendRedis
	config.Store.Redis.Addr = mr.Addr()

	// Two fences on the same Redis share one budget
	first, err := New(WithConfig(config))
	require.NoError(t, err)
	defer first.Close()
	second, err := New(WithConfig(config))
	require.NoError(t, err)
	defer second.Close()

	a := first.Middleware(paymentHandler())
	b := second.Middleware(paymentHandler())
	for i := 0; i < 5; i++ {
		do(a, "/path?fail=true", "Bearer shared")
		do(b, "/path?fail=true", "Bearer shared")
	}

	assert.Equal(t, http.StatusTooManyRequests, do(a, "/path", "Bearer shared"))
	assert.Equal(t, http.StatusTooManyRequests, do(b, "/path", "Bearer shared"))
	assert.Equal(t, "0", mr.HGet("errorfence:shared", store.FieldTokensCount))
}

func TestFence_FailOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	config := NewConfig()
	config.Store.Backend = BackendRedis
	config.Store.Redis.Addr = mr.Addr()

	closed, err := New(WithConfig(config))
	require.NoError(t, err)
	open, err := New(WithConfig(config), WithFailOpen(true))
	require.NoError(t, err)
	assert.False(t, config.FailOpen, "WithFailOpen must not modify the caller's config")

	mr.SetError("ERR store offline")

	assert.Equal(t, http.StatusServiceUnavailable, do(closed.Middleware(paymentHandler()), "/path", "Bearer u"))
	assert.Equal(t, http.StatusOK, do(open.Middleware(paymentHandler()), "/path", "Bearer u"))
}

func TestFence_CustomStoreNotClosed(t *testing.T) {
	s := store.NewMemoryStore()
	fence, err := New(WithStore(s))
	require.NoError(t, err)
	require.NoError(t, fence.Close())

	_, err = fence.Gate().Reset(context.Background(), "user", 1)
	assert.NoError(t, err)
	assert.Equal(t, 1, s.Count())
}

func TestFence_CustomExtractor(t *testing.T) {
	byHeaderPrefix := func(credential string) (string, error) {
		if credential == "" {
			return "", core.ErrMissingCredential
		}
		return fmt.Sprintf("tenant:%s", credential), nil
	}

	s := store.NewMemoryStore()
	fence, err := New(WithStore(s), WithIdentityExtractor(byHeaderPrefix))
	require.NoError(t, err)

	do(fence.Middleware(paymentHandler()), "/path?fail=true", "acme")

	b, err := s.Load(context.Background(), "tenant:acme")
	require.NoError(t, err)
	assert.Equal(t, int64(9), b.TokensCount)
}
