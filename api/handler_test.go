package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/go-cmp/cmp"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/KanavDutta/errorfence/core"
	"github.com/KanavDutta/errorfence/gate"
	"github.com/KanavDutta/errorfence/metrics"
	"github.com/KanavDutta/errorfence/store"
)

var t0 = time.UnixMilli(1714564800000)

const adminToken = "admin-secret"

func newTestMux(t *testing.T, s store.BucketStore) (*http.ServeMux, *testingclock.FakeClock) {
	t.Helper()
	clk := testingclock.NewFakeClock(t0)
	g, err := gate.New(s, gate.WithClock(clk))
	if err != nil {
		t.Fatalf("gate.New() failed: %v", err)
	}
	mux := http.NewServeMux()
	NewHandler(g, WithAdminToken(adminToken)).Register(mux)
	return mux, clk
}

// serve sends an admin request
func serve(mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	return serveAs(mux, method, target, body, "Bearer "+adminToken)
}

func serveAs(mux http.Handler, method, target, body, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestGetBucket(t *testing.T) {
	s := store.NewMemoryStore()
	mux, _ := newTestMux(t, s)

	if err := s.Upsert(context.Background(), core.Bucket{
		Identity:    "user123",
		TokensCount: 4,
		LastRequest: t0.Add(-2*time.Hour - time.Minute).UnixMilli(),
	}); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	w := serve(mux, http.MethodGet, "/buckets/user123", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}

	var got BucketResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := BucketResponse{
		Identity:        "user123",
		TokensCount:     4,
		EffectiveTokens: 6,
		Capacity:        10,
		LastRequest:     t0.Add(-2*time.Hour - time.Minute).UnixMilli(),
		NextRefillAt:    t0.Add(time.Hour).UnixMilli(),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestGetBucket_FullHasNoNextRefill(t *testing.T) {
	s := store.NewMemoryStore()
	mux, _ := newTestMux(t, s)
	s.Upsert(context.Background(), core.Bucket{Identity: "full", TokensCount: 10, LastRequest: t0.UnixMilli()})

	w := serve(mux, http.MethodGet, "/buckets/full", "")
	if strings.Contains(w.Body.String(), "next_refill_at") {
		t.Errorf("body %s should omit next_refill_at", w.Body.String())
	}
}

func TestGetBucket_NotFound(t *testing.T) {
	mux, _ := newTestMux(t, store.NewMemoryStore())

	w := serve(mux, http.MethodGet, "/buckets/nobody", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestGetBucket_StoreUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := store.NewMockBucketStore(ctrl)
	s.EXPECT().Load(gomock.Any(), "user123").Return(core.Bucket{}, store.ErrStoreUnavailable)
	mux, _ := newTestMux(t, s)

	w := serve(mux, http.MethodGet, "/buckets/user123", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestPutBucket(t *testing.T) {
	s := store.NewMemoryStore()
	mux, clk := newTestMux(t, s)
	clk.Step(time.Minute)

	w := serve(mux, http.MethodPut, "/buckets/user123", `{"tokens_count": 3}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	got, err := s.Load(context.Background(), "user123")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	want := core.Bucket{Identity: "user123", TokensCount: 3, LastRequest: clk.Now().UnixMilli()}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("stored bucket mismatch (-want +got):\n%s", diff)
	}
}

func TestPutBucket_BadRequests(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{name: "invalid json", body: `{`, wantCode: "invalid_request"},
		{name: "missing count", body: `{}`, wantCode: "missing_tokens_count"},
		{name: "negative", body: `{"tokens_count": -1}`, wantCode: "invalid_tokens_count"},
		{name: "above capacity", body: `{"tokens_count": 11}`, wantCode: "invalid_tokens_count"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := store.NewMemoryStore()
			mux, _ := newTestMux(t, s)

			w := serve(mux, http.MethodPut, "/buckets/user123", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			var resp ErrorResponse
			json.NewDecoder(w.Body).Decode(&resp)
			if resp.Error != tt.wantCode {
				t.Errorf("Error = %q, want %q", resp.Error, tt.wantCode)
			}
			if s.Count() != 0 {
				t.Error("rejected reset should not write")
			}
		})
	}
}

func TestBucketRoutes_RequireAdmin(t *testing.T) {
	tests := []struct {
		name          string
		authorization string
	}{
		{name: "anonymous"},
		{name: "bucket token", authorization: "Bearer user123"},
		{name: "admin token without scheme", authorization: adminToken},
		{name: "wrong admin token", authorization: "Bearer admin-secreT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := store.NewMemoryStore()
			mux, _ := newTestMux(t, s)
			s.Upsert(context.Background(), core.Bucket{Identity: "user123", TokensCount: 0, LastRequest: t0.UnixMilli()})

			if w := serveAs(mux, http.MethodGet, "/buckets/user123", "", tt.authorization); w.Code != http.StatusUnauthorized {
				t.Errorf("GET status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
			w := serveAs(mux, http.MethodPut, "/buckets/user123", `{"tokens_count": 10}`, tt.authorization)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("PUT status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
			if b, _ := s.Load(context.Background(), "user123"); b.TokensCount != 0 {
				t.Errorf("TokensCount = %d after rejected reset, want 0", b.TokensCount)
			}
		})
	}
}

func TestBucketRoutes_DisabledWithoutAdminToken(t *testing.T) {
	g, err := gate.New(store.NewMemoryStore())
	if err != nil {
		t.Fatalf("gate.New() failed: %v", err)
	}
	mux := http.NewServeMux()
	NewHandler(g).Register(mux)

	for _, method := range []string{http.MethodGet, http.MethodPut} {
		w := serveAs(mux, method, "/buckets/user123", `{"tokens_count": 10}`, "Bearer ")
		if w.Code != http.StatusForbidden {
			t.Errorf("%s status = %d, want %d", method, w.Code, http.StatusForbidden)
		}
	}
}

func TestStatsHandler(t *testing.T) {
	m := metrics.NewMetrics()
	for _, label := range []string{"id-a", "id-b", "id-c"} {
		m.RecordDecision(label, gate.Admitted)
		m.RecordCharge(label, 9)
	}
	mux := http.NewServeMux()
	mux.Handle("GET /stats", StatsHandler(m))

	tests := []struct {
		name     string
		method   string
		target   string
		wantCode int
		wantTop  int
	}{
		{name: "all", method: http.MethodGet, target: "/stats", wantCode: http.StatusOK, wantTop: 3},
		{name: "trimmed", method: http.MethodGet, target: "/stats?top=1", wantCode: http.StatusOK, wantTop: 1},
		{name: "more than tracked", method: http.MethodGet, target: "/stats?top=50", wantCode: http.StatusOK, wantTop: 3},
		{name: "bad top", method: http.MethodGet, target: "/stats?top=x", wantCode: http.StatusBadRequest},
		{name: "post", method: http.MethodPost, target: "/stats", wantCode: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveAs(mux, tt.method, tt.target, "", "")
			if w.Code != tt.wantCode {
				t.Fatalf("Status = %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantCode != http.StatusOK {
				return
			}

			var snap metrics.Snapshot
			if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if snap.Admitted != 3 || snap.Charges != 3 {
				t.Errorf("Admitted/Charges = %d/%d, want 3/3", snap.Admitted, snap.Charges)
			}
			if len(snap.TopIdentities) != tt.wantTop {
				t.Errorf("len(TopIdentities) = %d, want %d", len(snap.TopIdentities), tt.wantTop)
			}
			if w.Header().Get("Access-Control-Allow-Origin") != "" {
				t.Error("stats must not be readable cross-origin")
			}
		})
	}
}
