package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stockledger-api/internal/metrics"
	"stockledger-api/internal/model"
	"stockledger-api/internal/service"
	"stockledger-api/pkg/uid"
)

type fakeResolver struct {
	identities map[string]*model.Identity
	err        error
}

func (f *fakeResolver) Resolve(_ context.Context, token string) (*model.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	if id, ok := f.identities[token]; ok {
		return id, nil
	}
	return nil, &service.Error{Kind: service.KindUnauthenticated, Message: "authentication required"}
}

func identityEcho(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := IdentityFromContext(r.Context())
		require.NotNil(t, id)
		w.Header().Set("X-User", string(id.Role))
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuthMiddleware(t *testing.T) {
	resolver := &fakeResolver{identities: map[string]*model.Identity{
		"good": {UserID: 1, Role: model.RoleAdmin},
	}}
	h := NewAuthMiddleware(AuthConfig{Resolver: resolver})(identityEcho(t))

	tests := []struct {
		name   string
		header map[string]string
		status int
	}{
		{"missing token", nil, http.StatusUnauthorized},
		{"x-token", map[string]string{"X-Token": "good"}, http.StatusNoContent},
		{"bearer", map[string]string{"Authorization": "Bearer good"}, http.StatusNoContent},
		{"basic auth is ignored", map[string]string{"Authorization": "Basic good"}, http.StatusUnauthorized},
		{"unknown token", map[string]string{"X-Token": "bad"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusNoContent {
				assert.Equal(t, "admin", rec.Header().Get("X-User"))
			}
		})
	}
}

func TestAuthMiddlewareStoreFailure(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("connection refused")}
	h := NewAuthMiddleware(AuthConfig{Resolver: resolver, Log: zap.NewNop()})(identityEcho(t))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Token", "good")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "SERVICE_UNAVAILABLE")
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, uid.IsValid(seen))
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	supplied := uid.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", supplied)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, supplied, seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "<script>")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.NotEqual(t, "<script>", seen)
	assert.True(t, uid.IsValid(seen))
}

func TestRecovery(t *testing.T) {
	h := Recovery(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
}

func TestRecoveryRepanicsAbort(t *testing.T) {
	h := Recovery(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestLoggingRecordsRoutePattern(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(Logging(zap.NewNop(), m))
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, path := range []string{"/items/1", "/items/2"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusTeapot, rec.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/items/{id}", "418")))
}
