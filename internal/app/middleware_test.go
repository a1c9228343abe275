package app

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partnerdesk/partnerdesk/internal/shared"
)

func stackHandler(t *testing.T, next http.Handler) http.Handler {
	t.Helper()
	cfg := &Config{AppEnv: "test", AppRequestTimeout: 0}
	h := next
	mws := MiddlewareStack(MiddlewareConfig{Logger: slog.Default(), Config: cfg})
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func TestActorHeaderReachesContext(t *testing.T) {
	var gotActor int64
	var present bool
	h := stackHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotActor, present = shared.ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set(ActorHeader, "42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, present)
	assert.Equal(t, int64(42), gotActor)
}

func TestMissingActorHeaderLeavesContextEmpty(t *testing.T) {
	var present bool
	h := stackHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present = shared.ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, present)
}

func TestMalformedActorHeaderRejected(t *testing.T) {
	called := false
	h := stackHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	for _, raw := range []string{"abc", "-7", "0", "1e3"} {
		req := httptest.NewRequest(http.MethodGet, "/probe", nil)
		req.Header.Set(ActorHeader, raw)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "header %q", raw)
	}
	assert.False(t, called)
}

func TestSecureHeadersApplied(t *testing.T) {
	h := stackHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}
