package httpserver

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"aimate/internal/handler"
)

func newTestRouter(checks map[string]ReadinessCheck) *Router {
	log := zap.NewNop()
	return NewRouter(Handlers{
		Auth:    handler.NewAuthHandler(nil, log),
		Task:    handler.NewTaskHandler(nil, log),
		Expense: handler.NewExpenseHandler(nil, log),
		Meeting: handler.NewMeetingHandler(nil, log),
		Email:   handler.NewEmailHandler(nil, log),
	}, Options{JWTSecret: testSecret, Checks: checks, Logger: log})
}

func TestRouter_Health(t *testing.T) {
	r := newTestRouter(nil)

	w := do(r.Engine, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"OK","message":"AIMate API is running"}`, w.Body.String())

	w = do(r.Engine, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r.Engine, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ready"}`, w.Body.String())
}

func TestRouter_ReadinessFailure(t *testing.T) {
	r := newTestRouter(map[string]ReadinessCheck{
		"db": func(ctx context.Context) error { return errors.New("connection refused") },
	})

	w := do(r.Engine, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"db_not_ready","error":"connection refused"}`, w.Body.String())
}

func TestRouter_Metrics(t *testing.T) {
	w := do(newTestRouter(nil).Engine, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_ProtectedRoutesRequireToken(t *testing.T) {
	r := newTestRouter(nil)
	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/auth/me"},
		{http.MethodGet, "/api/tasks"},
		{http.MethodPost, "/api/tasks/generate"},
		{http.MethodGet, "/api/expenses/insights"},
		{http.MethodPost, "/api/meetings/1/upload-audio"},
		{http.MethodPost, "/api/meetings/1/action-items/a1/convert"},
		{http.MethodGet, "/api/emails/sync"},
		{http.MethodPost, "/api/emails/sync"},
		{http.MethodDelete, "/api/emails/9"},
	} {
		w := do(r.Engine, route.method, route.path, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, route.path)
	}
}

func TestRouter_InvalidPathID(t *testing.T) {
	r := newTestRouter(nil)
	w := do(r.Engine, http.MethodGet, "/api/tasks/abc", bearer(t, 1))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"Invalid id"}`, w.Body.String())
}

func TestRouter_NoRoute(t *testing.T) {
	w := do(newTestRouter(nil).Engine, http.MethodGet, "/api/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"Route not found"}`, w.Body.String())
}
