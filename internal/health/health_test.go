package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"mailverify/backend/internal/storage/memory"
)

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealthHandler(t *testing.T) {
	hc := NewHealthChecker(memory.NewStore(), stubPinger{err: errors.New("connection refused")}, nil)

	rec := httptest.NewRecorder()
	hc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	hc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCheckHealth(t *testing.T) {
	results := NewHealthChecker(memory.NewStore(), nil, nil).CheckHealth()
	assert.Equal(t, "OK", results["storage"])
	assert.Equal(t, "NOT_AVAILABLE", results["redis"])
	assert.NotEmpty(t, results["timestamp"])

	results = NewHealthChecker(memory.NewStore(), stubPinger{}, nil).CheckHealth()
	assert.Equal(t, "OK", results["redis"])
}
