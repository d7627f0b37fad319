package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/stockledger/internal/domain"
)

type checkFunc func(ctx context.Context) error

func (f checkFunc) Check(ctx context.Context) error { return f(ctx) }
func (f checkFunc) Ping(ctx context.Context) error  { return f(ctx) }

func ok(context.Context) error { return nil }

func TestHealthHandler_Liveness(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(nil, nil).Liveness(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthHandler_Readiness(t *testing.T) {
	tests := []struct {
		name   string
		store  checkFunc
		redis  Pinger
		status int
		redisS string
	}{
		{"all up", ok, checkFunc(ok), http.StatusOK, "ok"},
		{"redis disabled", ok, nil, http.StatusOK, "disabled"},
		{"store down", func(context.Context) error { return domain.ErrTemporarilyUnavailable }, checkFunc(ok), http.StatusServiceUnavailable, ""},
		{"redis down", ok, checkFunc(func(context.Context) error { return errors.New("refused") }), http.StatusServiceUnavailable, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthHandler(tt.store, tt.redis).Readiness(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

			require.Equal(t, tt.status, rec.Code)
			if tt.status != http.StatusOK {
				return
			}
			var body map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, "ready", body["status"])
			assert.Equal(t, tt.redisS, body["redis"])
		})
	}
}
