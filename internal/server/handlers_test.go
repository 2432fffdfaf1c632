package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/writepro/writepro/internal/models"
)

func newTestServer() *Server {
	return New(Config{
		Host:         "127.0.0.1",
		Port:         0,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}, nil, nil, nil, zap.NewNop())
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestAPIRequiresUserHeader(t *testing.T) {
	srv := newTestServer()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/credits", nil)
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCORSPreflights(t *testing.T) {
	srv := newTestServer()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/documents", nil)
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestOrderActions(t *testing.T) {
	tests := []struct {
		status string
		want   []string
	}{
		{models.OrderStatusPending, []string{"CANCEL", "PAY"}},
		{models.OrderStatusPaid, []string{"CANCEL", "REFUND", "START_PROCESSING"}},
		{models.OrderStatusProcessing, []string{"COMPLETE", "REFUND"}},
		{models.OrderStatusCompleted, []string{}},
		{models.OrderStatusCancelled, []string{}},
		{models.OrderStatusRefunded, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			assert.Equal(t, tt.want, orderActions(tt.status))
		})
	}
}
