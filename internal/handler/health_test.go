package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestHealthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		checks     []Check
		path       string
		wantStatus int
		wantState  string
	}{
		{
			name:       "health",
			path:       "/health",
			wantStatus: http.StatusOK,
			wantState:  "ok",
		},
		{
			name:       "ready without dependencies",
			path:       "/ready",
			wantStatus: http.StatusOK,
			wantState:  "ready",
		},
		{
			name: "ready with healthy dependencies",
			checks: []Check{
				{Name: "mongo", Ping: func(ctx context.Context) error { return nil }},
			},
			path:       "/ready",
			wantStatus: http.StatusOK,
			wantState:  "ready",
		},
		{
			name: "ready with failing dependency",
			checks: []Check{
				{Name: "mongo", Ping: func(ctx context.Context) error { return nil }},
				{Name: "redis", Ping: func(ctx context.Context) error { return errors.New("connection refused") }},
			},
			path:       "/ready",
			wantStatus: http.StatusServiceUnavailable,
			wantState:  "not_ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.checks...)
			r := gin.New()
			r.GET("/health", h.Health)
			r.GET("/ready", h.Ready)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body["status"] != tt.wantState {
				t.Errorf("status field = %v, want %s", body["status"], tt.wantState)
			}
		})
	}
}
