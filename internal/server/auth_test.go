package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tjfontaine/polyglot-request-logic/internal/core/ports"
)

type staticAuth struct {
	token   string
	enabled bool
}

func (a *staticAuth) Authenticate(ctx context.Context, token string) (*ports.Caller, error) {
	if token != a.token {
		return nil, errors.New("invalid API key")
	}
	return &ports.Caller{Name: "tester"}, nil
}

func (a *staticAuth) Enabled() bool { return a.enabled }

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		enabled  bool
		header   string
		wantCode int
	}{
		{"valid key", true, "Bearer good", http.StatusOK},
		{"wrong key", true, "Bearer bad", http.StatusUnauthorized},
		{"missing header", true, "", http.StatusUnauthorized},
		{"basic scheme", true, "Basic Z29vZA==", http.StatusUnauthorized},
		{"disabled", false, "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := AuthMiddleware(&staticAuth{token: "good", enabled: tt.enabled})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/v1/history", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantCode == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("expected WWW-Authenticate header")
			}
		})
	}
}

func TestRoutes_AuthGuardsAPIOnly(t *testing.T) {
	s := New(Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)), NewHandler(HandlerConfig{
		Logic:         newFakeLogic(),
		Authenticator: &staticAuth{token: "good", enabled: true},
	}))

	serve := func(path, header string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		s.Router.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := serve("/healthz", ""); code != http.StatusOK {
		t.Errorf("healthz status = %d", code)
	}
	if code := serve("/v1/history", ""); code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d", code)
	}
	// Authenticated, but no history backend.
	if code := serve("/v1/history", "Bearer good"); code != http.StatusNotImplemented {
		t.Errorf("authenticated status = %d", code)
	}
}
