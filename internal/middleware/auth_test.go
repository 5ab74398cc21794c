package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTokenMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := TokenMiddleware("secret", ok)

	tests := []struct {
		name   string
		path   string
		header string
		code   int
	}{
		{"static files are public", "/index.html", "", http.StatusOK},
		{"api without token", "/api/status", "", http.StatusUnauthorized},
		{"api with bearer token", "/api/status", "Bearer secret", http.StatusOK},
		{"api with wrong token", "/api/status", "Bearer nope", http.StatusUnauthorized},
		{"websocket query token", "/api/view?token=secret", "", http.StatusOK},
		{"logs are protected", "/logs/error", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.code {
				t.Errorf("expected %d, got %d", tt.code, rec.Code)
			}
		})
	}
}

func TestTokenMiddlewareDisabled(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
	TokenMiddleware("", next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if !called {
		t.Fatal("expected request to pass without a configured token")
	}
}
