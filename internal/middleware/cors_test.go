package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"llm-gateway-go/internal/config"
)

func newCORSEcho(cfg config.CORSConfig) *echo.Echo {
	e := echo.New()
	e.Use(CORSGate(cfg))
	e.Any("/api/openai/*", func(c echo.Context) error {
		return c.String(http.StatusOK, "forwarded")
	})
	return e
}

func TestCORSGate(t *testing.T) {
	listed := config.CORSConfig{AllowedOrigins: []string{"https://app.example.com", " https://admin.example.com "}}

	tests := []struct {
		name       string
		cfg        config.CORSConfig
		method     string
		origin     string
		wantStatus int
		wantBody   string
		wantACAO   string
	}{
		{"no list passes", config.CORSConfig{}, http.MethodPost, "https://evil.example.com", http.StatusOK, "forwarded", ""},
		{"no list no origin", config.CORSConfig{}, http.MethodPost, "", http.StatusOK, "forwarded", ""},
		{"allow all adds wildcard", config.CORSConfig{AllowAll: true}, http.MethodPost, "https://x.example.com", http.StatusOK, "forwarded", "*"},
		{"listed origin", listed, http.MethodPost, "https://app.example.com", http.StatusOK, "forwarded", "https://app.example.com"},
		{"trimmed origin", listed, http.MethodPost, "https://admin.example.com", http.StatusOK, "forwarded", "https://admin.example.com"},
		{"unlisted origin", listed, http.MethodPost, "https://evil.example.com", http.StatusForbidden, "", ""},
		{"missing origin", listed, http.MethodPost, "", http.StatusForbidden, "", ""},
		{"unlisted preflight", listed, http.MethodOptions, "https://evil.example.com", http.StatusForbidden, "", ""},
		{"listed preflight", listed, http.MethodOptions, "https://app.example.com", http.StatusOK, "", "https://app.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newCORSEcho(tt.cfg)
			req := httptest.NewRequest(tt.method, "/api/openai/v1/chat/completions", http.NoBody)
			if tt.origin != "" {
				req.Header.Set(echo.HeaderOrigin, tt.origin)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
			if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != tt.wantACAO {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantACAO)
			}
		})
	}
}

func TestCORSGate_PreflightHeaders(t *testing.T) {
	e := newCORSEcho(config.CORSConfig{AllowedOrigins: []string{"https://app.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/openai/v1/chat/completions", http.NoBody)
	req.Header.Set(echo.HeaderOrigin, "https://app.example.com")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	want := map[string]string{
		echo.HeaderAccessControlAllowMethods: "*",
		echo.HeaderAccessControlAllowHeaders: "*",
		echo.HeaderAccessControlMaxAge:       "86400",
	}
	for k, v := range want {
		if got := rec.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}
