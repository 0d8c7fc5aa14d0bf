package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	allowedOrigins := []string{"http://localhost:4173", "https://store.example.com"}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	corsHandler := CORS(allowedOrigins)(handler)

	tests := []struct {
		name           string
		origin         string
		method         string
		expectCORS     bool
		expectedOrigin string
	}{
		{
			name:           "allowed origin",
			origin:         "http://localhost:4173",
			method:         http.MethodGet,
			expectCORS:     true,
			expectedOrigin: "http://localhost:4173",
		},
		{
			name:           "another allowed origin",
			origin:         "https://store.example.com",
			method:         http.MethodGet,
			expectCORS:     true,
			expectedOrigin: "https://store.example.com",
		},
		{
			name:       "disallowed origin",
			origin:     "http://evil.example",
			method:     http.MethodGet,
			expectCORS: false,
		},
		{
			name:           "preflight request",
			origin:         "http://localhost:4173",
			method:         http.MethodOptions,
			expectCORS:     true,
			expectedOrigin: "http://localhost:4173",
		},
	}

	t.Run("unused header not allowed in preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/call/start", nil)
		req.Header.Set("Origin", "http://localhost:4173")
		req.Header.Set("Access-Control-Request-Method", "POST")
		req.Header.Set("Access-Control-Request-Headers", "X-CSRF-Token")

		rec := httptest.NewRecorder()
		corsHandler.ServeHTTP(rec, req)

		if allowed := rec.Header().Get("Access-Control-Allow-Headers"); allowed != "" {
			t.Errorf("expected the preflight to be refused, got allowed headers %q", allowed)
		}
	})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/call/state", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}

			rec := httptest.NewRecorder()
			corsHandler.ServeHTTP(rec, req)

			if tt.expectCORS {
				acao := rec.Header().Get("Access-Control-Allow-Origin")
				if acao != tt.expectedOrigin {
					t.Errorf("expected Access-Control-Allow-Origin %s, got %s", tt.expectedOrigin, acao)
				}
			} else {
				acao := rec.Header().Get("Access-Control-Allow-Origin")
				if acao != "" {
					t.Errorf("expected no Access-Control-Allow-Origin header, got %s", acao)
				}
			}
		})
	}
}
