package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestSecureHeadersMiddleware ensures the security headers are consistently applied.
func TestSecureHeadersMiddleware(t *testing.T) {
	h := &Handler{}
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodPost, "/api/generate", nil)
	rw := httptest.NewRecorder()
	h.secureHeaders(final).ServeHTTP(rw, req)
	res := rw.Result()
	checks := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"Referrer-Policy":         "no-referrer",
		"Cache-Control":           "no-store",
		"Pragma":                  "no-cache",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
	}
	for k, expect := range checks {
		if got := res.Header.Get(k); got != expect {
			t.Fatalf("header %s mismatch\nexpected: %s\nactual:   %s", k, expect, got)
		}
	}
}
