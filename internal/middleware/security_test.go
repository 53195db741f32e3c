package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/memories/identities", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestCORS_WildcardDisablesCredentials(t *testing.T) {
	assert.True(t, CORS([]string{"https://app.example.com"}).AllowCredentials)
	assert.False(t, CORS([]string{"https://app.example.com", "*"}).AllowCredentials)
	assert.Equal(t, []string{"http://localhost:3000"}, CORS(nil).AllowedOrigins)
	assert.Contains(t, CORS(nil).ExposedHeaders, "Retry-After")
}
