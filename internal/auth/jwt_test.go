package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "memory-secret-32-chars-long!!!!!"

func TestTokenManager_GenerateAndValidate(t *testing.T) {
	mgr := NewTokenManager(testSecret, "usermemory", 15*time.Minute)

	t.Run("round trip", func(t *testing.T) {
		token, err := mgr.GenerateToken("user-123")
		require.NoError(t, err)
		assert.NotEmpty(t, token)

		claims, err := mgr.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, "user-123", claims.UserID)
		assert.Equal(t, "usermemory", claims.Issuer)
	})

	t.Run("invalid token fails validation", func(t *testing.T) {
		_, err := mgr.ValidateToken("invalid-token")
		assert.Error(t, err)
	})

	t.Run("wrong secret fails", func(t *testing.T) {
		other := NewTokenManager("another-secret-32-chars-long!!!!", "usermemory", time.Minute)
		token, err := other.GenerateToken("user-1")
		require.NoError(t, err)
		_, err = mgr.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("wrong issuer fails", func(t *testing.T) {
		other := NewTokenManager(testSecret, "someone-else", time.Minute)
		token, err := other.GenerateToken("user-1")
		require.NoError(t, err)
		_, err = mgr.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("expired token fails", func(t *testing.T) {
		short := NewTokenManager(testSecret, "usermemory", -1*time.Second)
		token, err := short.GenerateToken("user-exp")
		require.NoError(t, err)
		_, err = short.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("subject fallback", func(t *testing.T) {
		raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   "user-sub",
			Issuer:    "usermemory",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		})
		signed, err := raw.SignedString([]byte(testSecret))
		require.NoError(t, err)

		claims, err := mgr.ValidateToken(signed)
		require.NoError(t, err)
		assert.Equal(t, "user-sub", claims.UserID)
	})

	t.Run("missing user id fails", func(t *testing.T) {
		raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Issuer:    "usermemory",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		})
		signed, err := raw.SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = mgr.ValidateToken(signed)
		assert.ErrorIs(t, err, ErrMissingSubject)
	})
}

func TestMiddleware(t *testing.T) {
	mgr := NewTokenManager(testSecret, "", time.Minute)
	var gotUser string
	handler := Middleware(mgr)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = GetUserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Token abc")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token sets user", func(t *testing.T) {
		token, err := mgr.GenerateToken("user-42")
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "user-42", gotUser)
	})
}
