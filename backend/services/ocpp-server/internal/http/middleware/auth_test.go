package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAuthMiddleware(t *testing.T) {
	var gotID int64
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := OperatorIDFromContext(r.Context())
		require.True(t, ok)
		gotID = id
		w.WriteHeader(http.StatusNoContent)
	})
	handler := AuthMiddleware("secret")(next)
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name   string
		header string
		want   int
		wantID int64
	}{
		{"missing header", "", http.StatusUnauthorized, 0},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, 0},
		{"bad signature", "Bearer " + signToken(t, "other", jwt.MapClaims{"id": 1, "exp": exp}), http.StatusUnauthorized, 0},
		{"expired", "Bearer " + signToken(t, "secret", jwt.MapClaims{"id": 1, "exp": time.Now().Add(-time.Hour).Unix()}), http.StatusUnauthorized, 0},
		{"no operator id", "Bearer " + signToken(t, "secret", jwt.MapClaims{"exp": exp}), http.StatusUnauthorized, 0},
		{"id claim", "Bearer " + signToken(t, "secret", jwt.MapClaims{"id": 7, "exp": exp}), http.StatusNoContent, 7},
		{"user_id string claim", "bearer " + signToken(t, "secret", jwt.MapClaims{"user_id": "12", "exp": exp}), http.StatusNoContent, 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotID = 0
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, tt.wantID, gotID)
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := LoggingMiddleware(zap.NewNop())(RecoveryMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
