package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/fusen-app/fusen/internal/auth"
)

func newAuthRouter(t *testing.T) (*gin.Engine, *iauth.JWTService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	jwt, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "test-secret", Issuer: "fusen"})
	require.NoError(t, err)

	r := gin.New()
	r.Use(Auth(jwt))
	r.GET("/me", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(CtxUserIDKey))
	})
	return r, jwt
}

func TestAuthAcceptsValidBearer(t *testing.T) {
	r, jwt := newAuthRouter(t)

	token, err := jwt.GenerateAccessToken(iauth.AccessTokenInput{UserID: "user-1", Email: "a@example.com"})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "user-1", w.Body.String())
}

func TestAuthRejectsMissingOrBadToken(t *testing.T) {
	r, _ := newAuthRouter(t)

	for _, header := range []string{"", "Bearer ", "Bearer not-a-token", "Basic abc"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusUnauthorized, w.Code, "header %q", header)
	}
}

func TestAuthRejectsForeignSignature(t *testing.T) {
	r, _ := newAuthRouter(t)

	other, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "other-secret", Issuer: "fusen"})
	require.NoError(t, err)
	token, err := other.GenerateAccessToken(iauth.AccessTokenInput{UserID: "user-1"})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}
