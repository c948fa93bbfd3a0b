package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func serve(e *echo.Echo, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitBlocksClient(t *testing.T) {
	limiter := NewRateLimiter(1, 1)
	limiter.SetEndpointLimit("/tight", rate.Every(time.Hour), 2)

	e := echo.New()
	e.Use(limiter.RateLimit())
	e.GET("/tight", okHandler)
	e.GET("/other", okHandler)
	e.GET("/health", okHandler)

	client := map[string]string{echo.HeaderXRealIP: "10.0.0.1"}
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/tight", client).Code)
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/tight", client).Code)

	rec := serve(e, http.MethodGet, "/tight", client)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "retryAfter")

	// The whole client is blocked, not only the exhausted route.
	assert.Equal(t, http.StatusTooManyRequests, serve(e, http.MethodGet, "/other", client).Code)
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/health", client).Code)

	other := map[string]string{echo.HeaderXRealIP: "10.0.0.2"}
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/tight", other).Code)
}

func TestSecurityHeaders(t *testing.T) {
	e := echo.New()
	e.Use(SecurityHeaders())
	e.GET("/", okHandler)

	rec := serve(e, http.MethodGet, "/", nil)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestJWTMiddleware(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	e := echo.New()
	g := e.Group("", JWTMiddleware("secret", logger))
	g.GET("/me", func(c echo.Context) error {
		return c.String(http.StatusOK, GetUserIDFromToken(c)+"/"+ExtractUserType(c))
	}, RequireParticipant())
	g.GET("/admin", okHandler, RequireUserType(UserTypeAdmin))

	userToken, err := GenerateJWT("secret", "p-1", "p1@example.com", "user", time.Hour)
	require.NoError(t, err)
	bearer := map[string]string{echo.HeaderAuthorization: "Bearer " + userToken}

	rec := serve(e, http.MethodGet, "/me", bearer)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "p-1/user", rec.Body.String())

	assert.Equal(t, http.StatusForbidden, serve(e, http.MethodGet, "/admin", bearer).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/me", nil).Code)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &JwtCustomClaims{
		UserID:         "p-1",
		UserType:       "user",
		StandardClaims: jwt.StandardClaims{ExpiresAt: time.Now().Add(-time.Minute).Unix()},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/me", map[string]string{echo.HeaderAuthorization: "Bearer " + expired}).Code)

	noUser, err := GenerateJWT("secret", "", "", UserTypeAdmin, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/admin", map[string]string{echo.HeaderAuthorization: "Bearer " + noUser}).Code)

	_, err = GenerateJWT("", "p-1", "", "user", time.Hour)
	assert.Error(t, err)
}

func TestJWTMiddlewareWithoutSecret(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	e := echo.New()
	e.GET("/me", okHandler, JWTMiddleware("", logger))
	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/me", nil).Code)
}
