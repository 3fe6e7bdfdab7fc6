package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret, uid string, perms []string) string {
	t.Helper()
	claims := JWTClaims{
		UserID:      uid,
		Permissions: perms,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := append(mw, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString("user_id")})
	})
	r.GET("/x", handlers...)
	return r
}

func get(r *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuth(t *testing.T) {
	r := newRouter(JWTAuth(testSecret))

	w := get(r, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)

	w = get(r, signToken(t, "other-secret", "u1", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = get(r, signToken(t, testSecret, "u1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":"u1"`)
}

func TestJWTAuthQueryToken(t *testing.T) {
	r := newRouter(JWTAuth(testSecret))
	req := httptest.NewRequest(http.MethodGet, "/x?token="+signToken(t, testSecret, "u2", nil), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOptionalJWTAuth(t *testing.T) {
	r := newRouter(OptionalJWTAuth(testSecret))

	w := get(r, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":""`)

	w = get(r, "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = get(r, signToken(t, testSecret, "u3", nil))
	assert.Contains(t, w.Body.String(), `"user_id":"u3"`)
}

func TestRequirePermission(t *testing.T) {
	r := newRouter(JWTAuth(testSecret), RequirePermission("pdm:admin"))

	assert.Equal(t, http.StatusForbidden, get(r, signToken(t, testSecret, "u", []string{"pdm:read"})).Code)
	assert.Equal(t, http.StatusOK, get(r, signToken(t, testSecret, "u", []string{"pdm:admin"})).Code)
	assert.Equal(t, http.StatusOK, get(r, signToken(t, testSecret, "u", []string{"*"})).Code)

	anon := newRouter(RequirePermission("pdm:admin"))
	assert.Equal(t, http.StatusForbidden, get(anon, "").Code)
}

func TestRequestID(t *testing.T) {
	r := newRouter(RequestID())
	w := get(r, "")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-ID", "fixed")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "fixed", w.Header().Get("X-Request-ID"))
}
