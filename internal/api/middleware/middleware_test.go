package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/vibematch/internal/metrics"
)

const secret = "test-secret"

func sign(t *testing.T, claims jwt.MapClaims, key string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return s
}

func adminRouter(cfg JWTConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin", JWTAuth(cfg), RequireAdmin(), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("user_id"))
	})
	return r
}

func call(r *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuth(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	cfg := JWTConfig{Secret: secret, Issuer: "vibematch", Audience: "ops"}
	r := adminRouter(cfg)

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"garbage", "not-a-jwt", http.StatusUnauthorized},
		{"wrong key", sign(t, jwt.MapClaims{"sub": "u1", "role": "admin", "iss": "vibematch", "aud": "ops", "exp": exp}, "other"), http.StatusUnauthorized},
		{"expired", sign(t, jwt.MapClaims{"sub": "u1", "role": "admin", "iss": "vibematch", "aud": "ops", "exp": time.Now().Add(-time.Minute).Unix()}, secret), http.StatusUnauthorized},
		{"wrong issuer", sign(t, jwt.MapClaims{"sub": "u1", "role": "admin", "iss": "x", "aud": "ops", "exp": exp}, secret), http.StatusUnauthorized},
		{"wrong audience", sign(t, jwt.MapClaims{"sub": "u1", "role": "admin", "iss": "vibematch", "aud": "web", "exp": exp}, secret), http.StatusUnauthorized},
		{"no subject", sign(t, jwt.MapClaims{"role": "admin", "iss": "vibematch", "aud": "ops", "exp": exp}, secret), http.StatusUnauthorized},
		{"plain user", sign(t, jwt.MapClaims{"sub": "u1", "iss": "vibematch", "aud": "ops", "exp": exp}, secret), http.StatusForbidden},
		{"admin role", sign(t, jwt.MapClaims{"sub": "u1", "role": "admin", "iss": "vibematch", "aud": "ops", "exp": exp}, secret), http.StatusOK},
		{"app metadata wins", sign(t, jwt.MapClaims{"sub": "u1", "role": "user", "app_metadata": map[string]any{"role": "Admin"}, "iss": "vibematch", "aud": "ops", "exp": exp}, secret), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := call(r, tt.token)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.status == http.StatusOK {
				assert.Equal(t, "u1", w.Body.String())
			}
		})
	}
}

func TestJWTAuthWithoutSecret(t *testing.T) {
	w := call(adminRouter(JWTConfig{}), "anything")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRequireRoleMessage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", func(c *gin.Context) { c.Set("role", "user") }, RequireRole("admin", "operator"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"code":"FORBIDDEN","message":"role \"user\" may not access this route"}`, w.Body.String())
}

func TestRequestLoggerCountsRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetOutput(io.Discard)
	m := metrics.New("test")

	r := gin.New()
	r.Use(RequestLogger(log, m))
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, path := range []string{"/items/1", "/items/2", "/missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	assert.Contains(t, body, `http_requests_total{code="204",method="GET",route="/items/:id",service="test"} 2`)
	assert.Contains(t, body, `route="unmatched"`)
}
