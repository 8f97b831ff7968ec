package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/storefront-api/internal/metrics"
)

const secret = "test-secret"

func init() { gin.SetMode(gin.TestMode) }

func signToken(t *testing.T, key string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return token
}

func claimsFor(userID uuid.UUID, role string) jwt.MapClaims {
	return jwt.MapClaims{"sub": userID.String(), "role": role, "exp": time.Now().Add(time.Hour).Unix()}
}

func TestRequire(t *testing.T) {
	userID := uuid.New()
	customer := signToken(t, secret, claimsFor(userID, "customer"))
	admin := signToken(t, secret, claimsFor(userID, "admin"))
	expired := signToken(t, secret, jwt.MapClaims{"sub": userID.String(), "role": "admin", "exp": time.Now().Add(-time.Minute).Unix()})
	noExp := signToken(t, secret, jwt.MapClaims{"sub": userID.String(), "role": "admin"})
	badSub := signToken(t, secret, jwt.MapClaims{"sub": "nope", "exp": time.Now().Add(time.Hour).Unix()})
	wrongKey := signToken(t, "other", claimsFor(userID, "admin"))

	tests := []struct {
		name   string
		policy Policy
		auth   string
		want   int
	}{
		{"public without token", Public, "", http.StatusOK},
		{"authenticated without token", Authenticated, "", http.StatusUnauthorized},
		{"authenticated wrong scheme", Authenticated, "Basic " + customer, http.StatusUnauthorized},
		{"authenticated ok", Authenticated, "Bearer " + customer, http.StatusOK},
		{"expired", Authenticated, "Bearer " + expired, http.StatusUnauthorized},
		{"missing exp", Authenticated, "Bearer " + noExp, http.StatusUnauthorized},
		{"bad subject", Authenticated, "Bearer " + badSub, http.StatusUnauthorized},
		{"wrong key", Authenticated, "Bearer " + wrongKey, http.StatusUnauthorized},
		{"admin route customer token", RoleOnly("admin"), "Bearer " + customer, http.StatusForbidden},
		{"admin route admin token", RoleOnly("admin"), "Bearer " + admin, http.StatusOK},
		{"admin route without token", RoleOnly("admin"), "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			var seen uuid.UUID
			r.GET("/x", Require(tt.policy, secret), func(c *gin.Context) {
				seen = GetUserID(c)
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK && tt.policy != Public {
				assert.Equal(t, userID, seen)
			}
		})
	}
}

func TestAuthMiddleware_SetsRole(t *testing.T) {
	r := gin.New()
	var role string
	r.GET("/x", AuthMiddleware(secret), func(c *gin.Context) {
		role = GetUserRole(c)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, secret, claimsFor(uuid.New(), "admin")))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "admin", role)
}

func TestPolicyString(t *testing.T) {
	assert.Equal(t, "public", Public.String())
	assert.Equal(t, "authenticated", Authenticated.String())
	assert.Equal(t, "role:admin", RoleOnly("admin").String())
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "abc-123", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	_, err := uuid.Parse(w.Header().Get(RequestIDHeader))
	assert.NoError(t, err)
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	r := gin.New()
	r.Use(RequestID(), RequestLogger(log))
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	req := httptest.NewRequest(http.MethodGet, "/items/42", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	r.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	assert.Contains(t, out, `"level":"ERROR"`)
	assert.Contains(t, out, `"route":"/items/:id"`)
	assert.Contains(t, out, `"path":"/items/42"`)
	assert.Contains(t, out, `"status":500`)
	assert.Contains(t, out, `"request_id":"req-1"`)
}

func TestMetrics_LabelsByRouteTemplate(t *testing.T) {
	r := gin.New()
	r.Use(Metrics())
	r.GET("/metrics-test/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/metrics-test/:id", "200")
	before := testutil.ToFloat64(counter)
	for _, id := range []string{"1", "2", "3"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics-test/"+id, nil))
	}
	assert.Equal(t, before+3, testutil.ToFloat64(counter))

	unmatched := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "404")
	before = testutil.ToFloat64(unmatched)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, before+1, testutil.ToFloat64(unmatched))
}
