package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func corsRouter(cfg CORSConfig) *gin.Engine {
	router := gin.New()
	router.Use(CORSWithConfig(cfg))
	router.GET("/sequences", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return router
}

func TestCORSWithConfig(t *testing.T) {
	t.Run("allows whitelisted origin", func(t *testing.T) {
		router := corsRouter(CORSConfig{
			AllowOrigins:     []string{"http://localhost:3000"},
			AllowMethods:     []string{"GET", "POST"},
			AllowHeaders:     []string{"Content-Type"},
			AllowCredentials: true,
		})

		req := httptest.NewRequest("GET", "/sequences", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("rejects origin outside the whitelist", func(t *testing.T) {
		router := corsRouter(CORSConfig{
			AllowOrigins: []string{"http://allowed.example.com"},
		})

		req := httptest.NewRequest("GET", "/sequences", nil)
		req.Header.Set("Origin", "http://other.example.com")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("empty whitelist keeps cross-origin closed", func(t *testing.T) {
		router := corsRouter(CORSConfig{
			AllowOrigins: []string{},
			AllowMethods: []string{"GET"},
		})

		req := httptest.NewRequest("GET", "/sequences", nil)
		req.Header.Set("Origin", "http://any.example.com")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("wildcard allows any origin without credentials", func(t *testing.T) {
		router := corsRouter(CORSConfig{
			AllowOrigins:     []string{"*"},
			AllowMethods:     []string{"GET"},
			AllowCredentials: true,
		})

		req := httptest.NewRequest("GET", "/sequences", nil)
		req.Header.Set("Origin", "http://any.example.com")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("answers preflight with 204 and CORS headers", func(t *testing.T) {
		router := corsRouter(CORSConfig{
			AllowOrigins: []string{"http://localhost:3000"},
			AllowMethods: []string{"GET", "POST", "PATCH"},
			AllowHeaders: []string{"Content-Type", "X-Tenant-ID"},
		})

		req := httptest.NewRequest("OPTIONS", "/sequences", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "GET, POST, PATCH", w.Header().Get("Access-Control-Allow-Methods"))
		assert.Equal(t, "Content-Type, X-Tenant-ID", w.Header().Get("Access-Control-Allow-Headers"))
	})

	t.Run("answers preflight from disallowed origin without headers", func(t *testing.T) {
		router := corsRouter(CORSConfig{
			AllowOrigins: []string{"http://allowed.example.com"},
			AllowMethods: []string{"GET"},
		})

		req := httptest.NewRequest("OPTIONS", "/sequences", nil)
		req.Header.Set("Origin", "http://other.example.com")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("renders Max-Age in seconds", func(t *testing.T) {
		router := corsRouter(CORSConfig{
			AllowOrigins: []string{"http://localhost:3000"},
			AllowMethods: []string{"GET"},
			MaxAge:       12 * time.Hour,
		})

		req := httptest.NewRequest("GET", "/sequences", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "43200", w.Header().Get("Access-Control-Max-Age"))
	})

	t.Run("exposes configured headers", func(t *testing.T) {
		router := corsRouter(CORSConfig{
			AllowOrigins:  []string{"http://localhost:3000"},
			AllowMethods:  []string{"GET"},
			ExposeHeaders: []string{RequestIDHeader},
		})

		req := httptest.NewRequest("GET", "/sequences", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, RequestIDHeader, w.Header().Get("Access-Control-Expose-Headers"))
	})
}

func TestDefaultCORSConfig(t *testing.T) {
	cfg := DefaultCORSConfig()

	assert.Empty(t, cfg.AllowOrigins, "cross-origin access must be opt-in")
	assert.Contains(t, cfg.AllowMethods, "PATCH")
	assert.Contains(t, cfg.AllowHeaders, "X-Tenant-ID")
	assert.Contains(t, cfg.AllowHeaders, "X-Idempotency-Key")
	assert.Contains(t, cfg.ExposeHeaders, RequestIDHeader)
	assert.Equal(t, 12*time.Hour, cfg.MaxAge)
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/sequences", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("request_id"))
	})

	t.Run("generates an id when the caller sends none", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/sequences", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
		assert.Equal(t, w.Header().Get(RequestIDHeader), w.Body.String())
	})

	t.Run("keeps the id supplied by the caller", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/sequences", nil)
		req.Header.Set(RequestIDHeader, "caller-supplied-id")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "caller-supplied-id", w.Header().Get(RequestIDHeader))
		assert.Equal(t, "caller-supplied-id", w.Body.String())
	})

	t.Run("each request gets a distinct id", func(t *testing.T) {
		first := httptest.NewRecorder()
		second := httptest.NewRecorder()
		router.ServeHTTP(first, httptest.NewRequest("GET", "/sequences", nil))
		router.ServeHTTP(second, httptest.NewRequest("GET", "/sequences", nil))

		assert.NotEqual(t, first.Header().Get(RequestIDHeader), second.Header().Get(RequestIDHeader))
	})
}

func TestSecure(t *testing.T) {
	router := gin.New()
	router.Use(Secure())
	router.GET("/sequences", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest("GET", "/sequences", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
}
