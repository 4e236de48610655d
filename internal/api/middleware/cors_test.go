package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func corsRouter(allowed string) *gin.Engine {
	r := gin.New()
	r.Use(CORSMiddleware(allowed))
	r.GET("/api/resources", func(c *gin.Context) {
		c.JSON(http.StatusOK, []string{})
	})
	r.POST("/api/resources/:name/notify", func(c *gin.Context) {
		c.JSON(http.StatusAccepted, gin.H{"name": c.Param("name")})
	})
	return r
}

func TestCORSMiddleware_Origins(t *testing.T) {
	tests := []struct {
		name        string
		allowed     string
		origin      string
		wantOrigin  string
		wantCreds   string
		wantVary    string
		wantMethods bool
	}{
		{name: "wildcard", allowed: "*", origin: "http://dashboard.local", wantOrigin: "*", wantMethods: true},
		{name: "listed origin", allowed: "http://a.local,http://b.local", origin: "http://b.local", wantOrigin: "http://b.local", wantCreds: "true", wantVary: "Origin", wantMethods: true},
		{name: "trimmed list", allowed: "  http://a.local  ,  http://b.local ", origin: "http://a.local", wantOrigin: "http://a.local", wantCreds: "true", wantVary: "Origin", wantMethods: true},
		{name: "unlisted origin", allowed: "http://a.local", origin: "http://evil.local"},
		{name: "empty list", allowed: "", origin: "http://a.local"},
		{name: "no origin header", allowed: "http://a.local"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/resources", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			corsRouter(tt.allowed).ServeHTTP(w, req)

			// CORS never blocks the request itself
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantCreds, w.Header().Get("Access-Control-Allow-Credentials"))
			assert.Equal(t, tt.wantVary, w.Header().Get("Vary"))
			assert.Equal(t, tt.wantMethods, w.Header().Get("Access-Control-Allow-Methods") != "")
		})
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/resources/book/notify", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()

	corsRouter("*").ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "GET, POST, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Origin, Content-Type, Accept, Authorization", w.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
	assert.Empty(t, w.Body.String())
}

func TestCORSMiddleware_PreflightEchoesRequestedHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/resources/book/notify", nil)
	req.Header.Set("Origin", "http://a.local")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "X-Request-Id, Content-Type")
	w := httptest.NewRecorder()

	corsRouter("http://a.local").ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "X-Request-Id, Content-Type", w.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "http://a.local", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSMiddleware_PreflightFromUnlistedOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/resources/book/notify", nil)
	req.Header.Set("Origin", "http://evil.local")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()

	corsRouter("http://a.local").ServeHTTP(w, req)

	assert.NotEqual(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSMiddleware_ActualPost(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/resources/book/notify", nil)
	req.Header.Set("Origin", "http://a.local")
	w := httptest.NewRecorder()

	corsRouter("http://a.local").ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"name":"book"}`, w.Body.String())
	assert.Equal(t, "http://a.local", w.Header().Get("Access-Control-Allow-Origin"))
}
