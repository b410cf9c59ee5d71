package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func router(key string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(APIKeyMiddleware(key))
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, Scheme(c)) })
	return r
}

func TestAPIKeyMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		headers    map[string]string
		wantStatus int
		wantScheme string
	}{
		{"x-api-key", "secret", map[string]string{"x-api-key": "secret"}, http.StatusOK, "api-key"},
		{"bearer", "secret", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK, "bearer"},
		{"bearer lower case", "secret", map[string]string{"Authorization": "bearer secret"}, http.StatusOK, "bearer"},
		{"wrong key", "secret", map[string]string{"x-api-key": "nope"}, http.StatusUnauthorized, ""},
		{"basic scheme", "secret", map[string]string{"Authorization": "Basic secret"}, http.StatusUnauthorized, ""},
		{"missing", "secret", nil, http.StatusUnauthorized, ""},
		{"disabled", "", nil, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			router(tt.key).ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Code == http.StatusOK && rec.Body.String() != tt.wantScheme {
				t.Fatalf("scheme = %q, want %q", rec.Body.String(), tt.wantScheme)
			}
		})
	}
}
