package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestAPIKeyMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name    string
		apiKey  string
		target  string
		header  string
		upgrade bool
		want    int
	}{
		{name: "disabled", target: "/", want: http.StatusOK},
		{name: "missing", apiKey: "k", target: "/", want: http.StatusUnauthorized},
		{name: "wrong", apiKey: "k", target: "/", header: "x", want: http.StatusForbidden},
		{name: "valid", apiKey: "k", target: "/", header: "k", want: http.StatusOK},
		{name: "query ignored without upgrade", apiKey: "k", target: "/?api_key=k", want: http.StatusUnauthorized},
		{name: "query on websocket upgrade", apiKey: "k", target: "/?api_key=k", upgrade: true, want: http.StatusOK},
		{name: "wrong query on upgrade", apiKey: "k", target: "/?api_key=x", upgrade: true, want: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(APIKeyMiddleware(tt.apiKey))
			r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set(HeaderName, tt.header)
			}
			if tt.upgrade {
				req.Header.Set("Upgrade", "websocket")
			}
			recorder := httptest.NewRecorder()
			r.ServeHTTP(recorder, req)

			if recorder.Code != tt.want {
				t.Errorf("status = %d, want %d", recorder.Code, tt.want)
			}
		})
	}
}
