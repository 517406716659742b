package handlers

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

func TestOriginFilter(t *testing.T) {
	tests := []struct {
		name        string
		allowed     []string
		method      string
		origin      string
		wantStatus  int
		wantAllowed string
	}{
		{name: "no origin", allowed: []string{"https://a.example"}, method: http.MethodGet, wantStatus: http.StatusOK},
		{name: "allowed origin", allowed: []string{"https://a.example"}, method: http.MethodGet, origin: "https://a.example", wantStatus: http.StatusOK, wantAllowed: "https://a.example"},
		{name: "foreign origin", allowed: []string{"https://a.example"}, method: http.MethodGet, origin: "https://b.example", wantStatus: http.StatusForbidden},
		{name: "wildcard", allowed: []string{"*"}, method: http.MethodGet, origin: "https://b.example", wantStatus: http.StatusOK, wantAllowed: "https://b.example"},
		{name: "preflight", allowed: []string{"https://a.example"}, method: http.MethodOptions, origin: "https://a.example", wantStatus: http.StatusNoContent, wantAllowed: "https://a.example"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(OriginFilter(tt.allowed))
			router.Handle(tt.method, "/x", func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(tt.method, "/x", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantAllowed, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}
