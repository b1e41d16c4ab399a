package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trade-ledger/internal/config"
	"github.com/trade-ledger/internal/service"
)

func newRouter(auth *service.AuthService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLoggerMiddleware(zerolog.Nop()))
	r.GET("/me", AuthMiddleware(auth), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": GetUserID(c), "username": GetUsername(c)})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	auth := service.NewAuthService(config.JWTConfig{Secret: "test-secret", ExpireHours: 1})
	router := newRouter(auth)

	token, err := auth.GenerateToken(42, "trader")
	require.NoError(t, err)

	other := service.NewAuthService(config.JWTConfig{Secret: "other-secret", ExpireHours: 1})
	forged, err := other.GenerateToken(42, "trader")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + forged.AccessToken, http.StatusUnauthorized},
		{"valid token", "Bearer " + token.AccessToken, http.StatusOK},
		{"lowercase scheme", "bearer " + token.AccessToken, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.JSONEq(t, `{"user_id":42,"username":"trader"}`, w.Body.String())
			}
		})
	}
}

func TestGetUserIDWithoutAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Zero(t, GetUserID(c))
	assert.Empty(t, GetUsername(c))
}
