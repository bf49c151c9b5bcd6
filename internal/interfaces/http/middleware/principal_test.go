package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mealtracker/backend/internal/domain/identity"
	"github.com/mealtracker/backend/internal/infrastructure/auth"
	"github.com/mealtracker/backend/internal/infrastructure/config"
	"github.com/mealtracker/backend/internal/infrastructure/logger"
	"github.com/mealtracker/backend/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-at-least-32-chars"

func newJWTService(expiration time.Duration) *auth.JWTService {
	return auth.NewJWTService(config.JWTConfig{
		Secret:                testSecret,
		Issuer:                "catalog-test",
		AccessTokenExpiration: expiration,
	})
}

type failingRevocationList struct{}

func (failingRevocationList) Revoke(context.Context, string, time.Duration) error {
	return errors.New("redis down")
}

func (failingRevocationList) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

type whoami struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	Logged   string   `json:"logged"`
}

func newPrincipalRouter(revocations auth.RevocationList) *gin.Engine {
	router := gin.New()
	router.Use(RequestID(), PrincipalResolver(PrincipalResolverConfig{
		JWTService:  newJWTService(15 * time.Minute),
		Revocations: revocations,
	}))
	router.GET("/whoami", func(c *gin.Context) {
		p := GetPrincipal(c)
		if p == nil {
			c.JSON(http.StatusOK, whoami{})
			return
		}
		roles := make([]string, len(p.Roles))
		for i, r := range p.Roles {
			roles[i] = string(r)
		}
		c.JSON(http.StatusOK, whoami{Username: p.Username, Roles: roles, Logged: logger.GetUsername(c.Request.Context())})
	})
	return router
}

func call(router *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if authHeader != "" {
		req.Header.Set(AuthHeaderKey, authHeader)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestPrincipalResolver_Anonymous(t *testing.T) {
	w := call(newPrincipalRouter(nil), "")

	require.Equal(t, http.StatusOK, w.Code)
	var body whoami
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Empty(t, body.Username)
}

func TestPrincipalResolver_ValidToken(t *testing.T) {
	token, _, err := newJWTService(15*time.Minute).GenerateAccessToken("alice", "ROLE_USER")
	require.NoError(t, err)

	w := call(newPrincipalRouter(nil), BearerPrefix+token)

	require.Equal(t, http.StatusOK, w.Code)
	var body whoami
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "alice", body.Username)
	assert.Equal(t, []string{"USER"}, body.Roles)
	assert.Equal(t, "alice", body.Logged)
}

func TestPrincipalResolver_Rejections(t *testing.T) {
	expired, _, err := newJWTService(-time.Minute).GenerateAccessToken("alice", "USER")
	require.NoError(t, err)

	tests := []struct {
		name    string
		header  string
		message string
	}{
		{"not a bearer token", "Basic YWxpY2U6c2VjcmV0", "Invalid token"},
		{"empty bearer token", "Bearer ", "Invalid token"},
		{"garbage", "Bearer not-a-jwt", "Invalid token"},
		{"expired", BearerPrefix + expired, "Token has expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := call(newPrincipalRouter(nil), tt.header)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			var resp dto.Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.Equal(t, dto.ErrCodeUnauthorized, resp.Error.Code)
			assert.Equal(t, tt.message, resp.Error.Message)
			assert.NotEmpty(t, resp.Error.RequestID)
		})
	}
}

func TestPrincipalResolver_RevokedToken(t *testing.T) {
	svc := newJWTService(15 * time.Minute)
	token, _, err := svc.GenerateAccessToken("alice", "USER")
	require.NoError(t, err)
	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)

	revocations := auth.NewInMemoryRevocationList()
	require.NoError(t, revocations.Revoke(context.Background(), claims.ID, claims.RemainingTTL()))

	w := call(newPrincipalRouter(revocations), BearerPrefix+token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Token has been revoked")
}

func TestPrincipalResolver_RevocationCheckFailsOpen(t *testing.T) {
	token, _, err := newJWTService(15*time.Minute).GenerateAccessToken("alice", "USER")
	require.NoError(t, err)

	w := call(newPrincipalRouter(failingRevocationList{}), BearerPrefix+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alice")
}

func TestRequireRole(t *testing.T) {
	svc := newJWTService(15 * time.Minute)
	router := gin.New()
	router.Use(PrincipalResolver(PrincipalResolverConfig{JWTService: svc}))
	router.GET("/admin", RequireRole(identity.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	adminToken, _, err := svc.GenerateAccessToken("root", "ADMIN")
	require.NoError(t, err)
	userToken, _, err := svc.GenerateAccessToken("alice", "USER")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"user", BearerPrefix + userToken, http.StatusForbidden},
		{"admin", BearerPrefix + adminToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set(AuthHeaderKey, tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
