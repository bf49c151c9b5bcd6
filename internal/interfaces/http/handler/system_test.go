package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newSystemEngine(h *SystemHandler) *gin.Engine {
	engine := gin.New()
	engine.GET("/health", h.Health)
	engine.GET("/ready", h.Ready)
	return engine
}

func TestSystemHandler_Health(t *testing.T) {
	h := NewSystemHandler("catalog-service", "1.0.0")

	w := performRequest(t, newSystemEngine(h), http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	got := decodeData[HealthResponse](t, w)
	assert.Equal(t, "healthy", got.Status)
	assert.Equal(t, "catalog-service", got.Name)
	assert.NotEmpty(t, got.GoVersion)
	assert.NotEmpty(t, got.Uptime)
}

func TestSystemHandler_Ready(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	t.Run("all dependencies up", func(t *testing.T) {
		h := NewSystemHandler("catalog-service", "1.0.0").
			AddCheck("database", ok).
			AddCheck("redis", ok)

		w := performRequest(t, newSystemEngine(h), http.MethodGet, "/ready", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		got := decodeData[ReadinessResponse](t, w)
		assert.Equal(t, "ready", got.Status)
		assert.Equal(t, map[string]string{"database": "ok", "redis": "ok"}, got.Checks)
	})

	t.Run("a failing dependency", func(t *testing.T) {
		h := NewSystemHandler("catalog-service", "1.0.0").
			AddCheck("database", ok).
			AddCheck("redis", down)

		w := performRequest(t, newSystemEngine(h), http.MethodGet, "/ready", nil)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		resp := decodeResponse(t, w)
		assert.False(t, resp.Success)
		data := resp.Data.(map[string]any)
		assert.Equal(t, "not_ready", data["status"])
		assert.Equal(t, "error", data["checks"].(map[string]any)["redis"])
		assert.NotContains(t, w.Body.String(), "connection refused")
	})

	t.Run("no checks registered", func(t *testing.T) {
		h := NewSystemHandler("catalog-service", "1.0.0")

		w := performRequest(t, newSystemEngine(h), http.MethodGet, "/ready", nil)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}
