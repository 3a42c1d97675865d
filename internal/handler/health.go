package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Check 就绪检查项
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// HealthHandler 健康检查处理器
type HealthHandler struct {
	checks []Check
}

// NewHealthHandler 创建健康检查处理器，checks 为可选依赖（MongoDB、Redis 等）
func NewHealthHandler(checks ...Check) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Health 健康检查
// @Summary      健康检查
// @Tags         系统
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Ready 就绪检查，任一依赖不可用时返回 503
// @Summary      就绪检查
// @Tags         系统
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}
// @Router       /ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	components := make(map[string]string, len(h.checks))
	ready := true
	for _, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("component", check.Name).Msg("readiness check failed")
			components[check.Name] = err.Error()
			ready = false
			continue
		}
		components[check.Name] = "ok"
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "not_ready",
			"components": components,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "ready",
		"components": components,
	})
}
