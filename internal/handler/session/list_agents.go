package session

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"intellisurf/internal/model"
)

// ListAgents 列出 agent server 上可用的 agent
// @Summary      可用 agent 列表
// @Description  agent server 不可用时返回空列表
// @Tags         Session
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  model.AgentsResponse
// @Router       /api/v1/adk-agents [get]
func (h *Handler) ListAgents(c *gin.Context) {
	c.JSON(http.StatusOK, model.AgentsResponse{
		Agents: h.sessionService.ListAgents(c.Request.Context()),
	})
}
