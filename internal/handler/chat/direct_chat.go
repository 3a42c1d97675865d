package chat

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// DirectChat 直接使用本地模型对话
// @Summary      本地模型对话
// @Description  不经过 agent server，直接使用配置的本地模型回答，携带对话历史
// @Tags         对话
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      model.ChatRequest   true  "对话请求"
// @Success      200      {object}  model.ChatResponse
// @Failure      400      {object}  ErrorResponse  "请求参数错误"
// @Failure      401      {object}  ErrorResponse  "未授权"
// @Failure      500      {object}  ErrorResponse  "模型调用失败"
// @Failure      503      {object}  ErrorResponse  "未配置本地模型"
// @Router       /api/v1/chat [post]
func (h *Handler) DirectChat(c *gin.Context) {
	req, p, ok := bindRequest(c)
	if !ok {
		return
	}

	resp, err := h.chatService.DirectChat(c.Request.Context(), p, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
