package chat

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ADKChat 通过 agent server 对话
// @Summary      Agent 对话
// @Description  将用户输入（及附件描述）转发给 agent server。streaming 为 true 时以 text/event-stream 返回，每行格式为 data: <json>，最后一个片段 done 为 true
// @Tags         对话
// @Accept       json
// @Produce      json
// @Produce      text/event-stream
// @Security     BearerAuth
// @Param        request  body      model.ChatRequest   true  "对话请求"
// @Success      200      {object}  model.ChatResponse  "非流式响应"
// @Failure      400      {object}  ErrorResponse       "请求参数错误"
// @Failure      401      {object}  ErrorResponse       "未授权"
// @Failure      500      {object}  ErrorResponse       "服务器内部错误"
// @Failure      503      {object}  ErrorResponse       "agent server 不可用"
// @Router       /api/v1/adk-chat [post]
func (h *Handler) ADKChat(c *gin.Context) {
	req, p, ok := bindRequest(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()

	if !req.Streaming {
		resp, err := h.chatService.Chat(ctx, p, req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
		return
	}

	chunks, err := h.chatService.ChatStream(ctx, p, req)
	if err != nil {
		writeError(c, err)
		return
	}

	// 设置 SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	// 流式响应可能超过 server.write_timeout，清除写超时
	if err := http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{}); err != nil {
		log.Debug().Err(err).Msg("clear write deadline failed")
	}

	for chunk := range chunks {
		data, err := json.Marshal(chunk)
		if err != nil {
			log.Error().Err(err).Msg("encode chat chunk failed")
			continue
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			// 客户端已断开，继续排空 channel 让服务层完成保存
			continue
		}
		c.Writer.Flush()
	}
}
