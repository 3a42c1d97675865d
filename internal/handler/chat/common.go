package chat

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"intellisurf/internal/model"
	"intellisurf/internal/pkg/adk"
	"intellisurf/internal/pkg/ctxutil"
	httputil "intellisurf/internal/pkg/http"
	"intellisurf/internal/service"
)

// ErrorResponse 错误响应类型别名（使用共用的 http.ErrorResponse）
type ErrorResponse = httputil.ErrorResponse

// bindRequest 解析请求体与调用方，失败时已写入响应
func bindRequest(c *gin.Context) (*model.ChatRequest, ctxutil.Principal, bool) {
	p, ok := ctxutil.GetPrincipal(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httputil.NewErrorResponse(httputil.CodeUnauthorized, "未授权"))
		return nil, p, false
	}

	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httputil.NewErrorResponse(httputil.CodeInvalidRequest, "Invalid request body", err.Error()))
		return nil, p, false
	}
	return &req, p, true
}

// writeError 将服务层错误映射为 HTTP 响应
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyInput):
		c.JSON(http.StatusBadRequest, httputil.NewErrorResponse(httputil.CodeEmptyInput, "user_input is required"))
	case errors.Is(err, service.ErrLocalUnavailable):
		c.JSON(http.StatusServiceUnavailable, httputil.NewErrorResponse(httputil.CodeUnavailable, "AI model is not configured"))
	case errors.Is(err, adk.ErrUnavailable), errors.Is(err, adk.ErrServerNotFound):
		c.JSON(http.StatusServiceUnavailable, httputil.NewErrorResponse(httputil.CodeUnavailable, "Agent server unavailable", err.Error()))
	default:
		c.JSON(http.StatusInternalServerError, httputil.NewErrorResponse(httputil.CodeInternal, "Chat failed", err.Error()))
	}
}
