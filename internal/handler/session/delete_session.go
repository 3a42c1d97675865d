package session

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"intellisurf/internal/pkg/ctxutil"
	httputil "intellisurf/internal/pkg/http"
)

// DeleteSession 删除 agent session
// @Summary      删除 session
// @Description  删除 agent server 上的 session，删除失败统一返回 404
// @Tags         Session
// @Produce      json
// @Security     BearerAuth
// @Param        session_id  path      string  true  "Session ID"
// @Success      200         {object}  httputil.MessageResponse
// @Failure      401         {object}  ErrorResponse  "未授权"
// @Failure      404         {object}  ErrorResponse  "session 不存在或删除失败"
// @Router       /api/v1/adk-sessions/{session_id} [delete]
func (h *Handler) DeleteSession(c *gin.Context) {
	userID, ok := ctxutil.GetUserID(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httputil.NewErrorResponse(httputil.CodeUnauthorized, "未授权"))
		return
	}

	sessionID := c.Param("session_id")
	if err := h.sessionService.Delete(c.Request.Context(), userID, sessionID); err != nil {
		c.JSON(http.StatusNotFound, httputil.NewErrorResponse(httputil.CodeNotFound, "Session not found or could not be deleted"))
		return
	}

	c.JSON(http.StatusOK, httputil.MessageResponse{Message: "Session " + sessionID + " deleted successfully"})
}
