package session

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"intellisurf/internal/model"
	"intellisurf/internal/pkg/adk"
	"intellisurf/internal/pkg/ctxutil"
	httputil "intellisurf/internal/pkg/http"
)

// GetSession 获取 agent session 详情
// @Summary      获取 session
// @Description  从 agent server 读取当前用户的 session（状态与事件）
// @Tags         Session
// @Produce      json
// @Security     BearerAuth
// @Param        session_id  path      string  true  "Session ID"
// @Success      200         {object}  model.SessionResponse
// @Failure      401         {object}  ErrorResponse  "未授权"
// @Failure      404         {object}  ErrorResponse  "session 不存在"
// @Failure      503         {object}  ErrorResponse  "agent server 不可用"
// @Router       /api/v1/adk-sessions/{session_id} [get]
func (h *Handler) GetSession(c *gin.Context) {
	userID, ok := ctxutil.GetUserID(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httputil.NewErrorResponse(httputil.CodeUnauthorized, "未授权"))
		return
	}

	sessionID := c.Param("session_id")
	session, err := h.sessionService.Get(c.Request.Context(), userID, sessionID)
	if err != nil {
		switch {
		case errors.Is(err, adk.ErrSessionNotFound):
			c.JSON(http.StatusNotFound, httputil.NewErrorResponse(httputil.CodeNotFound, "Session not found"))
		case errors.Is(err, adk.ErrUnavailable), errors.Is(err, adk.ErrServerNotFound):
			c.JSON(http.StatusServiceUnavailable, httputil.NewErrorResponse(httputil.CodeUnavailable, "Agent server unavailable", err.Error()))
		default:
			c.JSON(http.StatusInternalServerError, httputil.NewErrorResponse(httputil.CodeInternal, "Failed to get session", err.Error()))
		}
		return
	}

	c.JSON(http.StatusOK, toSessionResponse(session))
}

func toSessionResponse(s *adk.Session) model.SessionResponse {
	resp := model.SessionResponse{
		ID:             s.ID,
		AppName:        s.AppName,
		UserID:         s.UserID,
		State:          s.State,
		Events:         make([]map[string]any, len(s.Events)),
		LastUpdateTime: s.LastUpdateTime,
	}
	if resp.State == nil {
		resp.State = map[string]any{}
	}
	for i, e := range s.Events {
		resp.Events[i] = e
	}
	return resp
}
