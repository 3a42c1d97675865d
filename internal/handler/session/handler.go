package session

import (
	"context"

	"intellisurf/internal/pkg/adk"
	httputil "intellisurf/internal/pkg/http"
)

// ErrorResponse 错误响应类型别名（使用共用的 http.ErrorResponse）
type ErrorResponse = httputil.ErrorResponse

// SessionService session 服务（*service.SessionService 实现）
type SessionService interface {
	Get(ctx context.Context, userID, sessionID string) (*adk.Session, error)
	Delete(ctx context.Context, userID, sessionID string) error
	ListAgents(ctx context.Context) []string
}

// Handler agent session 模块处理器
type Handler struct {
	sessionService SessionService
}

// NewHandler 创建 session 模块处理器
func NewHandler(sessionService SessionService) *Handler {
	return &Handler{
		sessionService: sessionService,
	}
}
