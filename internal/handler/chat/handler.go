package chat

import (
	"context"

	"intellisurf/internal/model"
	"intellisurf/internal/pkg/ctxutil"
)

// ChatService 对话服务（*service.ChatService 实现）
type ChatService interface {
	Chat(ctx context.Context, p ctxutil.Principal, req *model.ChatRequest) (*model.ChatResponse, error)
	ChatStream(ctx context.Context, p ctxutil.Principal, req *model.ChatRequest) (<-chan *model.ChatChunk, error)
	DirectChat(ctx context.Context, p ctxutil.Principal, req *model.ChatRequest) (*model.ChatResponse, error)
}

// Handler 对话模块处理器
type Handler struct {
	chatService ChatService
}

// NewHandler 创建对话模块处理器
func NewHandler(chatService ChatService) *Handler {
	return &Handler{
		chatService: chatService,
	}
}
