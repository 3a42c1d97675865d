package ai

import (
	"context"
	"errors"
	"fmt"

	"intellisurf/internal/ai/component"
	"intellisurf/internal/config"
	"intellisurf/internal/model"
)

// ErrNotConfigured 未配置本地模型
var ErrNotConfigured = errors.New("ai: local model not configured")

// Client 本地模型客户端
// 职责: agent server 不可用时的回退通道，以及 /chat 直连
type Client struct {
	chatChain *ChatChain
	modelName string
}

// NewClient 创建 AI 客户端，未配置 api_key 时返回 ErrNotConfigured
func NewClient(ctx context.Context, cfg *config.AIConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}

	chatModel, err := component.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	return &Client{
		chatChain: NewChatChain(chatModel, cfg.SystemPrompt),
		modelName: component.ModelName(cfg),
	}, nil
}

// NewClientWithChain 使用已组装好的对话链创建客户端
func NewClientWithChain(chain *ChatChain, modelName string) *Client {
	return &Client{chatChain: chain, modelName: modelName}
}

// ChatRequest AI 对话请求
type ChatRequest struct {
	Message string
	History []*model.Message // 已解析出完整内容的历史消息，按时间正序
}

// ChatResponse AI 对话响应
type ChatResponse struct {
	Content string
	Usage   *model.TokenUsage
}

// Chunk 流式片段，Err 非空表示流中断
type Chunk struct {
	Content string
	Done    bool
	Usage   *model.TokenUsage
	Err     error
}

// Chat 同步对话
func (c *Client) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return c.chatChain.Run(ctx, req)
}

// ChatStream 流式对话
func (c *Client) ChatStream(ctx context.Context, req *ChatRequest) (<-chan *Chunk, error) {
	return c.chatChain.Stream(ctx, req)
}

// ModelName 模型名
func (c *Client) ModelName() string {
	return c.modelName
}
