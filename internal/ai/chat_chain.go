package ai

import (
	"context"
	"errors"
	"io"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	domain "intellisurf/internal/model"
)

// DefaultSystemPrompt 未配置 system_prompt 时使用
const DefaultSystemPrompt = "You are an academic research assistant. Answer clearly, cite the documents the user attached when relevant, and say so when you are unsure."

// ChatChain 对话链
// 职责: 组装 system prompt + 历史 + 当前消息，调用 ChatModel
type ChatChain struct {
	chatModel    model.BaseChatModel
	systemPrompt string
}

// NewChatChain 创建对话链
func NewChatChain(chatModel model.BaseChatModel, systemPrompt string) *ChatChain {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &ChatChain{
		chatModel:    chatModel,
		systemPrompt: systemPrompt,
	}
}

// Run 同步执行对话
func (c *ChatChain) Run(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	resp, err := c.chatModel.Generate(ctx, c.buildMessages(req))
	if err != nil {
		return nil, err
	}

	return &ChatResponse{
		Content: resp.Content,
		Usage:   usageFromMessage(resp),
	}, nil
}

// Stream 流式执行对话，channel 在结束或出错后关闭
func (c *ChatChain) Stream(ctx context.Context, req *ChatRequest) (<-chan *Chunk, error) {
	reader, err := c.chatModel.Stream(ctx, c.buildMessages(req))
	if err != nil {
		return nil, err
	}

	ch := make(chan *Chunk, 10)
	go func() {
		defer close(ch)
		defer reader.Close()

		var usage *domain.TokenUsage
		for {
			msg, err := reader.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				send(ctx, ch, &Chunk{Err: err})
				return
			}
			if u := usageFromMessage(msg); u != nil {
				usage = u
			}
			if msg.Content == "" {
				continue
			}
			if !send(ctx, ch, &Chunk{Content: msg.Content}) {
				return
			}
		}

		send(ctx, ch, &Chunk{Done: true, Usage: usage})
	}()

	return ch, nil
}

func (c *ChatChain) buildMessages(req *ChatRequest) []*schema.Message {
	messages := make([]*schema.Message, 0, len(req.History)+2)
	messages = append(messages, schema.SystemMessage(c.systemPrompt))

	for _, h := range req.History {
		if h.Content == "" {
			continue
		}
		switch h.Role {
		case domain.RoleUser:
			messages = append(messages, schema.UserMessage(h.Content))
		case domain.RoleAssistant:
			messages = append(messages, schema.AssistantMessage(h.Content, nil))
		}
	}

	messages = append(messages, schema.UserMessage(req.Message))
	return messages
}

func send(ctx context.Context, ch chan<- *Chunk, chunk *Chunk) bool {
	select {
	case <-ctx.Done():
		return false
	case ch <- chunk:
		return true
	}
}

func usageFromMessage(msg *schema.Message) *domain.TokenUsage {
	if msg == nil || msg.ResponseMeta == nil || msg.ResponseMeta.Usage == nil {
		return nil
	}
	u := msg.ResponseMeta.Usage
	return &domain.TokenUsage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}
