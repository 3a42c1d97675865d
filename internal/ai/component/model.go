package component

import (
	"context"
	"fmt"

	arkext "github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"intellisurf/internal/config"
)

const (
	// GeminiOpenAIBaseURL Gemini 的 OpenAI 兼容端点
	GeminiOpenAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	DefaultGeminiModel  = "gemini-2.5-flash"
	DefaultArkBaseURL   = "https://ark.cn-beijing.volces.com/api/v3"
	DefaultArkModel     = "doubao-seed-1-6-flash-250615"
)

// NewChatModel 创建 ChatModel
// 支持多种 Provider: openai, azure, ark, gemini
func NewChatModel(ctx context.Context, cfg *config.AIConfig) (model.BaseChatModel, error) {
	switch cfg.Provider {
	case "openai", "":
		return newOpenAIChatModel(ctx, cfg, cfg.BaseURL, cfg.Model)
	case "gemini":
		return newGeminiChatModel(ctx, cfg)
	case "azure":
		return newAzureChatModel(ctx, cfg)
	case "ark":
		return newArkChatModel(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported AI provider: %s", cfg.Provider)
	}
}

// ModelName 返回实际使用的模型名（写入消息元数据）
func ModelName(cfg *config.AIConfig) string {
	if cfg.Model != "" {
		return cfg.Model
	}
	switch cfg.Provider {
	case "gemini":
		return DefaultGeminiModel
	case "ark":
		return DefaultArkModel
	}
	return ""
}

// newOpenAIChatModel 创建 OpenAI（或兼容 API）ChatModel
func newOpenAIChatModel(ctx context.Context, cfg *config.AIConfig, baseURL, modelName string) (model.BaseChatModel, error) {
	modelCfg := &openai.ChatModelConfig{
		Model:   modelName,
		APIKey:  cfg.APIKey,
		BaseURL: baseURL,
	}

	if cfg.Options.Temperature > 0 {
		temp := float32(cfg.Options.Temperature)
		modelCfg.Temperature = &temp
	}
	if cfg.Options.MaxTokens > 0 {
		maxTokens := cfg.Options.MaxTokens
		modelCfg.MaxTokens = &maxTokens
	}
	if cfg.Options.TopP > 0 {
		topP := float32(cfg.Options.TopP)
		modelCfg.TopP = &topP
	}

	return openai.NewChatModel(ctx, modelCfg)
}

// newGeminiChatModel Gemini 通过 OpenAI 兼容端点接入
func newGeminiChatModel(ctx context.Context, cfg *config.AIConfig) (model.BaseChatModel, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = GeminiOpenAIBaseURL
	}
	return newOpenAIChatModel(ctx, cfg, baseURL, ModelName(cfg))
}

// newAzureChatModel 创建 Azure OpenAI ChatModel
func newAzureChatModel(ctx context.Context, cfg *config.AIConfig) (model.BaseChatModel, error) {
	modelCfg := &openai.ChatModelConfig{
		Model:   cfg.Model,
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		ByAzure: true,
	}

	if cfg.Options.Temperature > 0 {
		temp := float32(cfg.Options.Temperature)
		modelCfg.Temperature = &temp
	}

	return openai.NewChatModel(ctx, modelCfg)
}

// newArkChatModel 创建 Ark ChatModel（使用 eino-ext 模块）
func newArkChatModel(ctx context.Context, cfg *config.AIConfig) (model.BaseChatModel, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultArkBaseURL
	}

	modelCfg := &arkext.ChatModelConfig{
		Model:   ModelName(cfg),
		APIKey:  cfg.APIKey,
		BaseURL: baseURL,
	}

	if cfg.Options.Temperature > 0 {
		temp := float32(cfg.Options.Temperature)
		modelCfg.Temperature = &temp
	}
	if cfg.Options.MaxTokens > 0 {
		maxTokens := cfg.Options.MaxTokens
		modelCfg.MaxTokens = &maxTokens
	}
	if cfg.Options.TopP > 0 {
		topP := float32(cfg.Options.TopP)
		modelCfg.TopP = &topP
	}

	return arkext.NewChatModel(ctx, modelCfg)
}
