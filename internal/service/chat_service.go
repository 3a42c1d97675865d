package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"intellisurf/internal/ai"
	"intellisurf/internal/model"
	"intellisurf/internal/pkg/adk"
	"intellisurf/internal/pkg/ctxutil"
	"intellisurf/internal/pkg/id"
	"intellisurf/internal/repository"
)

var (
	ErrEmptyInput       = errors.New("user_input is required")
	ErrLocalUnavailable = errors.New("local model is not configured")
)

// agentErrorPrefix 所有通道都失败时返回给用户的错误前缀
const agentErrorPrefix = "ADK Agent Error: "

// LocalResponder 本地模型（*ai.Client 实现）
type LocalResponder interface {
	Chat(ctx context.Context, req *ai.ChatRequest) (*ai.ChatResponse, error)
	ChatStream(ctx context.Context, req *ai.ChatRequest) (<-chan *ai.Chunk, error)
	ModelName() string
}

// ChatOptions 对话服务参数
type ChatOptions struct {
	HistoryLimit  int    // 本地模型使用的历史消息数
	LocalFallback bool   // agent 不可用时是否回退到本地模型
	AgentType     string // 写入对话记录的 agent 类型
}

// ChatService 对话桥接服务
// 职责: 编排 agent session、附件、消息持久化与推理通道（agent /run_sse、/run、本地模型）
type ChatService struct {
	sessions      *SessionService
	agent         AgentClient
	local         LocalResponder // 可为 nil
	contents      *ContentStore
	conversations repository.ConversationStore
	attachments   *AttachmentResolver
	titles        *TitleMaker
	opts          ChatOptions
}

// NewChatService 创建对话服务
func NewChatService(
	sessions *SessionService,
	agent AgentClient,
	local LocalResponder,
	contents *ContentStore,
	conversations repository.ConversationStore,
	attachments *AttachmentResolver,
	titles *TitleMaker,
	opts ChatOptions,
) *ChatService {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 10
	}
	return &ChatService{
		sessions:      sessions,
		agent:         agent,
		local:         local,
		contents:      contents,
		conversations: conversations,
		attachments:   attachments,
		titles:        titles,
		opts:          opts,
	}
}

// turn 一轮对话的上下文
type turn struct {
	start          time.Time
	userID         string
	sessionID      string
	sessionReady   bool  // agent session 可用
	sessionErr     error // session 解析失败原因
	conversationID string
	userMessageID  string
	message        string // 附带附件描述的消息
	logger         zerolog.Logger
}

// Chat 非流式对话
// 业务流程: 1. 准备 session/对话/附件并保存用户消息 -> 2. agent /run -> 3. 本地模型回退 -> 4. 保存回复
func (s *ChatService) Chat(ctx context.Context, p ctxutil.Principal, req *model.ChatRequest) (*model.ChatResponse, error) {
	t, err := s.prepare(ctx, p, req, true)
	if err != nil {
		return nil, err
	}

	var (
		text    string
		source  string
		events  []map[string]any
		usage   *model.TokenUsage
		lastErr = t.sessionErr
	)

	if t.sessionReady {
		agentEvents, err := s.agent.Run(ctx, t.userID, t.sessionID, t.message)
		if err == nil {
			text = adk.ResponseText(agentEvents)
			source = model.SourceADK
			events = toMaps(agentEvents)
		} else {
			t.logger.Error().Err(err).Msg("agent /run 失败")
			lastErr = err
		}
	}

	if source == "" && s.localEnabled() {
		resp, err := s.local.Chat(ctx, s.localRequest(ctx, t))
		if err == nil {
			text = resp.Content
			source = model.SourceLocal
			usage = resp.Usage
		} else {
			t.logger.Error().Err(err).Msg("本地模型回退失败")
			lastErr = err
		}
	}

	if source == "" {
		text = agentErrorPrefix + errString(lastErr)
		source = model.SourceError
	}

	msgID := s.saveAssistant(ctx, t, text, source, usage)

	t.logger.Info().Str("source", source).Dur("elapsed", time.Since(t.start)).Msg("chat completed")

	return &model.ChatResponse{
		Response:         text,
		SessionID:        t.sessionID,
		ConversationID:   t.conversationID,
		MessageID:        msgID,
		Source:           source,
		ProcessingTimeMs: time.Since(t.start).Milliseconds(),
		Events:           events,
		Usage:            usage,
		Error:            source == model.SourceError,
	}, nil
}

// ChatStream 流式对话
// 准备阶段的错误同步返回；之后的片段通过 channel 推送，最后一个片段 Done 为 true
func (s *ChatService) ChatStream(ctx context.Context, p ctxutil.Principal, req *model.ChatRequest) (<-chan *model.ChatChunk, error) {
	t, err := s.prepare(ctx, p, req, true)
	if err != nil {
		return nil, err
	}

	ch := make(chan *model.ChatChunk, 16)
	go func() {
		defer close(ch)
		s.stream(ctx, t, ch)
	}()
	return ch, nil
}

func (s *ChatService) stream(ctx context.Context, t *turn, ch chan<- *model.ChatChunk) {
	var (
		b       strings.Builder
		source  string
		usage   *model.TokenUsage
		lastErr = t.sessionErr
	)

	emit := func(text string) bool {
		b.WriteString(text)
		return sendChunk(ctx, ch, &model.ChatChunk{
			Chunk:          text,
			SessionID:      t.sessionID,
			ConversationID: t.conversationID,
		})
	}

	if t.sessionReady {
		err := s.agent.RunSSE(ctx, t.userID, t.sessionID, t.message, func(event adk.Event) error {
			for _, text := range event.ModelTexts() {
				if text == "" {
					continue
				}
				if !emit(text) {
					return ctx.Err()
				}
			}
			return nil
		})

		switch {
		case err == nil:
			source = model.SourceADKSSE
			if b.Len() == 0 {
				emit(adk.NoResponseText)
			}
		case b.Len() > 0:
			// 已输出部分内容，保留已有文本
			t.logger.Warn().Err(err).Msg("agent 流式响应中断，保留已输出内容")
			source = model.SourceADKSSE
		default:
			t.logger.Warn().Err(err).Msg("agent /run_sse 失败，回退到 /run")
			lastErr = err
			if events, err := s.agent.Run(ctx, t.userID, t.sessionID, t.message); err == nil {
				source = model.SourceADK
				emit(adk.ResponseText(events))
			} else {
				t.logger.Error().Err(err).Msg("agent /run 失败")
				lastErr = err
			}
		}
	}

	if source == "" && s.localEnabled() && ctx.Err() == nil {
		chunks, err := s.local.ChatStream(ctx, s.localRequest(ctx, t))
		if err != nil {
			t.logger.Error().Err(err).Msg("本地模型回退失败")
			lastErr = err
		} else {
			for chunk := range chunks {
				if chunk.Err != nil {
					t.logger.Error().Err(chunk.Err).Msg("本地模型流式响应中断")
					lastErr = chunk.Err
					break
				}
				if chunk.Done {
					usage = chunk.Usage
					continue
				}
				emit(chunk.Content)
			}
			if b.Len() > 0 {
				source = model.SourceLocal
			}
		}
	}

	if source == "" {
		errText := agentErrorPrefix + errString(lastErr)
		b.WriteString(errText)
		sendChunk(ctx, ch, &model.ChatChunk{
			Chunk:          errText,
			SessionID:      t.sessionID,
			ConversationID: t.conversationID,
			Error:          errString(lastErr),
		})
		source = model.SourceError
	}

	// 客户端断开后仍然保存已生成的内容
	msgID := s.saveAssistant(context.WithoutCancel(ctx), t, b.String(), source, usage)

	t.logger.Info().Str("source", source).Dur("elapsed", time.Since(t.start)).Msg("chat stream completed")

	sendChunk(ctx, ch, &model.ChatChunk{
		Done:           true,
		SessionID:      t.sessionID,
		ConversationID: t.conversationID,
		MessageID:      msgID,
	})
}

// DirectChat 直接使用本地模型对话（不经过 agent server）
func (s *ChatService) DirectChat(ctx context.Context, p ctxutil.Principal, req *model.ChatRequest) (*model.ChatResponse, error) {
	if s.local == nil {
		return nil, ErrLocalUnavailable
	}

	t, err := s.prepare(ctx, p, req, false)
	if err != nil {
		return nil, err
	}

	resp, err := s.local.Chat(ctx, s.localRequest(ctx, t))
	if err != nil {
		t.logger.Error().Err(err).Msg("本地模型对话失败")
		return nil, fmt.Errorf("local model: %w", err)
	}

	msgID := s.saveAssistant(ctx, t, resp.Content, model.SourceLocal, resp.Usage)

	return &model.ChatResponse{
		Response:         resp.Content,
		ConversationID:   t.conversationID,
		MessageID:        msgID,
		Source:           model.SourceLocal,
		ProcessingTimeMs: time.Since(t.start).Milliseconds(),
		Usage:            resp.Usage,
	}, nil
}

// prepare 校验输入、解析 session、确保对话记录存在、解析附件并保存用户消息
func (s *ChatService) prepare(ctx context.Context, p ctxutil.Principal, req *model.ChatRequest, useAgent bool) (*turn, error) {
	if strings.TrimSpace(req.UserInput) == "" {
		return nil, ErrEmptyInput
	}

	t := &turn{
		start:          time.Now(),
		userID:         p.UserID,
		sessionID:      req.SessionID,
		conversationID: req.ConversationID,
	}
	isNew := t.conversationID == ""
	if isNew {
		t.conversationID = id.Conversation()
	}
	t.logger = log.With().
		Str("user_id", t.userID).
		Str("conversation_id", t.conversationID).
		Logger()

	if !isNew && t.sessionID == "" {
		t.sessionID = s.storedSessionID(ctx, t)
	}

	if useAgent {
		sessionID, err := s.sessions.GetOrCreate(ctx, t.userID, t.sessionID)
		switch {
		case err == nil:
			t.sessionID = sessionID
			t.sessionReady = true
		case s.localEnabled():
			t.logger.Warn().Err(err).Msg("agent session 不可用，使用本地模型")
			t.sessionErr = err
		default:
			t.logger.Error().Err(err).Msg("agent session 不可用")
			return nil, fmt.Errorf("agent session: %w", err)
		}
		t.logger = t.logger.With().Str("session_id", t.sessionID).Logger()
	}

	if s.conversations != nil {
		conv := &model.Conversation{
			ID:        t.conversationID,
			UserID:    t.userID,
			Title:     s.titles.Make(req.UserInput),
			AgentType: s.opts.AgentType,
			SessionID: t.sessionID,
		}
		if _, err := s.conversations.Ensure(ctx, conv); err != nil {
			t.logger.Warn().Err(err).Msg("创建对话记录失败")
		}
	}

	resolved := s.attachments.Resolve(ctx, req.Attachments)
	t.message = req.UserInput + resolved.Suffix

	userMsg, err := s.contents.StoreMessage(ctx, t.conversationID, model.RoleUser, req.UserInput, model.MessageMetadata{
		Attachments: resolved.Metadata,
		SessionID:   t.sessionID,
	})
	if err != nil {
		t.logger.Warn().Err(err).Msg("保存用户消息失败")
	} else {
		t.userMessageID = userMsg.ID
		s.touch(ctx, t)
	}

	return t, nil
}

// storedSessionID 续聊只带 conversation_id 时沿用对话记录里的 session
func (s *ChatService) storedSessionID(ctx context.Context, t *turn) string {
	if s.conversations == nil {
		return ""
	}
	conv, err := s.conversations.FindByID(ctx, t.conversationID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			t.logger.Warn().Err(err).Msg("查询对话记录失败")
		}
		return ""
	}
	if conv.UserID != t.userID {
		return ""
	}
	return conv.SessionID
}

// localRequest 组装本地模型请求，历史中去掉本轮刚保存的用户消息
func (s *ChatService) localRequest(ctx context.Context, t *turn) *ai.ChatRequest {
	history, err := s.contents.History(ctx, t.conversationID, s.opts.HistoryLimit+1)
	if err != nil {
		t.logger.Warn().Err(err).Msg("读取对话历史失败")
	}

	filtered := make([]*model.Message, 0, len(history))
	for _, msg := range history {
		if msg.ID == t.userMessageID {
			continue
		}
		filtered = append(filtered, msg)
	}
	if len(filtered) > s.opts.HistoryLimit {
		filtered = filtered[len(filtered)-s.opts.HistoryLimit:]
	}

	return &ai.ChatRequest{Message: t.message, History: filtered}
}

func (s *ChatService) saveAssistant(ctx context.Context, t *turn, text, source string, usage *model.TokenUsage) string {
	metadata := model.MessageMetadata{
		ProcessingTimeMs: time.Since(t.start).Milliseconds(),
		Source:           source,
		SessionID:        t.sessionID,
		Usage:            usage,
		Error:            source == model.SourceError,
	}
	if source == model.SourceLocal && s.local != nil {
		metadata.ModelVersion = s.local.ModelName()
	}

	msg, err := s.contents.StoreMessage(ctx, t.conversationID, model.RoleAssistant, text, metadata)
	if err != nil {
		t.logger.Warn().Err(err).Msg("保存回复消息失败")
		return ""
	}
	s.touch(ctx, t)
	return msg.ID
}

func (s *ChatService) touch(ctx context.Context, t *turn) {
	if s.conversations == nil {
		return
	}
	if err := s.conversations.Touch(ctx, t.conversationID, 1); err != nil {
		t.logger.Warn().Err(err).Msg("更新对话记录失败")
	}
}

func (s *ChatService) localEnabled() bool {
	return s.local != nil && s.opts.LocalFallback
}

func sendChunk(ctx context.Context, ch chan<- *model.ChatChunk, chunk *model.ChatChunk) bool {
	select {
	case <-ctx.Done():
		return false
	case ch <- chunk:
		return true
	}
}

func toMaps(events []adk.Event) []map[string]any {
	out := make([]map[string]any, len(events))
	for i, e := range events {
		out[i] = e
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return "no inference transport available"
	}
	return err.Error()
}
