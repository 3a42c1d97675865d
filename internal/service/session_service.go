package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"intellisurf/internal/pkg/adk"
	"intellisurf/internal/pkg/cache"
	"intellisurf/internal/pkg/id"
)

// AgentClient agent server 客户端（*adk.Client 实现）
type AgentClient interface {
	ListApps(ctx context.Context) ([]string, error)
	CreateSession(ctx context.Context, userID, sessionID string, state map[string]any) (*adk.Session, error)
	GetSession(ctx context.Context, userID, sessionID string) (*adk.Session, error)
	DeleteSession(ctx context.Context, userID, sessionID string) error
	Run(ctx context.Context, userID, sessionID, message string) ([]adk.Event, error)
	RunSSE(ctx context.Context, userID, sessionID, message string, fn func(adk.Event) error) error
}

// SessionCache session 缓存（*cache.RedisCache 实现）
type SessionCache interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Get(ctx context.Context, key string, dest any) error
	Delete(ctx context.Context, keys ...string) error
}

// cachedSession 缓存中保存的 session 摘要
type cachedSession struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	CachedAt time.Time `json:"cached_at"`
}

// SessionService agent session 管理
type SessionService struct {
	client AgentClient
	cache  SessionCache // 可为 nil
	ttl    time.Duration
}

// NewSessionService 创建 session 服务
func NewSessionService(client AgentClient, sessionCache SessionCache, ttl time.Duration) *SessionService {
	if ttl <= 0 {
		ttl = cache.SessionCacheTTL
	}
	return &SessionService{client: client, cache: sessionCache, ttl: ttl}
}

// GetOrCreate 解析本轮对话使用的 session id
// sessionID 为空时生成新 id；缓存命中时不访问 agent server
func (s *SessionService) GetOrCreate(ctx context.Context, userID, sessionID string) (string, error) {
	if sessionID == "" {
		sessionID = id.New()
	}
	key := cache.SessionCacheKey(userID, sessionID)
	logger := log.With().Str("user_id", userID).Str("session_id", sessionID).Logger()

	if s.cache != nil {
		var cached cachedSession
		err := s.cache.Get(ctx, key, &cached)
		if err == nil && cached.ID == sessionID {
			return sessionID, nil
		}
		if err != nil && !errors.Is(err, cache.ErrMiss) {
			logger.Warn().Err(err).Msg("读取 session 缓存失败")
		}
	}

	if _, err := s.client.GetSession(ctx, userID, sessionID); err != nil {
		if !errors.Is(err, adk.ErrSessionNotFound) {
			logger.Warn().Err(err).Msg("查询 session 失败，尝试创建")
		}
		if _, err := s.client.CreateSession(ctx, userID, sessionID, nil); err != nil {
			return "", fmt.Errorf("create agent session: %w", err)
		}
		logger.Info().Msg("已创建 agent session")
	}

	if s.cache != nil {
		entry := cachedSession{ID: sessionID, UserID: userID, CachedAt: time.Now()}
		if err := s.cache.Set(ctx, key, entry, s.ttl); err != nil {
			logger.Warn().Err(err).Msg("写入 session 缓存失败")
		}
	}
	return sessionID, nil
}

// Get 获取 session 详情
func (s *SessionService) Get(ctx context.Context, userID, sessionID string) (*adk.Session, error) {
	session, err := s.client.GetSession(ctx, userID, sessionID)
	if err != nil {
		if !errors.Is(err, adk.ErrSessionNotFound) {
			log.Error().Err(err).Str("user_id", userID).Str("session_id", sessionID).Msg("获取 session 失败")
		}
		return nil, err
	}
	return session, nil
}

// Delete 删除 session，任何远程失败都按 session 不存在处理
func (s *SessionService) Delete(ctx context.Context, userID, sessionID string) error {
	if s.cache != nil {
		if err := s.cache.Delete(ctx, cache.SessionCacheKey(userID, sessionID)); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("删除 session 缓存失败")
		}
	}

	if err := s.client.DeleteSession(ctx, userID, sessionID); err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("session_id", sessionID).Msg("删除 session 失败")
		if errors.Is(err, adk.ErrSessionNotFound) {
			return err
		}
		return fmt.Errorf("%w: %v", adk.ErrSessionNotFound, err)
	}
	return nil
}

// ListAgents 列出可用 agent，失败时返回空列表
func (s *SessionService) ListAgents(ctx context.Context) []string {
	apps, err := s.client.ListApps(ctx)
	if err != nil {
		log.Error().Err(err).Msg("获取 agent 列表失败")
		return []string{}
	}
	if apps == nil {
		return []string{}
	}
	return apps
}
