package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "intellisurf/docs"
	"intellisurf/internal/ai"
	"intellisurf/internal/config"
	"intellisurf/internal/handler"
	chatHandler "intellisurf/internal/handler/chat"
	documentHandler "intellisurf/internal/handler/document"
	sessionHandler "intellisurf/internal/handler/session"
	"intellisurf/internal/pkg/adk"
	"intellisurf/internal/pkg/cache"
	"intellisurf/internal/pkg/jwt"
	"intellisurf/internal/pkg/mongodb"
	"intellisurf/internal/pkg/storage"
	"intellisurf/internal/pkg/storagefactory"
	"intellisurf/internal/repository/repofactory"
	"intellisurf/internal/server/middleware"
	"intellisurf/internal/service"
)

const defaultJWTSecret = "default-secret-key-change-in-production"

// Server HTTP 服务器
type Server struct {
	cfg    *config.Config
	engine *gin.Engine
	mongo  *mongodb.Client
	redis  *cache.RedisCache
	blobs  storage.Storage

	jwt         *jwt.JWT
	chatSvc     *service.ChatService
	sessionSvc  *service.SessionService
	documentSvc *service.DocumentService
	readyChecks []handler.Check
}

// New 创建服务器实例
func New(cfg *config.Config) (*Server, error) {
	// 设置 Gin 模式
	switch cfg.Server.Mode {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	srv := &Server{
		cfg:    cfg,
		engine: gin.New(),
	}

	// 初始化 MongoDB (可选)
	if cfg.Mongo.URI != "" {
		client, err := mongodb.New(ctx, &cfg.Mongo)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to MongoDB, using local store")
		} else {
			srv.mongo = client
			log.Info().Str("database", client.Database().Name()).Msg("connected to MongoDB")

			// 创建索引
			if err := mongodb.EnsureIndexes(ctx, client.Database()); err != nil {
				log.Warn().Err(err).Msg("failed to ensure indexes")
			}
			srv.readyChecks = append(srv.readyChecks, handler.Check{Name: "mongo", Ping: client.Ping})
		}
	}

	// 初始化 Redis (可选)
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedisCache(&cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to Redis, continuing without session cache")
		} else {
			srv.redis = rc
			log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to Redis")
			srv.readyChecks = append(srv.readyChecks, handler.Check{Name: "redis", Ping: rc.Ping})
		}
	}

	// 对象存储，远程存储不可用时回退到本地目录
	blobs, err := storagefactory.NewStorageWithFallback(ctx, &cfg.Storage, filepath.Join(cfg.Chat.LocalStorePath, "blobs"))
	if err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}
	srv.blobs = blobs
	log.Info().Str("storage_type", blobs.GetStorageType()).Msg("initialized blob storage")

	// 对话、消息与文档请求存储
	stores, err := repofactory.New(ctx, cfg, srv.mongo)
	if err != nil {
		return nil, err
	}

	// 本地模型 (可选)
	var localModel service.LocalResponder
	aiClient, err := ai.NewClient(ctx, &cfg.AI)
	switch {
	case err == nil:
		localModel = aiClient
		log.Info().Str("provider", cfg.AI.Provider).Str("model", aiClient.ModelName()).Msg("initialized local model")
	case errors.Is(err, ai.ErrNotConfigured):
		log.Info().Msg("local model not configured, /api/v1/chat disabled")
	default:
		log.Warn().Err(err).Msg("failed to initialize local model, continuing without it")
	}

	var sessionCache service.SessionCache
	if srv.redis != nil {
		sessionCache = srv.redis
	}

	agent := adk.NewClient(adk.Config{
		BaseURL:       cfg.Agent.BaseURL,
		AppName:       cfg.Agent.AppName,
		Timeout:       cfg.Agent.Timeout,
		StreamTimeout: cfg.Agent.StreamTimeout,
	})

	srv.sessionSvc = service.NewSessionService(agent, sessionCache, cfg.Chat.SessionCacheTTL)
	srv.chatSvc = service.NewChatService(
		srv.sessionSvc,
		agent,
		localModel,
		service.NewContentStore(stores.Messages, blobs, cfg.Chat.InlineThreshold, cfg.Chat.PreviewLength),
		stores.Conversations,
		service.NewAttachmentResolver(blobs, cfg.Chat.AttachmentTextLimit),
		service.NewTitleMaker(),
		service.ChatOptions{
			HistoryLimit:  cfg.Chat.HistoryLimit,
			LocalFallback: cfg.Agent.LocalFallback,
			AgentType:     agent.AppName(),
		},
	)

	srv.documentSvc = service.NewDocumentService(stores.Documents, blobs, cfg.Chat.PreviewLength)

	// 从配置读取JWT参数，如果没有配置则使用默认值
	jwtSecret := cfg.Auth.JWTSecret
	if jwtSecret == "" {
		jwtSecret = defaultJWTSecret
		log.Warn().Msg("JWT secret not configured, using default (NOT SECURE for production)")
	}
	accessTokenExpiry := cfg.Auth.AccessTokenExpiry
	if accessTokenExpiry == 0 {
		accessTokenExpiry = 24 * time.Hour
	}
	srv.jwt = jwt.NewJWT(jwtSecret, accessTokenExpiry)
	if cfg.Auth.DevMode {
		log.Warn().Str("dev_user_id", cfg.Auth.DevUserID).Msg("auth dev mode enabled, requests without token use the dev user")
	}

	// 设置路由
	srv.setupRoutes()

	return srv, nil
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() {
	// 全局中间件
	s.engine.Use(middleware.Recovery())
	s.engine.Use(middleware.RequestID())
	s.engine.Use(middleware.Logger())
	s.engine.Use(middleware.CORS())

	// 健康检查
	healthHandler := handler.NewHealthHandler(s.readyChecks...)
	s.engine.GET("/health", healthHandler.Health)
	s.engine.GET("/ready", healthHandler.Ready)

	// Swagger 文档
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	chatHdl := chatHandler.NewHandler(s.chatSvc)
	sessionHdl := sessionHandler.NewHandler(s.sessionSvc)
	documentHdl := documentHandler.NewHandler(s.documentSvc)

	// API v1（需要认证）
	v1 := s.engine.Group("/api/v1")
	v1.Use(middleware.Auth(s.jwt, middleware.AuthOptions{
		DevMode:   s.cfg.Auth.DevMode,
		DevUserID: s.cfg.Auth.DevUserID,
	}))
	{
		// 对话接口
		v1.POST("/adk-chat", chatHdl.ADKChat)
		v1.POST("/chat", chatHdl.DirectChat)

		// Session 接口
		v1.GET("/adk-sessions/:session_id", sessionHdl.GetSession)
		v1.DELETE("/adk-sessions/:session_id", sessionHdl.DeleteSession)
		v1.GET("/adk-agents", sessionHdl.ListAgents)

		// 文档请求接口
		v1.POST("/documents", documentHdl.CreateDocument)
		v1.GET("/documents/:document_id", documentHdl.GetDocument)
		v1.PATCH("/documents/:document_id/status", documentHdl.UpdateStatus)
		v1.POST("/documents/:document_id/upload-url", documentHdl.UploadURL)
	}
}

// Run 启动服务器
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	// 启动服务器
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 等待关闭信号或错误
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.close(shutdownCtx)
		return err
	case err := <-errCh:
		s.close(context.Background())
		return err
	}
}

// close 关闭外部连接
func (s *Server) close(ctx context.Context) {
	if s.mongo != nil {
		if err := s.mongo.Close(ctx); err != nil {
			log.Error().Err(err).Msg("failed to close MongoDB connection")
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close Redis connection")
		}
	}
	if closer, ok := s.blobs.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close blob storage")
		}
	}
}

// Engine 获取 Gin 引擎 (用于测试)
func (s *Server) Engine() *gin.Engine {
	return s.engine
}
