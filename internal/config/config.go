package config

import (
	"errors"
	"fmt"
	"time"
)

// Config 应用配置根结构
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Agent   AgentConfig   `mapstructure:"agent"`
	AI      AIConfig      `mapstructure:"ai"`
	Chat    ChatConfig    `mapstructure:"chat"`
	Log     LogConfig     `mapstructure:"log"`
	Mongo   MongoConfig   `mapstructure:"mongo"`
	Dynamo  DynamoConfig  `mapstructure:"dynamo"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Storage StorageConfig `mapstructure:"storage"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// AgentConfig ADK agent server 配置
type AgentConfig struct {
	BaseURL       string        `mapstructure:"base_url"`       // api_server 地址
	AppName       string        `mapstructure:"app_name"`       // agent app 名称
	Timeout       time.Duration `mapstructure:"timeout"`        // /run 超时
	StreamTimeout time.Duration `mapstructure:"stream_timeout"` // /run_sse 超时
	LocalFallback bool          `mapstructure:"local_fallback"` // 远程失败时回退到本地模型
}

// AIConfig 本地模型配置（回退通道 + /chat 直连）
type AIConfig struct {
	Provider     string          `mapstructure:"provider"`
	APIKey       string          `mapstructure:"api_key"`
	Model        string          `mapstructure:"model"`
	BaseURL      string          `mapstructure:"base_url"`
	SystemPrompt string          `mapstructure:"system_prompt"`
	Options      AIOptionsConfig `mapstructure:"options"`
}

// AIOptionsConfig AI 模型参数
type AIOptionsConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	TopP        float64 `mapstructure:"top_p"`
}

// ChatConfig 对话桥接配置
type ChatConfig struct {
	InlineThreshold     int           `mapstructure:"inline_threshold"`      // 超过该字节数的内容写入对象存储
	PreviewLength       int           `mapstructure:"preview_length"`        // 对象存储消息的预览长度（字符）
	HistoryLimit        int           `mapstructure:"history_limit"`         // 本地模型上下文消息数
	AttachmentTextLimit int           `mapstructure:"attachment_text_limit"` // 文本附件内联字符数
	LocalStorePath      string        `mapstructure:"local_store_path"`      // 无 MongoDB 时的本地消息目录
	SessionCacheTTL     time.Duration `mapstructure:"session_cache_ttl"`
}

// LogConfig 日志配置 (Zerolog)
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	TimeFormat string `mapstructure:"time_format"`
}

// MongoConfig MongoDB 配置
type MongoConfig struct {
	URI         string `mapstructure:"uri"`
	Database    string `mapstructure:"database"`
	MaxPoolSize uint64 `mapstructure:"max_pool_size"`
	MinPoolSize uint64 `mapstructure:"min_pool_size"`
}

// DynamoConfig DynamoDB 配置，未配置 MongoDB 时作为消息存储
type DynamoConfig struct {
	Table    string `mapstructure:"table"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"` // 本地调试用，例如 http://localhost:8000
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig 认证配置
type AuthConfig struct {
	JWTSecret         string        `mapstructure:"jwt_secret"`          // JWT密钥
	AccessTokenExpiry time.Duration `mapstructure:"access_token_expiry"` // Access Token过期时间
	DevMode           bool          `mapstructure:"dev_mode"`            // 未携带 token 时注入开发用户
	DevUserID         string        `mapstructure:"dev_user_id"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	Type  string       `mapstructure:"type"` // local, oss, gcs
	Local *LocalConfig `mapstructure:"local,omitempty"`
	OSS   *OSSConfig   `mapstructure:"oss,omitempty"`
	GCS   *GCSConfig   `mapstructure:"gcs,omitempty"`
}

// LocalConfig 本地文件系统配置
type LocalConfig struct {
	BasePath      string `mapstructure:"base_path"`      // 基础路径
	BaseURL       string `mapstructure:"base_url"`       // 基础URL（用于生成访问URL）
	PresignExpiry int    `mapstructure:"presign_expiry"` // 预签名URL过期时间（秒）
}

// OSSConfig 阿里云OSS配置
type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	PresignExpiry   int    `mapstructure:"presign_expiry"`
}

// GCSConfig Google Cloud Storage 配置
type GCSConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	Bucket          string `mapstructure:"bucket"`
	CredentialsFile string `mapstructure:"credentials_file"` // 为空时使用 ADC
	PresignExpiry   int    `mapstructure:"presign_expiry"`
}

// Validate 验证配置有效性
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("invalid server port")
	}

	validModes := map[string]bool{"debug": true, "release": true, "test": true}
	if !validModes[c.Server.Mode] {
		return errors.New("invalid server mode, must be debug/release/test")
	}

	if c.Agent.BaseURL == "" {
		return errors.New("agent base_url is required")
	}

	if c.Chat.InlineThreshold <= 0 {
		return fmt.Errorf("invalid chat inline_threshold: %d", c.Chat.InlineThreshold)
	}

	switch c.Storage.Type {
	case "", "local", "oss", "gcs":
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	return nil
}
