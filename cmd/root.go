package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"intellisurf/internal/config"
	"intellisurf/internal/pkg/logger"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "intellisurf",
	Short: "IntelliSurf - research agent chat bridge",
	Long: `IntelliSurf bridges chat clients to an ADK agent server.
It keeps conversation history, inlines attachments, stores large
messages in object storage and falls back to a local model.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ./configs/config.yaml)")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.intellisurf")
	}

	// 环境变量设置
	viper.SetEnvPrefix("INTELLISURF")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 设置默认值
	setDefaults()

	// 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			fmt.Fprintln(os.Stderr, "No config file found, using defaults and environment variables")
		} else {
			fmt.Fprintf(os.Stderr, "Failed to read config: %v\n", err)
			os.Exit(1)
		}
	}

	// 反序列化到结构体
	cfg = &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to unmarshal config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}

	log.Debug().Str("config_file", viper.ConfigFileUsed()).Msg("configuration loaded")
}

func setDefaults() {
	// Server
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("server.read_timeout", "30s")
	// /run 最长 120s，流式响应需要更长的写超时
	viper.SetDefault("server.write_timeout", "180s")

	// Agent
	viper.SetDefault("agent.base_url", "http://localhost:8000")
	viper.SetDefault("agent.app_name", "academic-research")
	viper.SetDefault("agent.timeout", "120s")
	viper.SetDefault("agent.stream_timeout", "60s")
	viper.SetDefault("agent.local_fallback", true)

	// AI
	viper.SetDefault("ai.provider", "openai")
	viper.SetDefault("ai.model", "gpt-4o-mini")
	viper.SetDefault("ai.options.temperature", 0.7)
	viper.SetDefault("ai.options.max_tokens", 4096)
	viper.SetDefault("ai.options.top_p", 1.0)

	// Chat
	viper.SetDefault("chat.inline_threshold", 500000)
	viper.SetDefault("chat.preview_length", 200)
	viper.SetDefault("chat.history_limit", 10)
	viper.SetDefault("chat.attachment_text_limit", 2000)
	viper.SetDefault("chat.local_store_path", "./local_storage")
	viper.SetDefault("chat.session_cache_ttl", "30m")

	// Log
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.time_format", "RFC3339")

	// MongoDB（为空时使用本地存储）
	viper.SetDefault("mongo.uri", "")
	viper.SetDefault("mongo.database", "intellisurf")
	viper.SetDefault("mongo.max_pool_size", 100)
	viper.SetDefault("mongo.min_pool_size", 10)

	// DynamoDB 配置（未配置 MongoDB 时使用）
	viper.SetDefault("dynamo.table", "")
	viper.SetDefault("dynamo.region", "")
	viper.SetDefault("dynamo.endpoint", "")

	// Redis（为空时不缓存 session）
	viper.SetDefault("redis.addr", "")
	viper.SetDefault("redis.db", 0)

	// Auth
	viper.SetDefault("auth.access_token_expiry", "24h")
	viper.SetDefault("auth.dev_mode", false)
	viper.SetDefault("auth.dev_user_id", "dev-user")

	// Storage
	viper.SetDefault("storage.type", "local")
	viper.SetDefault("storage.local.base_path", "./local_storage/blobs")
	viper.SetDefault("storage.local.base_url", "/uploads")
	viper.SetDefault("storage.local.presign_expiry", 3600)
}

// GetConfig returns the global configuration
func GetConfig() *config.Config {
	return cfg
}
