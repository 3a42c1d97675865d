package storagefactory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"intellisurf/internal/config"
	"intellisurf/internal/pkg/storage"
	"intellisurf/internal/pkg/storage/gcs"
	"intellisurf/internal/pkg/storage/local"
	"intellisurf/internal/pkg/storage/oss"
)

// NewStorage 根据配置创建存储实例
func NewStorage(ctx context.Context, cfg *config.StorageConfig) (storage.Storage, error) {
	switch cfg.Type {
	case "local":
		if cfg.Local == nil {
			return nil, fmt.Errorf("local storage config is required")
		}
		return local.NewLocalStorage(
			cfg.Local.BasePath,
			cfg.Local.BaseURL,
			cfg.Local.PresignExpiry,
		)
	case "oss":
		if cfg.OSS == nil {
			return nil, fmt.Errorf("OSS storage config is required")
		}
		return oss.NewOSSStorage(
			cfg.OSS.Endpoint,
			cfg.OSS.Bucket,
			cfg.OSS.AccessKeyID,
			cfg.OSS.AccessKeySecret,
			cfg.OSS.PresignExpiry,
		)
	case "gcs":
		if cfg.GCS == nil {
			return nil, fmt.Errorf("GCS storage config is required")
		}
		return gcs.NewGCSStorage(
			ctx,
			cfg.GCS.Bucket,
			cfg.GCS.CredentialsFile,
			cfg.GCS.PresignExpiry,
		)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// NewStorageWithFallback 创建存储实例，远程存储初始化失败时回退到 fallbackDir 下的本地存储
func NewStorageWithFallback(ctx context.Context, cfg *config.StorageConfig, fallbackDir string) (storage.Storage, error) {
	if cfg.Type == "" {
		return local.NewLocalStorage(fallbackDir, "/uploads", 0)
	}

	s, err := NewStorage(ctx, cfg)
	if err == nil {
		return s, nil
	}
	if cfg.Type == "local" {
		return nil, err
	}

	log.Warn().Err(err).Str("storage_type", cfg.Type).Str("fallback_dir", fallbackDir).
		Msg("远程存储初始化失败，回退到本地存储")
	return local.NewLocalStorage(fallbackDir, "/uploads", 0)
}
