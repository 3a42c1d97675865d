package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound 对象不存在
var ErrNotFound = errors.New("storage: object not found")

// ErrUnsupported 当前存储后端不支持该操作
var ErrUnsupported = errors.New("storage: operation not supported")

// Storage 对象存储接口
// 大消息内容与附件都通过该接口读写，key 使用 / 分隔
type Storage interface {
	// Upload 上传对象，返回访问URL
	Upload(ctx context.Context, key string, data io.Reader, contentType string) (string, error)

	// Download 下载对象，不存在时返回 ErrNotFound
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetPresignedUploadURL 获取预签名上传URL（客户端直传）
	GetPresignedUploadURL(ctx context.Context, key string, contentType string, expiresIn time.Duration) (string, error)

	// GetPresignedDownloadURL 获取预签名下载URL
	GetPresignedDownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, error)

	// Delete 删除对象，对象不存在视为成功
	Delete(ctx context.Context, key string) error

	// Exists 检查对象是否存在
	Exists(ctx context.Context, key string) (bool, error)

	// GetFileInfo 获取对象信息，不存在时返回 ErrNotFound
	GetFileInfo(ctx context.Context, key string) (*FileInfo, error)

	// List 列出指定前缀下的全部对象
	List(ctx context.Context, prefix string) ([]*FileInfo, error)

	// GetStorageType 获取存储类型
	GetStorageType() string
}

// FileInfo 对象信息
type FileInfo struct {
	Key          string
	Size         int64
	ContentType  string
	ETag         string
	LastModified time.Time
}

// StorageType 存储类型
type StorageType string

const (
	StorageTypeLocal StorageType = "local" // 本地文件系统
	StorageTypeOSS   StorageType = "oss"   // 阿里云OSS
	StorageTypeGCS   StorageType = "gcs"   // Google Cloud Storage
)
