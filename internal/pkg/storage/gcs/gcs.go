package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"intellisurf/internal/pkg/storage"
)

// GCSStorage Google Cloud Storage 存储
type GCSStorage struct {
	client        *gcstorage.Client
	bucket        *gcstorage.BucketHandle
	bucketName    string
	presignExpiry int // 预签名URL过期时间（秒）
}

// NewGCSStorage 创建 GCS 存储
// credentialsFile 为空时使用 Application Default Credentials
func NewGCSStorage(ctx context.Context, bucketName, credentialsFile string, presignExpiry int) (*GCSStorage, error) {
	if bucketName == "" {
		return nil, errors.New("GCS bucket is required")
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := gcstorage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSStorage{
		client:        client,
		bucket:        client.Bucket(bucketName),
		bucketName:    bucketName,
		presignExpiry: presignExpiry,
	}, nil
}

// Upload 上传文件
func (s *GCSStorage) Upload(ctx context.Context, key string, data io.Reader, contentType string) (string, error) {
	err := writeObject(ctx, func(ctx context.Context) io.WriteCloser {
		w := s.bucket.Object(key).NewWriter(ctx)
		w.ContentType = contentType
		return w
	}, data)
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", s.bucketName, key), nil
}

// writeObject 写入失败时先取消 ctx 再关闭 writer，GCS 不会提交不完整的对象
func writeObject(ctx context.Context, open func(ctx context.Context) io.WriteCloser, data io.Reader) error {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := open(wctx)
	if _, err := io.Copy(w, data); err != nil {
		cancel()
		_ = w.Close()
		return err
	}
	return w.Close()
}

// Download 下载文件
func (s *GCSStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.bucket.Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcstorage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	return r, nil
}

// GetPresignedUploadURL 获取 V4 签名上传URL
func (s *GCSStorage) GetPresignedUploadURL(ctx context.Context, key string, contentType string, expiresIn time.Duration) (string, error) {
	url, err := s.bucket.SignedURL(key, &gcstorage.SignedURLOptions{
		Scheme:      gcstorage.SigningSchemeV4,
		Method:      "PUT",
		ContentType: contentType,
		Expires:     time.Now().Add(s.expiry(expiresIn)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned upload URL: %w", err)
	}
	return url, nil
}

// GetPresignedDownloadURL 获取 V4 签名下载URL
func (s *GCSStorage) GetPresignedDownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, error) {
	url, err := s.bucket.SignedURL(key, &gcstorage.SignedURLOptions{
		Scheme:  gcstorage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(s.expiry(expiresIn)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned download URL: %w", err)
	}
	return url, nil
}

// Delete 删除文件
func (s *GCSStorage) Delete(ctx context.Context, key string) error {
	err := s.bucket.Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, gcstorage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Exists 检查文件是否存在
func (s *GCSStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.bucket.Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcstorage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check file existence: %w", err)
	}
	return true, nil
}

// GetFileInfo 获取文件信息
func (s *GCSStorage) GetFileInfo(ctx context.Context, key string) (*storage.FileInfo, error) {
	attrs, err := s.bucket.Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcstorage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}
	return fileInfoFromAttrs(attrs), nil
}

// List 列出前缀下的对象
func (s *GCSStorage) List(ctx context.Context, prefix string) ([]*storage.FileInfo, error) {
	var files []*storage.FileInfo
	it := s.bucket.Objects(ctx, &gcstorage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return files, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		files = append(files, fileInfoFromAttrs(attrs))
	}
}

// GetStorageType 获取存储类型
func (s *GCSStorage) GetStorageType() string {
	return string(storage.StorageTypeGCS)
}

// Close 关闭客户端
func (s *GCSStorage) Close() error {
	return s.client.Close()
}

func (s *GCSStorage) expiry(expiresIn time.Duration) time.Duration {
	if limit := time.Duration(s.presignExpiry) * time.Second; limit > 0 && limit < expiresIn {
		return limit
	}
	return expiresIn
}

func fileInfoFromAttrs(attrs *gcstorage.ObjectAttrs) *storage.FileInfo {
	contentType := attrs.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &storage.FileInfo{
		Key:          attrs.Name,
		Size:         attrs.Size,
		ContentType:  contentType,
		ETag:         attrs.Etag,
		LastModified: attrs.Updated,
	}
}
