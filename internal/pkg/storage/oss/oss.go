package oss

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"intellisurf/internal/pkg/storage"
)

// listPageSize ListObjects 单页数量（OSS 上限 1000）
const listPageSize = 1000

// OSSStorage 阿里云OSS存储
type OSSStorage struct {
	bucket        *oss.Bucket
	bucketName    string
	presignExpiry int // 预签名URL过期时间（秒）
}

// NewOSSStorage 创建阿里云OSS存储
func NewOSSStorage(endpoint, bucketName, accessKeyID, accessKeySecret string, presignExpiry int) (*OSSStorage, error) {
	if endpoint == "" || bucketName == "" {
		return nil, errors.New("OSS endpoint and bucket are required")
	}

	client, err := oss.New(endpoint, accessKeyID, accessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}

	bucket, err := client.Bucket(bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}

	return &OSSStorage{
		bucket:        bucket,
		bucketName:    bucketName,
		presignExpiry: presignExpiry,
	}, nil
}

// Upload 上传文件（服务端上传）
func (s *OSSStorage) Upload(ctx context.Context, key string, data io.Reader, contentType string) (string, error) {
	err := s.bucket.PutObject(key, data, oss.ContentType(contentType), oss.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	endpoint := strings.TrimPrefix(strings.TrimPrefix(s.bucket.Client.Config.Endpoint, "https://"), "http://")
	return fmt.Sprintf("https://%s.%s/%s", s.bucketName, endpoint, key), nil
}

// Download 下载文件
func (s *OSSStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	body, err := s.bucket.GetObject(key, oss.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	return body, nil
}

// GetPresignedUploadURL 获取预签名上传URL（客户端直传）
func (s *OSSStorage) GetPresignedUploadURL(ctx context.Context, key string, contentType string, expiresIn time.Duration) (string, error) {
	url, err := s.bucket.SignURL(key, oss.HTTPPut, s.expirySeconds(expiresIn), oss.ContentType(contentType))
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned upload URL: %w", err)
	}
	return url, nil
}

// GetPresignedDownloadURL 获取预签名下载URL
func (s *OSSStorage) GetPresignedDownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, error) {
	url, err := s.bucket.SignURL(key, oss.HTTPGet, s.expirySeconds(expiresIn))
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned download URL: %w", err)
	}
	return url, nil
}

// Delete 删除文件
func (s *OSSStorage) Delete(ctx context.Context, key string) error {
	if err := s.bucket.DeleteObject(key, oss.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Exists 检查文件是否存在
func (s *OSSStorage) Exists(ctx context.Context, key string) (bool, error) {
	exists, err := s.bucket.IsObjectExist(key, oss.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("failed to check file existence: %w", err)
	}
	return exists, nil
}

// GetFileInfo 获取文件信息
func (s *OSSStorage) GetFileInfo(ctx context.Context, key string) (*storage.FileInfo, error) {
	props, err := s.bucket.GetObjectDetailedMeta(key, oss.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}
	return fileInfoFromHeader(key, props), nil
}

// List 分页列出前缀下的对象
func (s *OSSStorage) List(ctx context.Context, prefix string) ([]*storage.FileInfo, error) {
	var files []*storage.FileInfo
	marker := ""
	for {
		result, err := s.bucket.ListObjects(
			oss.Prefix(prefix),
			oss.Marker(marker),
			oss.MaxKeys(listPageSize),
			oss.WithContext(ctx),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}

		for _, obj := range result.Objects {
			files = append(files, &storage.FileInfo{
				Key:          obj.Key,
				Size:         obj.Size,
				ETag:         strings.Trim(obj.ETag, `"`),
				LastModified: obj.LastModified,
			})
		}

		if !result.IsTruncated {
			return files, nil
		}
		marker = result.NextMarker
	}
}

// GetStorageType 获取存储类型
func (s *OSSStorage) GetStorageType() string {
	return string(storage.StorageTypeOSS)
}

// expirySeconds 请求的过期时间不超过配置上限
func (s *OSSStorage) expirySeconds(expiresIn time.Duration) int64 {
	expiry := expiresIn
	if limit := time.Duration(s.presignExpiry) * time.Second; limit > 0 && limit < expiresIn {
		expiry = limit
	}
	return int64(expiry.Seconds())
}

func fileInfoFromHeader(key string, props http.Header) *storage.FileInfo {
	size, _ := strconv.ParseInt(props.Get("Content-Length"), 10, 64)

	contentType := props.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	var lastModified time.Time
	if v := props.Get("Last-Modified"); v != "" {
		lastModified, _ = http.ParseTime(v)
	}

	return &storage.FileInfo{
		Key:          key,
		Size:         size,
		ContentType:  contentType,
		ETag:         strings.Trim(props.Get("ETag"), `"`),
		LastModified: lastModified,
	}
}

func isNotFound(err error) bool {
	var svcErr oss.ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.StatusCode == http.StatusNotFound || svcErr.Code == "NoSuchKey"
	}
	var svcErrPtr *oss.ServiceError
	if errors.As(err, &svcErrPtr) {
		return svcErrPtr.StatusCode == http.StatusNotFound || svcErrPtr.Code == "NoSuchKey"
	}
	return false
}
