package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"intellisurf/internal/model"
	"intellisurf/internal/pkg/ctxutil"
	"intellisurf/internal/pkg/id"
	"intellisurf/internal/pkg/storage"
	"intellisurf/internal/repository"
)

const (
	DefaultDocumentType = "general"
	DocumentURLExpiry   = time.Hour
	documentContentType = "text/plain; charset=utf-8"
)

var (
	ErrEmptyDocument        = errors.New("document content is required")
	ErrDocumentNotFound     = errors.New("document request not found")
	ErrInvalidDocument      = errors.New("invalid document request")
	ErrDocumentFinished     = errors.New("document request already finished")
	ErrDocumentOutput       = errors.New("document output not found")
)

// DocumentService 文档生成请求
// 请求正文写入对象存储，记录只保存 key 与预览，状态变更追加到 Logs
type DocumentService struct {
	docs          repository.DocumentRequestStore
	blobs         storage.Storage
	previewLength int
}

// NewDocumentService 创建文档请求服务
func NewDocumentService(docs repository.DocumentRequestStore, blobs storage.Storage, previewLength int) *DocumentService {
	if previewLength <= 0 {
		previewLength = DefaultPreviewLength
	}
	return &DocumentService{docs: docs, blobs: blobs, previewLength: previewLength}
}

// DocumentKey 请求正文在对象存储中的 key
func DocumentKey(userID, requestID string) string {
	return fmt.Sprintf("documents/%s/%s.txt", userID, requestID)
}

// DocumentOutputKey 生成结果在对象存储中的 key
func DocumentOutputKey(userID, requestID, filename string) string {
	return fmt.Sprintf("documents/%s/%s/%s", userID, requestID, path.Base(filename))
}

// Create 保存请求正文并创建 pending 状态的记录
func (s *DocumentService) Create(ctx context.Context, p ctxutil.Principal, req *model.DocumentCreateRequest) (*model.DocumentRequest, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, ErrEmptyDocument
	}
	docType := strings.TrimSpace(req.DocumentType)
	if docType == "" {
		docType = DefaultDocumentType
	}

	now := time.Now()
	doc := &model.DocumentRequest{
		ID:             id.Document(),
		UserID:         p.UserID,
		ConversationID: req.ConversationID,
		MessageID:      req.MessageID,
		DocumentType:   docType,
		ContentSize:    len(req.Content),
		ContentPreview: Preview(req.Content, s.previewLength),
		Status:         model.DocumentPending,
		Metadata:       req.Metadata,
		Logs:           []model.DocumentLog{{Timestamp: now, Status: model.DocumentPending, Details: "queued"}},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	doc.ContentURL = DocumentKey(doc.UserID, doc.ID)
	logger := log.With().Str("user_id", doc.UserID).Str("document_id", doc.ID).Logger()

	if _, err := s.blobs.Upload(ctx, doc.ContentURL, strings.NewReader(req.Content), documentContentType); err != nil {
		return nil, fmt.Errorf("upload document content: %w", err)
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		if delErr := s.blobs.Delete(ctx, doc.ContentURL); delErr != nil {
			logger.Warn().Err(delErr).Msg("清理文档正文失败")
		}
		return nil, fmt.Errorf("create document request: %w", err)
	}

	logger.Info().Str("document_type", docType).Int("size", doc.ContentSize).Msg("已创建文档请求")
	return doc, nil
}

// Get 查询当前用户的文档请求，附带下载地址
func (s *DocumentService) Get(ctx context.Context, p ctxutil.Principal, requestID string) (*model.DocumentResponse, error) {
	doc, err := s.find(ctx, p, requestID)
	if err != nil {
		return nil, err
	}

	resp := &model.DocumentResponse{DocumentRequest: *doc}
	resp.ContentDownloadURL = s.downloadURL(ctx, doc.ContentURL)
	if doc.OutputKey != "" {
		resp.OutputDownloadURL = s.downloadURL(ctx, doc.OutputKey)
	}
	return resp, nil
}

// UpdateStatus 更新处理状态
// in_progress 首次进入时记录 started_at，completed 要求生成结果已上传并把进度置为 100
func (s *DocumentService) UpdateStatus(ctx context.Context, p ctxutil.Principal, requestID string, req *model.DocumentStatusRequest) (*model.DocumentRequest, error) {
	switch req.Status {
	case model.DocumentPending, model.DocumentInProgress, model.DocumentCompleted, model.DocumentFailed:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidDocument, req.Status)
	}

	doc, err := s.find(ctx, p, requestID)
	if err != nil {
		return nil, err
	}
	if doc.IsFinished() {
		return nil, ErrDocumentFinished
	}

	now := time.Now()
	if req.Progress != nil {
		doc.Progress = min(max(*req.Progress, 0), 100)
	}
	if req.OutputKey != "" {
		doc.OutputKey = req.OutputKey
	}

	switch req.Status {
	case model.DocumentInProgress:
		if doc.StartedAt == nil {
			doc.StartedAt = &now
		}
	case model.DocumentCompleted:
		if err := s.checkOutput(ctx, doc); err != nil {
			return nil, err
		}
		doc.CompletedAt = &now
		doc.Progress = 100
	case model.DocumentFailed:
		doc.CompletedAt = &now
	}

	doc.Status = req.Status
	doc.UpdatedAt = now
	doc.Logs = append(doc.Logs, model.DocumentLog{Timestamp: now, Status: req.Status, Details: req.Details})

	if err := s.docs.Update(ctx, doc); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("update document request: %w", err)
	}

	log.Info().Str("document_id", doc.ID).Str("status", doc.Status).Int("progress", doc.Progress).Msg("文档请求状态已更新")
	return doc, nil
}

// UploadURL 为生成结果申请预签名直传地址
// 本地存储不支持直传，返回 storage.ErrUnsupported
func (s *DocumentService) UploadURL(ctx context.Context, p ctxutil.Principal, requestID string, req *model.DocumentUploadRequest) (*model.DocumentUploadResponse, error) {
	filename := strings.TrimSpace(req.Filename)
	if filename == "" || path.Base(filename) == "." || path.Base(filename) == "/" {
		return nil, fmt.Errorf("%w: filename is required", ErrInvalidDocument)
	}

	doc, err := s.find(ctx, p, requestID)
	if err != nil {
		return nil, err
	}
	if doc.IsFinished() {
		return nil, ErrDocumentFinished
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = storage.ContentTypeByExt(filename)
	}
	key := DocumentOutputKey(doc.UserID, doc.ID, filename)
	url, err := s.blobs.GetPresignedUploadURL(ctx, key, contentType, DocumentURLExpiry)
	if err != nil {
		return nil, fmt.Errorf("presign document upload: %w", err)
	}
	return &model.DocumentUploadResponse{
		Key:       key,
		UploadURL: url,
		ExpiresAt: time.Now().Add(DocumentURLExpiry),
	}, nil
}

// ListPending 按创建时间返回待处理请求
func (s *DocumentService) ListPending(ctx context.Context, limit int) ([]*model.DocumentRequest, error) {
	return s.docs.ListPending(ctx, limit)
}

// find 其他用户的请求按不存在处理
func (s *DocumentService) find(ctx context.Context, p ctxutil.Principal, requestID string) (*model.DocumentRequest, error) {
	doc, err := s.docs.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("find document request: %w", err)
	}
	if doc.UserID != p.UserID {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

// checkOutput 生成结果必须位于该请求的目录下且已上传
func (s *DocumentService) checkOutput(ctx context.Context, doc *model.DocumentRequest) error {
	prefix := fmt.Sprintf("documents/%s/%s/", doc.UserID, doc.ID)
	if doc.OutputKey == "" || !strings.HasPrefix(doc.OutputKey, prefix) {
		return fmt.Errorf("%w: output_key must be under %s", ErrDocumentOutput, prefix)
	}
	exists, err := s.blobs.Exists(ctx, doc.OutputKey)
	if err != nil {
		return fmt.Errorf("check document output: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrDocumentOutput, doc.OutputKey)
	}
	return nil
}

func (s *DocumentService) downloadURL(ctx context.Context, key string) string {
	url, err := s.blobs.GetPresignedDownloadURL(ctx, key, DocumentURLExpiry)
	if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("生成下载地址失败")
		return ""
	}
	return url
}
