package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"intellisurf/internal/model"
	"intellisurf/internal/pkg/id"
	"intellisurf/internal/pkg/storage"
	"intellisurf/internal/repository"
)

const (
	DefaultInlineThreshold = 500000
	DefaultPreviewLength   = 200
	blobContentType        = "text/plain"
)

// ContentStore 消息内容存储
// 小消息直接写入消息文档，超过阈值的消息写入对象存储，文档只保留 key 与预览
type ContentStore struct {
	messages        repository.MessageStore
	blobs           storage.Storage // 可为 nil，此时全部内联存储
	inlineThreshold int
	previewLength   int
}

// NewContentStore 创建内容存储
func NewContentStore(messages repository.MessageStore, blobs storage.Storage, inlineThreshold, previewLength int) *ContentStore {
	if inlineThreshold <= 0 {
		inlineThreshold = DefaultInlineThreshold
	}
	if previewLength <= 0 {
		previewLength = DefaultPreviewLength
	}
	return &ContentStore{
		messages:        messages,
		blobs:           blobs,
		inlineThreshold: inlineThreshold,
		previewLength:   previewLength,
	}
}

// BlobKey 大消息在对象存储中的 key
func BlobKey(conversationID, messageID string) string {
	return fmt.Sprintf("messages/%s/%s.txt", conversationID, messageID)
}

// StoreMessage 保存一条消息，按内容字节数选择存储方式
func (s *ContentStore) StoreMessage(ctx context.Context, conversationID, role, content string, metadata model.MessageMetadata) (*model.Message, error) {
	msg := &model.Message{
		ID:             id.Message(),
		ConversationID: conversationID,
		Role:           role,
		ContentSize:    len(content),
		StorageType:    model.StorageInline,
		Metadata:       metadata,
		Timestamp:      time.Now(),
	}

	switch {
	case msg.ContentSize <= s.inlineThreshold:
		msg.Content = content
	case s.blobs == nil:
		log.Warn().Str("conversation_id", conversationID).Int("size", msg.ContentSize).
			Msg("未配置对象存储，大消息内联保存")
		msg.Content = content
	default:
		key := BlobKey(conversationID, msg.ID)
		if _, err := s.blobs.Upload(ctx, key, strings.NewReader(content), blobContentType); err != nil {
			return nil, fmt.Errorf("upload message content: %w", err)
		}
		msg.StorageType = model.StorageBlob
		msg.ContentURL = key
		msg.ContentPreview = Preview(content, s.previewLength)
	}

	if err := s.messages.Insert(ctx, msg); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// LoadContent 返回消息完整内容，对象存储中的内容丢失时退化为预览
func (s *ContentStore) LoadContent(ctx context.Context, msg *model.Message) (string, error) {
	if !msg.IsBlob() {
		return msg.Content, nil
	}
	if s.blobs == nil {
		return msg.ContentPreview, nil
	}

	r, err := s.blobs.Download(ctx, msg.ContentURL)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Warn().Str("message_id", msg.ID).Str("key", msg.ContentURL).Msg("消息内容对象不存在，使用预览")
			return msg.ContentPreview, nil
		}
		return "", fmt.Errorf("download message content: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read message content: %w", err)
	}
	return string(data), nil
}

// History 按时间正序返回对话最近 limit 条消息，Content 已填充为完整内容
func (s *ContentStore) History(ctx context.Context, conversationID string, limit int) ([]*model.Message, error) {
	msgs, err := s.messages.ListByConversation(ctx, conversationID, limit)
	if err != nil {
		return nil, err
	}
	for _, msg := range msgs {
		content, err := s.LoadContent(ctx, msg)
		if err != nil {
			log.Warn().Err(err).Str("message_id", msg.ID).Msg("加载历史消息内容失败，使用预览")
			content = msg.ContentPreview
		}
		msg.Content = content
	}
	return msgs, nil
}

// Preview 截取前 n 个字符，超出时追加 ...
func Preview(content string, n int) string {
	if utf8.RuneCountInString(content) <= n {
		return content
	}
	runes := []rune(content)
	return string(runes[:n]) + "..."
}
