package model

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// 消息角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// 消息内容存储方式
const (
	StorageInline = "inline" // 内容直接存放在消息文档中
	StorageBlob   = "blob"   // 内容存放在对象存储中，文档只保留 key 与预览
)

// 对话状态
const (
	ConversationActive   = "active"
	ConversationArchived = "archived"
	ConversationDeleted  = "deleted"
)

// 响应来源
const (
	SourceADK    = "adk"
	SourceADKSSE = "adk_sse"
	SourceLocal  = "local"
	SourceError  = "error"
)

// Conversation 对话记录
type Conversation struct {
	ID           string    `bson:"_id" json:"id"`
	UserID       string    `bson:"user_id" json:"user_id"`
	Title        string    `bson:"title" json:"title"`
	AgentType    string    `bson:"agent_type" json:"agent_type"`
	SessionID    string    `bson:"session_id,omitempty" json:"session_id,omitempty"` // agent server 的 session
	Status       string    `bson:"status" json:"status"`
	MessageCount int       `bson:"message_count" json:"message_count"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updated_at"`
}

// Collection 返回集合名称
func (c *Conversation) Collection() string {
	return "conversations"
}

// EnsureIndexes 创建和维护索引
func (c *Conversation) EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	coll := db.Collection(c.Collection())
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{bson.E{Key: "user_id", Value: 1}, bson.E{Key: "updated_at", Value: -1}},
			Options: options.Index().SetName("idx_user_updated"),
		},
		{
			Keys:    bson.D{bson.E{Key: "session_id", Value: 1}},
			Options: options.Index().SetName("idx_session"),
		},
	}
	_, err := coll.Indexes().CreateMany(ctx, indexes)
	return err
}

// Message 对话消息
type Message struct {
	ID             string          `bson:"_id" json:"id"`
	ConversationID string          `bson:"conversation_id" json:"conversation_id"`
	Role           string          `bson:"role" json:"role"`
	Content        string          `bson:"content,omitempty" json:"content,omitempty"`                 // inline 时的完整内容
	ContentURL     string          `bson:"content_url,omitempty" json:"content_url,omitempty"`         // blob 时的对象 key
	ContentPreview string          `bson:"content_preview,omitempty" json:"content_preview,omitempty"` // blob 时的预览
	ContentSize    int             `bson:"content_size" json:"content_size"`                           // UTF-8 字节数
	StorageType    string          `bson:"storage_type" json:"storage_type"`
	Metadata       MessageMetadata `bson:"metadata" json:"metadata"`
	Timestamp      time.Time       `bson:"timestamp" json:"timestamp"`
}

// Collection 返回集合名称
func (m *Message) Collection() string {
	return "messages"
}

// EnsureIndexes 创建和维护索引
func (m *Message) EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	coll := db.Collection(m.Collection())
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{bson.E{Key: "conversation_id", Value: 1}, bson.E{Key: "timestamp", Value: 1}},
			Options: options.Index().SetName("idx_conversation_timestamp"),
		},
		{
			Keys:    bson.D{bson.E{Key: "storage_type", Value: 1}},
			Options: options.Index().SetName("idx_storage_type"),
		},
	}
	_, err := coll.Indexes().CreateMany(ctx, indexes)
	return err
}

// IsBlob 内容是否存放在对象存储
func (m *Message) IsBlob() bool {
	return m.StorageType == StorageBlob
}

// MessageMetadata 消息元数据
type MessageMetadata struct {
	Attachments      []AttachmentMetadata `bson:"attachments,omitempty" json:"attachments,omitempty"`
	ModelVersion     string               `bson:"model_version,omitempty" json:"model_version,omitempty"`
	ProcessingTimeMs int64                `bson:"processing_time_ms,omitempty" json:"processing_time_ms,omitempty"`
	Source           string               `bson:"source,omitempty" json:"source,omitempty"`
	SessionID        string               `bson:"session_id,omitempty" json:"session_id,omitempty"`
	Usage            *TokenUsage          `bson:"usage,omitempty" json:"usage,omitempty"`
	Error            bool                 `bson:"error,omitempty" json:"error,omitempty"`
}

// AttachmentMetadata 附件元数据
type AttachmentMetadata struct {
	Filename    string    `bson:"filename" json:"filename"`
	URL         string    `bson:"url" json:"url"`
	Type        string    `bson:"type" json:"type"` // MIME 类型
	Size        int64     `bson:"size" json:"size"` // 字节
	UploadedAt  time.Time `bson:"uploaded_at" json:"uploaded_at"`
	DownloadURL string    `bson:"download_url,omitempty" json:"download_url,omitempty"` // 预签名下载地址，有效期见 AttachmentURLExpiry
}

// TokenUsage Token 使用统计
type TokenUsage struct {
	PromptTokens     int `bson:"prompt_tokens" json:"prompt_tokens"`
	CompletionTokens int `bson:"completion_tokens" json:"completion_tokens"`
	TotalTokens      int `bson:"total_tokens" json:"total_tokens"`
}
