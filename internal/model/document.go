package model

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// 文档请求状态
const (
	DocumentPending    = "pending"
	DocumentInProgress = "in_progress"
	DocumentCompleted  = "completed"
	DocumentFailed     = "failed"
)

// DocumentRequest 文档生成请求
// 请求正文保存在对象存储 documents/{user_id}/{id}.txt，记录中只保留 key 与预览
type DocumentRequest struct {
	ID             string            `bson:"_id" json:"id"`
	UserID         string            `bson:"user_id" json:"user_id"`
	ConversationID string            `bson:"conversation_id,omitempty" json:"conversation_id,omitempty"`
	MessageID      string            `bson:"message_id,omitempty" json:"message_id,omitempty"`
	DocumentType   string            `bson:"document_type" json:"document_type"`
	ContentURL     string            `bson:"content_url" json:"content_url"`
	ContentSize    int               `bson:"content_size" json:"content_size"`
	ContentPreview string            `bson:"content_preview,omitempty" json:"content_preview,omitempty"`
	Status         string            `bson:"status" json:"status"`
	Progress       int               `bson:"progress" json:"progress"` // 0-100
	OutputKey      string            `bson:"output_key,omitempty" json:"output_key,omitempty"` // 生成结果的对象 key
	Metadata       map[string]string `bson:"metadata,omitempty" json:"metadata,omitempty"`
	Logs           []DocumentLog     `bson:"logs" json:"logs"`
	CreatedAt      time.Time         `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time         `bson:"updated_at" json:"updated_at"`
	StartedAt      *time.Time        `bson:"started_at,omitempty" json:"started_at,omitempty"`
	CompletedAt    *time.Time        `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// DocumentLog 状态变更日志
type DocumentLog struct {
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	Status    string    `bson:"status" json:"status"`
	Details   string    `bson:"details,omitempty" json:"details,omitempty"`
}

// Collection 返回集合名称
func (d *DocumentRequest) Collection() string {
	return "document_requests"
}

// EnsureIndexes 创建和维护索引
func (d *DocumentRequest) EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	coll := db.Collection(d.Collection())
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{bson.E{Key: "status", Value: 1}, bson.E{Key: "created_at", Value: 1}},
			Options: options.Index().SetName("idx_status_created"),
		},
		{
			Keys:    bson.D{bson.E{Key: "user_id", Value: 1}, bson.E{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_user_created"),
		},
	}
	_, err := coll.Indexes().CreateMany(ctx, indexes)
	return err
}

// IsFinished 是否已进入终态
func (d *DocumentRequest) IsFinished() bool {
	return d.Status == DocumentCompleted || d.Status == DocumentFailed
}
