package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"intellisurf/internal/model"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("repository: not found")

// ConversationStore 对话记录存储
type ConversationStore interface {
	// Ensure 对话不存在时创建，返回是否新建
	Ensure(ctx context.Context, conv *model.Conversation) (bool, error)
	// Touch 消息数增加 n 并刷新 updated_at
	Touch(ctx context.Context, id string, n int) error
	// FindByID 查询对话，不存在返回 ErrNotFound
	FindByID(ctx context.Context, id string) (*model.Conversation, error)
	// ArchiveBefore 把 updated_at 早于 before 的活跃对话标记为 archived，返回归档数量
	ArchiveBefore(ctx context.Context, before time.Time) (int, error)
}

// ConversationRepo MongoDB 对话仓库
type ConversationRepo struct {
	collection *mongo.Collection
}

// NewConversationRepo 创建对话仓库
func NewConversationRepo(db *mongo.Database) *ConversationRepo {
	return &ConversationRepo{
		collection: db.Collection((&model.Conversation{}).Collection()),
	}
}

// Ensure 使用 upsert + $setOnInsert，已存在的对话保持不变
func (r *ConversationRepo) Ensure(ctx context.Context, conv *model.Conversation) (bool, error) {
	now := time.Now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = conv.CreatedAt
	if conv.Status == "" {
		conv.Status = model.ConversationActive
	}

	update := bson.M{
		"$setOnInsert": bson.M{
			"user_id":       conv.UserID,
			"title":         conv.Title,
			"agent_type":    conv.AgentType,
			"session_id":    conv.SessionID,
			"status":        conv.Status,
			"message_count": 0,
			"created_at":    conv.CreatedAt,
			"updated_at":    conv.UpdatedAt,
		},
	}
	result, err := r.collection.UpdateByID(ctx, conv.ID, update, options.Update().SetUpsert(true))
	if err != nil {
		return false, err
	}
	return result.UpsertedCount > 0, nil
}

// Touch 追加消息后更新计数
func (r *ConversationRepo) Touch(ctx context.Context, id string, n int) error {
	update := bson.M{
		"$inc": bson.M{"message_count": n},
		"$set": bson.M{"updated_at": time.Now()},
	}
	result, err := r.collection.UpdateByID(ctx, id, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// FindByID 根据 ID 查询
func (r *ConversationRepo) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&conv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &conv, nil
}

// ArchiveBefore 批量归档长时间未更新的活跃对话
func (r *ConversationRepo) ArchiveBefore(ctx context.Context, before time.Time) (int, error) {
	filter := bson.M{
		"status":     model.ConversationActive,
		"updated_at": bson.M{"$lt": before},
	}
	update := bson.M{"$set": bson.M{"status": model.ConversationArchived}}
	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return int(result.ModifiedCount), nil
}
