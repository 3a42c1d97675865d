package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"intellisurf/internal/model"
)

// MessageStore 消息文档存储
type MessageStore interface {
	// Insert 写入消息文档
	Insert(ctx context.Context, msg *model.Message) error
	// ListByConversation 按时间正序返回最近 limit 条消息，limit <= 0 返回全部
	ListByConversation(ctx context.Context, conversationID string, limit int) ([]*model.Message, error)
}

// MessageRepo MongoDB 消息仓库
type MessageRepo struct {
	collection *mongo.Collection
}

// NewMessageRepo 创建消息仓库
func NewMessageRepo(db *mongo.Database) *MessageRepo {
	return &MessageRepo{
		collection: db.Collection((&model.Message{}).Collection()),
	}
}

// Insert 写入消息
func (r *MessageRepo) Insert(ctx context.Context, msg *model.Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	_, err := r.collection.InsertOne(ctx, msg)
	return err
}

// ListByConversation 先倒序取最近 limit 条，再翻转为正序
func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID string, limit int) ([]*model.Message, error) {
	opts := options.Find().SetSort(bson.D{bson.E{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var msgs []*model.Message
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, err
	}

	reverse(msgs)
	return msgs, nil
}

func reverse(msgs []*model.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
