package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"

	"intellisurf/internal/model"
)

// EnsureIndexes 创建所有模型的索引，应用启动时调用
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	return EnsureAllIndexes(ctx, db,
		&model.Conversation{},
		&model.Message{},
		&model.DocumentRequest{},
	)
}
