package repository

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"intellisurf/internal/model"
)

// DocumentRequestStore 文档请求存储
type DocumentRequestStore interface {
	// Create 写入新的文档请求
	Create(ctx context.Context, req *model.DocumentRequest) error
	// FindByID 查询文档请求，不存在返回 ErrNotFound
	FindByID(ctx context.Context, id string) (*model.DocumentRequest, error)
	// Update 覆盖已有的文档请求，不存在返回 ErrNotFound
	Update(ctx context.Context, req *model.DocumentRequest) error
	// ListPending 按创建时间正序返回待处理请求，limit <= 0 返回全部
	ListPending(ctx context.Context, limit int) ([]*model.DocumentRequest, error)
}

// DocumentRequestRepo MongoDB 文档请求仓库
type DocumentRequestRepo struct {
	collection *mongo.Collection
}

// NewDocumentRequestRepo 创建文档请求仓库
func NewDocumentRequestRepo(db *mongo.Database) *DocumentRequestRepo {
	return &DocumentRequestRepo{
		collection: db.Collection((&model.DocumentRequest{}).Collection()),
	}
}

// Create 写入文档请求
func (r *DocumentRequestRepo) Create(ctx context.Context, req *model.DocumentRequest) error {
	_, err := r.collection.InsertOne(ctx, req)
	return err
}

// FindByID 根据 ID 查询
func (r *DocumentRequestRepo) FindByID(ctx context.Context, id string) (*model.DocumentRequest, error) {
	var req model.DocumentRequest
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&req)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

// Update 整体替换文档
func (r *DocumentRequestRepo) Update(ctx context.Context, req *model.DocumentRequest) error {
	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": req.ID}, req)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPending 查询待处理请求
func (r *DocumentRequestRepo) ListPending(ctx context.Context, limit int) ([]*model.DocumentRequest, error) {
	opts := options.Find().SetSort(bson.D{bson.E{Key: "created_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{"status": model.DocumentPending}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	reqs := make([]*model.DocumentRequest, 0)
	if err := cursor.All(ctx, &reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}
