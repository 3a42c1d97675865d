package dynamostore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"intellisurf/internal/model"
	"intellisurf/internal/repository"
)

// DocumentStore 文档请求与对话共用一张表，完整记录以 JSON 保存在 data 属性
type DocumentStore struct {
	api       API
	tableName string
}

var _ repository.DocumentRequestStore = (*DocumentStore)(nil)

// NewDocumentStore 创建文档请求存储
func NewDocumentStore(api API, tableName string) (*DocumentStore, error) {
	if api == nil {
		return nil, errors.New("dynamostore: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("dynamostore: table name must not be empty")
	}
	return &DocumentStore{api: api, tableName: tableName}, nil
}

func docKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pkPrefixDoc + id},
		"SK": &types.AttributeValueMemberS{Value: skMeta},
	}
}

// Create 条件写入，ID 已存在时报错
func (s *DocumentStore) Create(ctx context.Context, req *model.DocumentRequest) error {
	item, err := documentItem(req)
	if err != nil {
		return err
	}
	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return fmt.Errorf("dynamostore: create document request: %w", err)
	}
	return nil
}

// FindByID 读取文档请求
func (s *DocumentStore) FindByID(ctx context.Context, id string) (*model.DocumentRequest, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            docKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamostore: find document request: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, repository.ErrNotFound
	}
	return itemToDocument(out.Item)
}

// Update 整体覆盖，记录不存在时返回 ErrNotFound
func (s *DocumentStore) Update(ctx context.Context, req *model.DocumentRequest) error {
	item, err := documentItem(req)
	if err != nil {
		return err
	}
	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_exists(PK)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("dynamostore: update document request: %w", err)
	}
	return nil
}

// ListPending 扫描待处理请求后按创建时间排序
func (s *DocumentStore) ListPending(ctx context.Context, limit int) ([]*model.DocumentRequest, error) {
	in := &dynamodb.ScanInput{
		TableName:                aws.String(s.tableName),
		FilterExpression:         aws.String("begins_with(PK, :doc) AND SK = :meta AND #status = :pending"),
		ExpressionAttributeNames: map[string]string{"#status": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":doc":     &types.AttributeValueMemberS{Value: pkPrefixDoc},
			":meta":    &types.AttributeValueMemberS{Value: skMeta},
			":pending": &types.AttributeValueMemberS{Value: model.DocumentPending},
		},
	}

	reqs := make([]*model.DocumentRequest, 0)
	err := scanAll(ctx, s.api, in, func(item map[string]types.AttributeValue) error {
		if !strings.HasPrefix(stringAttr(item, "PK"), pkPrefixDoc) || stringAttr(item, "SK") != skMeta {
			return nil
		}
		req, err := itemToDocument(item)
		if err != nil {
			return err
		}
		if req.Status == model.DocumentPending {
			reqs = append(reqs, req)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dynamostore: list pending document requests: %w", err)
	}

	sort.SliceStable(reqs, func(i, j int) bool { return reqs[i].CreatedAt.Before(reqs[j].CreatedAt) })
	if limit > 0 && len(reqs) > limit {
		reqs = reqs[:limit]
	}
	return reqs, nil
}

func documentItem(req *model.DocumentRequest) (map[string]types.AttributeValue, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("dynamostore: encode document request: %w", err)
	}
	item := docKey(req.ID)
	item["id"] = &types.AttributeValueMemberS{Value: req.ID}
	item["user_id"] = &types.AttributeValueMemberS{Value: req.UserID}
	item["status"] = &types.AttributeValueMemberS{Value: req.Status}
	item["created_at"] = &types.AttributeValueMemberS{Value: req.CreatedAt.UTC().Format(sortKeyLayout)}
	item["data"] = &types.AttributeValueMemberS{Value: string(data)}
	return item, nil
}

func itemToDocument(item map[string]types.AttributeValue) (*model.DocumentRequest, error) {
	var req model.DocumentRequest
	if err := json.Unmarshal([]byte(stringAttr(item, "data")), &req); err != nil {
		return nil, fmt.Errorf("dynamostore: decode document request: %w", err)
	}
	return &req, nil
}
