// Package dynamostore 使用 DynamoDB 单表保存对话与消息
//
// 键设计：
//
//	PK = CONV#{conversation_id}
//	SK = META#                          对话记录
//	SK = MSG#{UTC 纳秒定长时间}#{message_id}  消息记录
//
//	PK = DOC#{request_id}
//	SK = META#                          文档请求
package dynamostore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"intellisurf/internal/model"
	"intellisurf/internal/repository"
)

const (
	skMeta       = "META#"
	skPrefixMsg  = "MSG#"
	pkPrefixConv = "CONV#"
	pkPrefixDoc  = "DOC#"

	// 定长时间格式，保证 SK 的字典序与时间顺序一致
	sortKeyLayout = "2006-01-02T15:04:05.000000000Z"
)

// API Store 依赖的最小 DynamoDB 接口
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Store DynamoDB 存储，同时实现 ConversationStore 与 MessageStore
type Store struct {
	api       API
	tableName string
}

var (
	_ repository.ConversationStore = (*Store)(nil)
	_ repository.MessageStore      = (*Store)(nil)
)

// New 创建 DynamoDB 存储
func New(api API, tableName string) (*Store, error) {
	if api == nil {
		return nil, errors.New("dynamostore: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("dynamostore: table name must not be empty")
	}
	return &Store{api: api, tableName: tableName}, nil
}

// NewClient 使用默认凭证链创建 DynamoDB 客户端，endpoint 非空时指向本地 DynamoDB
func NewClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("dynamostore: load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

func convPK(id string) string {
	return pkPrefixConv + id
}

func msgSK(ts time.Time, id string) string {
	return skPrefixMsg + ts.UTC().Format(sortKeyLayout) + "#" + id
}

func conversationKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: convPK(id)},
		"SK": &types.AttributeValueMemberS{Value: skMeta},
	}
}

// Ensure 条件写入，对话已存在时返回 false
func (s *Store) Ensure(ctx context.Context, conv *model.Conversation) (bool, error) {
	now := time.Now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = conv.CreatedAt
	if conv.Status == "" {
		conv.Status = model.ConversationActive
	}
	conv.MessageCount = 0

	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                conversationItem(conv),
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, fmt.Errorf("dynamostore: Ensure: %w", err)
	}
	return true, nil
}

// Touch 原子累加消息数并刷新 updated_at
func (s *Store) Touch(ctx context.Context, id string, n int) error {
	_, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 conversationKey(id),
		UpdateExpression:    aws.String("ADD message_count :n SET updated_at = :now"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":n":   &types.AttributeValueMemberN{Value: strconv.Itoa(n)},
			":now": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("dynamostore: Touch: %w", err)
	}
	return nil
}

// FindByID 读取对话记录
func (s *Store) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            conversationKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamostore: FindByID: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, repository.ErrNotFound
	}
	return itemToConversation(out.Item)
}

// ArchiveBefore 扫描活跃对话，逐条条件更新为 archived
// updated_at 在扫描后被 Touch 刷新的对话会因条件不满足而跳过
func (s *Store) ArchiveBefore(ctx context.Context, before time.Time) (int, error) {
	in := &dynamodb.ScanInput{
		TableName:                aws.String(s.tableName),
		FilterExpression:         aws.String("begins_with(PK, :conv) AND SK = :meta AND #status = :active"),
		ExpressionAttributeNames: map[string]string{"#status": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":conv":   &types.AttributeValueMemberS{Value: pkPrefixConv},
			":meta":   &types.AttributeValueMemberS{Value: skMeta},
			":active": &types.AttributeValueMemberS{Value: model.ConversationActive},
		},
	}

	archived := 0
	err := scanAll(ctx, s.api, in, func(item map[string]types.AttributeValue) error {
		if !strings.HasPrefix(stringAttr(item, "PK"), pkPrefixConv) || stringAttr(item, "SK") != skMeta {
			return nil
		}
		conv, err := itemToConversation(item)
		if err != nil {
			return err
		}
		// updated_at 按解析后的时间比较，不依赖字符串顺序
		if conv.Status != model.ConversationActive || !conv.UpdatedAt.Before(before) {
			return nil
		}

		_, err = s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                aws.String(s.tableName),
			Key:                      conversationKey(conv.ID),
			UpdateExpression:         aws.String("SET #status = :archived"),
			ConditionExpression:      aws.String("#status = :active AND updated_at = :seen"),
			ExpressionAttributeNames: map[string]string{"#status": "status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":archived": &types.AttributeValueMemberS{Value: model.ConversationArchived},
				":active":   &types.AttributeValueMemberS{Value: model.ConversationActive},
				":seen":     item["updated_at"],
			},
		})
		if err != nil {
			var ccf *types.ConditionalCheckFailedException
			if errors.As(err, &ccf) {
				return nil
			}
			return err
		}
		archived++
		return nil
	})
	if err != nil {
		return archived, fmt.Errorf("dynamostore: ArchiveBefore: %w", err)
	}
	return archived, nil
}

// scanAll 逐页扫描，对每条记录调用 fn
func scanAll(ctx context.Context, api API, in *dynamodb.ScanInput, fn func(map[string]types.AttributeValue) error) error {
	for {
		out, err := api.Scan(ctx, in)
		if err != nil {
			return err
		}
		for _, item := range out.Items {
			if err := fn(item); err != nil {
				return err
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// Insert 写入消息记录
func (s *Store) Insert(ctx context.Context, msg *model.Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	item, err := messageItem(msg)
	if err != nil {
		return err
	}
	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("dynamostore: Insert: %w", err)
	}
	return nil
}

// ListByConversation 倒序查询最近 limit 条后翻转为时间正序
func (s *Store) ListByConversation(ctx context.Context, conversationID string, limit int) ([]*model.Message, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: convPK(conversationID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixMsg},
		},
		ScanIndexForward: aws.Bool(false),
	}

	msgs := make([]*model.Message, 0)
	for {
		if limit > 0 {
			in.Limit = aws.Int32(int32(limit - len(msgs)))
		}
		out, err := s.api.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("dynamostore: ListByConversation: %w", err)
		}
		for _, item := range out.Items {
			msg, err := itemToMessage(item)
			if err != nil {
				return nil, err
			}
			msgs = append(msgs, msg)
		}
		if len(out.LastEvaluatedKey) == 0 || (limit > 0 && len(msgs) >= limit) {
			break
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func conversationItem(conv *model.Conversation) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK":            &types.AttributeValueMemberS{Value: convPK(conv.ID)},
		"SK":            &types.AttributeValueMemberS{Value: skMeta},
		"id":            &types.AttributeValueMemberS{Value: conv.ID},
		"user_id":       &types.AttributeValueMemberS{Value: conv.UserID},
		"title":         &types.AttributeValueMemberS{Value: conv.Title},
		"agent_type":    &types.AttributeValueMemberS{Value: conv.AgentType},
		"status":        &types.AttributeValueMemberS{Value: conv.Status},
		"message_count": &types.AttributeValueMemberN{Value: strconv.Itoa(conv.MessageCount)},
		"created_at":    &types.AttributeValueMemberS{Value: conv.CreatedAt.UTC().Format(time.RFC3339Nano)},
		"updated_at":    &types.AttributeValueMemberS{Value: conv.UpdatedAt.UTC().Format(time.RFC3339Nano)},
	}
	if conv.SessionID != "" {
		item["session_id"] = &types.AttributeValueMemberS{Value: conv.SessionID}
	}
	return item
}

func itemToConversation(item map[string]types.AttributeValue) (*model.Conversation, error) {
	count, err := intAttr(item, "message_count")
	if err != nil {
		return nil, fmt.Errorf("dynamostore: decode message_count: %w", err)
	}
	createdAt, err := timeAttr(item, "created_at")
	if err != nil {
		return nil, err
	}
	updatedAt, err := timeAttr(item, "updated_at")
	if err != nil {
		return nil, err
	}
	return &model.Conversation{
		ID:           stringAttr(item, "id"),
		UserID:       stringAttr(item, "user_id"),
		Title:        stringAttr(item, "title"),
		AgentType:    stringAttr(item, "agent_type"),
		SessionID:    stringAttr(item, "session_id"),
		Status:       stringAttr(item, "status"),
		MessageCount: count,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

func messageItem(msg *model.Message) (map[string]types.AttributeValue, error) {
	meta, err := json.Marshal(msg.Metadata)
	if err != nil {
		return nil, fmt.Errorf("dynamostore: encode metadata: %w", err)
	}
	item := map[string]types.AttributeValue{
		"PK":              &types.AttributeValueMemberS{Value: convPK(msg.ConversationID)},
		"SK":              &types.AttributeValueMemberS{Value: msgSK(msg.Timestamp, msg.ID)},
		"id":              &types.AttributeValueMemberS{Value: msg.ID},
		"conversation_id": &types.AttributeValueMemberS{Value: msg.ConversationID},
		"role":            &types.AttributeValueMemberS{Value: msg.Role},
		"content_size":    &types.AttributeValueMemberN{Value: strconv.Itoa(msg.ContentSize)},
		"storage_type":    &types.AttributeValueMemberS{Value: msg.StorageType},
		"metadata":        &types.AttributeValueMemberS{Value: string(meta)},
		"timestamp":       &types.AttributeValueMemberS{Value: msg.Timestamp.UTC().Format(time.RFC3339Nano)},
	}
	// 空字段不写入
	for name, v := range map[string]string{
		"content":         msg.Content,
		"content_url":     msg.ContentURL,
		"content_preview": msg.ContentPreview,
	} {
		if v != "" {
			item[name] = &types.AttributeValueMemberS{Value: v}
		}
	}
	return item, nil
}

func itemToMessage(item map[string]types.AttributeValue) (*model.Message, error) {
	size, err := intAttr(item, "content_size")
	if err != nil {
		return nil, fmt.Errorf("dynamostore: decode content_size: %w", err)
	}
	ts, err := timeAttr(item, "timestamp")
	if err != nil {
		return nil, err
	}
	msg := &model.Message{
		ID:             stringAttr(item, "id"),
		ConversationID: stringAttr(item, "conversation_id"),
		Role:           stringAttr(item, "role"),
		Content:        stringAttr(item, "content"),
		ContentURL:     stringAttr(item, "content_url"),
		ContentPreview: stringAttr(item, "content_preview"),
		ContentSize:    size,
		StorageType:    stringAttr(item, "storage_type"),
		Timestamp:      ts,
	}
	if raw := stringAttr(item, "metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &msg.Metadata); err != nil {
			return nil, fmt.Errorf("dynamostore: decode metadata: %w", err)
		}
	}
	return msg, nil
}

func stringAttr(item map[string]types.AttributeValue, key string) string {
	if v, ok := item[key].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, nil
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("attribute %s is not a number", key)
	}
	return strconv.Atoi(n.Value)
}

func timeAttr(item map[string]types.AttributeValue, key string) (time.Time, error) {
	raw := stringAttr(item, key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("dynamostore: decode %s: %w", key, err)
	}
	return t, nil
}
