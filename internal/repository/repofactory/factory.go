// Package repofactory 按配置选择对话、消息与文档请求的存储后端
package repofactory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"intellisurf/internal/config"
	"intellisurf/internal/pkg/mongodb"
	"intellisurf/internal/repository"
	"intellisurf/internal/repository/dynamostore"
	"intellisurf/internal/repository/localstore"
)

// 存储后端
const (
	BackendMongo  = "mongo"
	BackendDynamo = "dynamo"
	BackendLocal  = "local"
)

// Stores 同一后端上的全部存储
type Stores struct {
	Backend       string
	Conversations repository.ConversationStore
	Messages      repository.MessageStore
	Documents     repository.DocumentRequestStore
}

// New 优先使用已连接的 MongoDB，其次是配置了表名的 DynamoDB，最后是本地 JSON 目录
func New(ctx context.Context, cfg *config.Config, mongo *mongodb.Client) (*Stores, error) {
	switch {
	case mongo != nil:
		db := mongo.Database()
		return &Stores{
			Backend:       BackendMongo,
			Conversations: repository.NewConversationRepo(db),
			Messages:      repository.NewMessageRepo(db),
			Documents:     repository.NewDocumentRequestRepo(db),
		}, nil
	case cfg.Dynamo.Table != "":
		client, err := dynamostore.NewClient(ctx, cfg.Dynamo.Region, cfg.Dynamo.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to init DynamoDB client: %w", err)
		}
		store, err := dynamostore.New(client, cfg.Dynamo.Table)
		if err != nil {
			return nil, err
		}
		docs, err := dynamostore.NewDocumentStore(client, cfg.Dynamo.Table)
		if err != nil {
			return nil, err
		}
		log.Info().Str("table", cfg.Dynamo.Table).Msg("using DynamoDB message store")
		return &Stores{Backend: BackendDynamo, Conversations: store, Messages: store, Documents: docs}, nil
	default:
		store, err := localstore.New(cfg.Chat.LocalStorePath)
		if err != nil {
			return nil, fmt.Errorf("failed to init local store: %w", err)
		}
		docs, err := localstore.NewDocumentStore(cfg.Chat.LocalStorePath)
		if err != nil {
			return nil, fmt.Errorf("failed to init local store: %w", err)
		}
		log.Info().Str("path", cfg.Chat.LocalStorePath).Msg("using local message store")
		return &Stores{Backend: BackendLocal, Conversations: store, Messages: store, Documents: docs}, nil
	}
}
