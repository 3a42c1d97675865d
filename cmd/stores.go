package cmd

import (
	"context"

	"github.com/rs/zerolog/log"

	"intellisurf/internal/config"
	"intellisurf/internal/pkg/mongodb"
	"intellisurf/internal/repository/repofactory"
)

// openStores 与服务端使用相同的存储选择规则，返回的 close 负责断开 MongoDB
func openStores(ctx context.Context, cfg *config.Config) (*repofactory.Stores, func(), error) {
	var client *mongodb.Client
	if cfg.Mongo.URI != "" {
		c, err := mongodb.New(ctx, &cfg.Mongo)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to MongoDB, using fallback store")
		} else {
			client = c
		}
	}

	closeFn := func() {
		if client != nil {
			if err := client.Close(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to close MongoDB connection")
			}
		}
	}

	stores, err := repofactory.New(ctx, cfg, client)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return stores, closeFn, nil
}
