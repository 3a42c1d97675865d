package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog/log"

	"intellisurf/internal/pkg/storage"
	"intellisurf/internal/repository"
)

const defaultCleanupWorkers = 8

// CleanupOptions 清理参数
type CleanupOptions struct {
	Prefix  string
	Before  time.Time // 删除最后修改时间早于该时间的对象
	DryRun  bool      // 只统计不删除
	Workers int       // 并发删除数，<= 0 使用默认值
}

// CleanupResult 清理结果
type CleanupResult struct {
	Scanned int
	Deleted int
	Failed  int
}

// CleanupBlobs 删除 prefix 下的过期对象
func CleanupBlobs(ctx context.Context, blobs storage.Storage, opts CleanupOptions) (*CleanupResult, error) {
	files, err := blobs.List(ctx, opts.Prefix)
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}

	var stale []string
	for _, f := range files {
		if f.LastModified.Before(opts.Before) {
			stale = append(stale, f.Key)
		}
	}

	result := &CleanupResult{Scanned: len(files)}
	if opts.DryRun {
		result.Deleted = len(stale)
	} else if len(stale) > 0 {
		deleted, failed, err := deleteBlobs(ctx, blobs, stale, opts.Workers)
		if err != nil {
			return nil, err
		}
		result.Deleted, result.Failed = deleted, failed
	}

	log.Info().
		Str("prefix", opts.Prefix).
		Time("before", opts.Before).
		Int("scanned", result.Scanned).
		Int("deleted", result.Deleted).
		Int("failed", result.Failed).
		Bool("dry_run", opts.DryRun).
		Msg("blob cleanup finished")
	return result, nil
}

// deleteBlobs 使用 ants 协程池并发删除
func deleteBlobs(ctx context.Context, blobs storage.Storage, keys []string, workers int) (int, int, error) {
	if workers <= 0 {
		workers = defaultCleanupWorkers
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return 0, 0, fmt.Errorf("create cleanup pool: %w", err)
	}
	defer pool.Release()

	var (
		wg      sync.WaitGroup
		deleted atomic.Int64
		failed  atomic.Int64
	)
	for _, key := range keys {
		key := key
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			if err := blobs.Delete(ctx, key); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("删除过期对象失败")
				failed.Add(1)
				return
			}
			deleted.Add(1)
		})
		if err != nil {
			wg.Done()
			log.Warn().Err(err).Str("key", key).Msg("提交删除任务失败")
			failed.Add(1)
		}
	}
	wg.Wait()
	return int(deleted.Load()), int(failed.Load()), nil
}

// ArchiveConversations 把 before 之前未更新的活跃对话标记为 archived
func ArchiveConversations(ctx context.Context, conversations repository.ConversationStore, before time.Time) (int, error) {
	n, err := conversations.ArchiveBefore(ctx, before)
	if err != nil {
		return n, fmt.Errorf("archive conversations: %w", err)
	}
	log.Info().Time("before", before).Int("archived", n).Msg("归档对话完成")
	return n, nil
}
