// Package localstore 在没有 MongoDB 时把对话与消息保存为本地 JSON 文件
//
// 目录结构：
//
//	{base}/conversations/{conversation_id}.json
//	{base}/messages/{conversation_id}/{message_id}.json
//	{base}/document_requests/{request_id}.json
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"intellisurf/internal/model"
	"intellisurf/internal/repository"
)

// Store 本地 JSON 文件存储，同时实现 ConversationStore 与 MessageStore
type Store struct {
	basePath string
	mu       sync.Mutex
}

// New 创建本地存储
func New(basePath string) (*Store, error) {
	for _, dir := range []string{"conversations", "messages"} {
		if err := os.MkdirAll(filepath.Join(basePath, dir), 0755); err != nil {
			return nil, fmt.Errorf("create local store dir: %w", err)
		}
	}
	return &Store{basePath: basePath}, nil
}

var (
	_ repository.ConversationStore = (*Store)(nil)
	_ repository.MessageStore      = (*Store)(nil)
)

// Ensure 对话文件不存在时创建
func (s *Store) Ensure(ctx context.Context, conv *model.Conversation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.conversationPath(conv.ID)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(p); err == nil {
		return false, nil
	}

	now := time.Now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = conv.CreatedAt
	if conv.Status == "" {
		conv.Status = model.ConversationActive
	}
	conv.MessageCount = 0

	if err := writeJSON(p, conv); err != nil {
		return false, err
	}
	return true, nil
}

// Touch 更新消息计数与更新时间
func (s *Store) Touch(ctx context.Context, id string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.conversationPath(id)
	if err != nil {
		return err
	}
	var conv model.Conversation
	if err := readJSON(p, &conv); err != nil {
		return err
	}
	conv.MessageCount += n
	conv.UpdatedAt = time.Now()
	return writeJSON(p, &conv)
}

// FindByID 读取对话
func (s *Store) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	p, err := s.conversationPath(id)
	if err != nil {
		return nil, err
	}
	var conv model.Conversation
	if err := readJSON(p, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// ArchiveBefore 遍历对话文件，归档长时间未更新的活跃对话
func (s *Store) ArchiveBefore(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.basePath, "conversations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read conversation dir: %w", err)
	}

	archived := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return archived, err
		}
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		p := filepath.Join(dir, entry.Name())
		var conv model.Conversation
		if err := readJSON(p, &conv); err != nil {
			return archived, err
		}
		if conv.Status != model.ConversationActive || !conv.UpdatedAt.Before(before) {
			continue
		}
		conv.Status = model.ConversationArchived
		if err := writeJSON(p, &conv); err != nil {
			return archived, err
		}
		archived++
	}
	return archived, nil
}

// Insert 写入消息文件
func (s *Store) Insert(ctx context.Context, msg *model.Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	dir, err := s.messageDir(msg.ConversationID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create message dir: %w", err)
	}
	name, err := safeName(msg.ID)
	if err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, name+".json"), msg)
}

// ListByConversation 按时间正序返回最近 limit 条消息
func (s *Store) ListByConversation(ctx context.Context, conversationID string, limit int) ([]*model.Message, error) {
	dir, err := s.messageDir(conversationID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*model.Message{}, nil
		}
		return nil, fmt.Errorf("read message dir: %w", err)
	}

	msgs := make([]*model.Message, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		var msg model.Message
		if err := readJSON(filepath.Join(dir, entry.Name()), &msg); err != nil {
			return nil, err
		}
		msgs = append(msgs, &msg)
	}

	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Timestamp.Before(msgs[j].Timestamp) })
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (s *Store) conversationPath(id string) (string, error) {
	name, err := safeName(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, "conversations", name+".json"), nil
}

func (s *Store) messageDir(conversationID string) (string, error) {
	name, err := safeName(conversationID)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, "messages", name), nil
}

// safeName id 只能作为单个文件名使用
func safeName(id string) (string, error) {
	if id == "" || id == "." || id == ".." || filepath.Base(id) != id {
		return "", fmt.Errorf("invalid id: %q", id)
	}
	return id, nil
}

func readJSON(p string, v any) error {
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return repository.ErrNotFound
		}
		return err
	}
	return json.Unmarshal(data, v)
}

func writeJSON(p string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}
