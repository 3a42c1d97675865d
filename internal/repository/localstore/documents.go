package localstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"intellisurf/internal/model"
	"intellisurf/internal/repository"
)

// DocumentStore 本地 JSON 文件保存文档请求
type DocumentStore struct {
	dir string
	mu  sync.Mutex
}

var _ repository.DocumentRequestStore = (*DocumentStore)(nil)

// NewDocumentStore 创建文档请求存储，与 Store 共用 basePath
func NewDocumentStore(basePath string) (*DocumentStore, error) {
	dir := filepath.Join(basePath, "document_requests")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create local store dir: %w", err)
	}
	return &DocumentStore{dir: dir}, nil
}

// Create 写入文档请求文件，ID 已存在时报错
func (s *DocumentStore) Create(ctx context.Context, req *model.DocumentRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.path(req.ID)
	if err != nil {
		return err
	}
	if _, err := os.Stat(p); err == nil {
		return fmt.Errorf("document request %s already exists", req.ID)
	}
	return writeJSON(p, req)
}

// FindByID 读取文档请求
func (s *DocumentStore) FindByID(ctx context.Context, id string) (*model.DocumentRequest, error) {
	p, err := s.path(id)
	if err != nil {
		return nil, err
	}
	var req model.DocumentRequest
	if err := readJSON(p, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// Update 覆盖文档请求文件
func (s *DocumentStore) Update(ctx context.Context, req *model.DocumentRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.path(req.ID)
	if err != nil {
		return err
	}
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return repository.ErrNotFound
		}
		return err
	}
	return writeJSON(p, req)
}

// ListPending 读取全部文件后按创建时间排序
func (s *DocumentStore) ListPending(ctx context.Context, limit int) ([]*model.DocumentRequest, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read document dir: %w", err)
	}

	reqs := make([]*model.DocumentRequest, 0)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		var req model.DocumentRequest
		if err := readJSON(filepath.Join(s.dir, entry.Name()), &req); err != nil {
			return nil, err
		}
		if req.Status == model.DocumentPending {
			reqs = append(reqs, &req)
		}
	}

	sort.SliceStable(reqs, func(i, j int) bool { return reqs[i].CreatedAt.Before(reqs[j].CreatedAt) })
	if limit > 0 && len(reqs) > limit {
		reqs = reqs[:limit]
	}
	return reqs, nil
}

func (s *DocumentStore) path(id string) (string, error) {
	name, err := safeName(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name+".json"), nil
}
