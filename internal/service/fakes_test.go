package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"intellisurf/internal/ai"
	"intellisurf/internal/model"
	"intellisurf/internal/pkg/adk"
	"intellisurf/internal/pkg/cache"
)

// fakeAgent 模拟 agent server
type fakeAgent struct {
	mu sync.Mutex

	apps       []string
	appsErr    error
	getErr     error
	createErr  error
	deleteErr  error
	runEvents  []adk.Event
	runErr     error
	sseEvents  []adk.Event
	sseErr     error
	getCalls   int
	createArgs []string
	runCalls   int
	sseCalls   int
	messages   []string
}

func (f *fakeAgent) ListApps(ctx context.Context) ([]string, error) {
	return f.apps, f.appsErr
}

func (f *fakeAgent) CreateSession(ctx context.Context, userID, sessionID string, state map[string]any) (*adk.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createArgs = append(f.createArgs, sessionID)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &adk.Session{ID: sessionID, UserID: userID}, nil
}

func (f *fakeAgent) GetSession(ctx context.Context, userID, sessionID string) (*adk.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &adk.Session{ID: sessionID, UserID: userID}, nil
}

func (f *fakeAgent) DeleteSession(ctx context.Context, userID, sessionID string) error {
	return f.deleteErr
}

func (f *fakeAgent) Run(ctx context.Context, userID, sessionID, message string) ([]adk.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runCalls++
	f.messages = append(f.messages, message)
	return f.runEvents, f.runErr
}

func (f *fakeAgent) RunSSE(ctx context.Context, userID, sessionID, message string, fn func(adk.Event) error) error {
	f.mu.Lock()
	f.sseCalls++
	f.messages = append(f.messages, message)
	events, sseErr := f.sseEvents, f.sseErr
	f.mu.Unlock()

	for _, e := range events {
		if err := fn(e); err != nil {
			return err
		}
	}
	return sseErr
}

func modelEvent(text string) adk.Event {
	return adk.Event{"content": map[string]any{
		"role":  "model",
		"parts": []any{map[string]any{"text": text}},
	}}
}

// fakeLocal 模拟本地模型
type fakeLocal struct {
	reply   string
	chunks  []string
	err     error
	lastReq *ai.ChatRequest
}

func (f *fakeLocal) Chat(ctx context.Context, req *ai.ChatRequest) (*ai.ChatResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &ai.ChatResponse{Content: f.reply, Usage: &model.TokenUsage{TotalTokens: 7}}, nil
}

func (f *fakeLocal) ChatStream(ctx context.Context, req *ai.ChatRequest) (<-chan *ai.Chunk, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan *ai.Chunk, len(f.chunks)+1)
	for _, c := range f.chunks {
		ch <- &ai.Chunk{Content: c}
	}
	ch <- &ai.Chunk{Done: true}
	close(ch)
	return ch, nil
}

func (f *fakeLocal) ModelName() string {
	return "fake-model"
}

// memoryCache 内存版 session 缓存
type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string][]byte{}}
}

func (c *memoryCache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = data
	return nil
}

func (c *memoryCache) Get(ctx context.Context, key string, dest any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.data[key]
	if !ok {
		return cache.ErrMiss
	}
	return json.Unmarshal(data, dest)
}

func (c *memoryCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

var errBoom = errors.New("boom")
