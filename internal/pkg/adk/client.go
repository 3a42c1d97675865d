package adk

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"intellisurf/internal/pkg/id"
)

var (
	// ErrSessionNotFound agent server 上不存在该 session
	ErrSessionNotFound = errors.New("adk: session not found")
	// ErrServerNotFound /run 返回 404，通常是 agent server 没有启动对应 app
	ErrServerNotFound = errors.New("adk: agent server not found, start it with: adk api_server --port 8000")
	// ErrUnavailable 无法连接 agent server
	ErrUnavailable = errors.New("adk: cannot connect to agent server")
	// ErrStreamIdle SSE 流超过 StreamTimeout 没有任何数据
	ErrStreamIdle = errors.New("adk: sse stream idle timeout")
)

// StatusError agent server 返回非 2xx
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("adk: server error: %d - %s", e.StatusCode, e.Body)
}

const (
	DefaultBaseURL       = "http://localhost:8000"
	DefaultAppName       = "academic-research"
	DefaultTimeout       = 120 * time.Second
	DefaultStreamTimeout = 60 * time.Second

	sseDataPrefix = "data: "
	// 单行 SSE 事件最大长度
	maxSSELineSize = 10 * 1024 * 1024
)

// Config ADK 客户端配置
type Config struct {
	BaseURL       string
	AppName       string
	Timeout       time.Duration // /run 及 session 接口超时
	StreamTimeout time.Duration // /run_sse 两次读取之间的最长空闲时间
}

// Client ADK api_server 客户端
type Client struct {
	baseURL      string
	appName      string
	httpClient   *http.Client
	streamClient *http.Client
	streamIdle   time.Duration
}

// NewClient 创建 ADK 客户端
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	appName := cfg.AppName
	if appName == "" {
		appName = DefaultAppName
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	streamTimeout := cfg.StreamTimeout
	if streamTimeout <= 0 {
		streamTimeout = DefaultStreamTimeout
	}

	return &Client{
		baseURL:      baseURL,
		appName:      appName,
		httpClient:   &http.Client{Timeout: timeout},
		// 流式请求不设整体超时，只限制空闲时间
		streamClient: &http.Client{},
		streamIdle:   streamTimeout,
	}
}

// AppName 当前使用的 agent app 名称
func (c *Client) AppName() string {
	return c.appName
}

// Session agent server 上的 session
type Session struct {
	ID             string         `json:"id"`
	AppName        string         `json:"appName"`
	UserID         string         `json:"userId"`
	State          map[string]any `json:"state"`
	Events         []Event        `json:"events"`
	LastUpdateTime float64        `json:"lastUpdateTime"`
}

// ListApps 获取可用的 agent 列表
func (c *Client) ListApps(ctx context.Context) ([]string, error) {
	var apps []string
	if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/list-apps", nil, &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

// CreateSession 创建（或覆盖）session
func (c *Client) CreateSession(ctx context.Context, userID, sessionID string, state map[string]any) (*Session, error) {
	if state == nil {
		state = map[string]any{}
	}
	var session Session
	body := map[string]any{"state": state}
	if err := c.doJSON(ctx, http.MethodPost, c.sessionURL(userID, sessionID), body, &session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if session.ID == "" {
		session.ID = sessionID
	}
	return &session, nil
}

// GetSession 获取 session 详情（state 与 events），不存在返回 ErrSessionNotFound
func (c *Client) GetSession(ctx context.Context, userID, sessionID string) (*Session, error) {
	var session Session
	err := c.doJSON(ctx, http.MethodGet, c.sessionURL(userID, sessionID), nil, &session)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session.ID == "" {
		session.ID = sessionID
	}
	return &session, nil
}

// DeleteSession 删除 session 及其全部事件
func (c *Client) DeleteSession(ctx context.Context, userID, sessionID string) error {
	err := c.doJSON(ctx, http.MethodDelete, c.sessionURL(userID, sessionID), nil, nil)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return ErrSessionNotFound
		}
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// GetOrCreateSession 获取已有 session，不存在（或查询失败）时创建
// sessionID 为空时生成新的 UUID
func (c *Client) GetOrCreateSession(ctx context.Context, userID, sessionID string) (*Session, error) {
	if sessionID == "" {
		sessionID = id.New()
	}

	session, err := c.GetSession(ctx, userID, sessionID)
	if err == nil {
		return session, nil
	}

	return c.CreateSession(ctx, userID, sessionID, nil)
}

// Run 执行 agent 并一次性返回全部事件
func (c *Client) Run(ctx context.Context, userID, sessionID, message string) ([]Event, error) {
	payload := c.runPayload(userID, sessionID, message, false)

	var raw json.RawMessage
	err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/run", payload, &raw)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return nil, ErrServerNotFound
		}
		return nil, err
	}

	return decodeEvents(raw), nil
}

// RunSSE 以 SSE 方式执行 agent，每个事件回调一次 fn
// fn 返回错误时停止读取并返回该错误
func (c *Client) RunSSE(ctx context.Context, userID, sessionID, message string, fn func(Event) error) error {
	payload := c.runPayload(userID, sessionID, message, true)
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal run payload: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var idle atomic.Bool
	timer := time.AfterFunc(c.streamIdle, func() {
		idle.Store(true)
		cancel()
	})
	defer timer.Stop()

	req, err := http.NewRequestWithContext(streamCtx, http.MethodPost, c.baseURL+"/run_sse", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		if idle.Load() {
			return ErrStreamIdle
		}
		return wrapTransportError(err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxSSELineSize)
	for scanner.Scan() {
		if !timer.Stop() {
			break
		}
		line := scanner.Text()
		if strings.HasPrefix(line, sseDataPrefix) {
			var event Event
			if err := json.Unmarshal([]byte(line[len(sseDataPrefix):]), &event); err != nil {
				log.Debug().Err(err).Str("session_id", sessionID).Msg("跳过无法解析的 SSE 事件")
			} else if err := fn(event); err != nil {
				return err
			}
		}
		timer.Reset(c.streamIdle)
	}
	if idle.Load() {
		return fmt.Errorf("read sse stream: %w", ErrStreamIdle)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read sse stream: %w", err)
	}
	return nil
}

type runPart struct {
	Text string `json:"text"`
}

type runMessage struct {
	Role  string    `json:"role"`
	Parts []runPart `json:"parts"`
}

type runRequest struct {
	AppName    string     `json:"app_name"`
	UserID     string     `json:"user_id"`
	SessionID  string     `json:"session_id"`
	NewMessage runMessage `json:"new_message"`
	Streaming  bool       `json:"streaming,omitempty"`
}

func (c *Client) runPayload(userID, sessionID, message string, streaming bool) *runRequest {
	return &runRequest{
		AppName:   c.appName,
		UserID:    userID,
		SessionID: sessionID,
		NewMessage: runMessage{
			Role:  "user",
			Parts: []runPart{{Text: message}},
		},
		Streaming: streaming,
	}
}

func (c *Client) sessionURL(userID, sessionID string) string {
	return fmt.Sprintf("%s/apps/%s/users/%s/sessions/%s",
		c.baseURL, url.PathEscape(c.appName), url.PathEscape(userID), url.PathEscape(sessionID))
}

// doJSON 发送 JSON 请求，out 为 nil 时丢弃响应体
func (c *Client) doJSON(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return wrapTransportError(err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

func wrapTransportError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// decodeEvents /run 可能返回单个对象或对象数组
func decodeEvents(raw json.RawMessage) []Event {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return []Event{}
	}

	switch trimmed[0] {
	case '{':
		var event Event
		if err := json.Unmarshal(trimmed, &event); err == nil {
			return []Event{event}
		}
	case '[':
		var events []Event
		if err := json.Unmarshal(trimmed, &events); err == nil {
			return events
		}
	}

	log.Warn().Str("response", truncate(string(trimmed), 200)).Msg("agent 返回了无法识别的响应格式")
	return []Event{}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
