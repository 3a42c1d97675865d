package model

import "time"

// ChatResponse 非流式对话响应
type ChatResponse struct {
	Response         string           `json:"response"`
	SessionID        string           `json:"session_id,omitempty"`
	ConversationID   string           `json:"conversation_id"`
	MessageID        string           `json:"message_id"`
	Source           string           `json:"source"`
	ProcessingTimeMs int64            `json:"processing_time_ms"`
	Events           []map[string]any `json:"events,omitempty"` // agent 原始事件
	Usage            *TokenUsage      `json:"usage,omitempty"`
	Error            bool             `json:"error,omitempty"`
}

// ChatChunk 流式对话片段
// 中间片段携带 Chunk，最后一个片段 Done 为 true 并携带 MessageID
type ChatChunk struct {
	Chunk          string `json:"chunk,omitempty"`
	Done           bool   `json:"done,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

// SessionResponse agent session 详情
type SessionResponse struct {
	ID             string           `json:"id"`
	AppName        string           `json:"app_name"`
	UserID         string           `json:"user_id"`
	State          map[string]any   `json:"state"`
	Events         []map[string]any `json:"events"`
	LastUpdateTime float64          `json:"last_update_time"`
}

// AgentsResponse 可用 agent 列表
type AgentsResponse struct {
	Agents []string `json:"agents"`
}

// DocumentResponse 文档请求详情，附带请求正文与生成结果的下载地址
type DocumentResponse struct {
	DocumentRequest
	ContentDownloadURL string `json:"content_download_url,omitempty"`
	OutputDownloadURL  string `json:"output_download_url,omitempty"`
}

// DocumentUploadResponse 生成结果的直传地址
type DocumentUploadResponse struct {
	Key       string    `json:"key"`
	UploadURL string    `json:"upload_url"`
	ExpiresAt time.Time `json:"expires_at"`
}
