package model

// ChatRequest 对话请求（/adk-chat 与 /chat 共用）
type ChatRequest struct {
	UserInput      string   `json:"user_input" example:"Summarize recent work on retrieval-augmented generation"`
	ConversationID string   `json:"conversation_id,omitempty"`
	SessionID      string   `json:"session_id,omitempty"`
	Streaming      bool     `json:"streaming,omitempty"`
	Attachments    []string `json:"attachments,omitempty"` // 对象 key、/uploads/<key>、gs:// 或 oss:// URL
}

// DocumentCreateRequest 创建文档请求
type DocumentCreateRequest struct {
	DocumentType   string            `json:"document_type" example:"literature_review"`
	Content        string            `json:"content"` // 请求正文，写入对象存储
	ConversationID string            `json:"conversation_id,omitempty"`
	MessageID      string            `json:"message_id,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// DocumentStatusRequest 更新文档请求状态
type DocumentStatusRequest struct {
	Status    string `json:"status" example:"in_progress"` // pending / in_progress / completed / failed
	Progress  *int   `json:"progress,omitempty"`           // 0-100
	Details   string `json:"details,omitempty"`
	OutputKey string `json:"output_key,omitempty"` // 生成结果的对象 key，completed 时必须存在
}

// DocumentUploadRequest 申请生成结果的直传地址
type DocumentUploadRequest struct {
	Filename    string `json:"filename" example:"review.pdf"`
	ContentType string `json:"content_type,omitempty" example:"application/pdf"`
}
