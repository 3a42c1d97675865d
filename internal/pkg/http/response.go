package http

// 错误码：前三位对应 HTTP 状态码
const (
	CodeInvalidRequest = 40001
	CodeEmptyInput     = 40002
	CodeUnauthorized   = 40101
	CodeInvalidToken   = 40102
	CodeNotFound       = 40401
	CodeConflict       = 40901
	CodeInternal       = 50001
	CodePanic          = 50000
	CodeNotImplemented = 50101
	CodeUnavailable    = 50301
)

// ErrorResponse 错误响应（所有API共用）
type ErrorResponse struct {
	Code    int    `json:"code"`             // 错误码（非0表示错误）
	Message string `json:"message"`          // 错误消息
	Detail  string `json:"detail,omitempty"` // 错误详情（可选）
}

// MessageResponse 仅包含提示信息的响应
type MessageResponse struct {
	Message string `json:"message"`
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string, detail ...string) *ErrorResponse {
	resp := &ErrorResponse{
		Code:    code,
		Message: message,
	}
	if len(detail) > 0 && detail[0] != "" {
		resp.Detail = detail[0]
	}
	return resp
}
