package id

import (
	"strings"

	"github.com/google/uuid"
)

// New 生成新的UUID（string格式），用作 agent session id
func New() string {
	return uuid.New().String()
}

// Short 生成带前缀的短ID，例如 conv_1a2b3c4d5e6f、msg_0f9e8d7c6b5a
func Short(prefix string) string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return prefix + "_" + hex[:12]
}

// Conversation 生成对话ID
func Conversation() string {
	return Short("conv")
}

// Message 生成消息ID
func Message() string {
	return Short("msg")
}

// Document 生成文档请求ID
func Document() string {
	return Short("doc")
}
