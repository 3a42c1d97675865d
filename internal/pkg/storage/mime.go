package storage

import (
	"mime"
	"path/filepath"
	"strings"
)

const DefaultContentType = "application/octet-stream"

var contentTypes = map[string]string{
	".txt":  "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
	".json": "application/json",
	".xml":  "application/xml",
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// ContentTypeByExt 根据扩展名推断 Content-Type，无法识别时返回 DefaultContentType
func ContentTypeByExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return strings.TrimSpace(strings.Split(ct, ";")[0])
	}
	return DefaultContentType
}
