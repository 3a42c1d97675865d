package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"intellisurf/internal/model"
	"intellisurf/internal/pkg/storage"
)

const (
	DefaultAttachmentTextLimit = 2000
	attachmentsHeader          = "\n\nAttached documents:"
)

// AttachmentURLExpiry 附件预签名下载地址有效期
const AttachmentURLExpiry = time.Hour

// ResolvedAttachments 附件解析结果
type ResolvedAttachments struct {
	Suffix   string                     // 追加到用户消息后的附件描述
	Metadata []model.AttachmentMetadata // 写入用户消息元数据
}

// AttachmentResolver 把附件引用转换为 agent 可读的描述与元数据
type AttachmentResolver struct {
	blobs     storage.Storage
	textLimit int
}

// NewAttachmentResolver 创建附件解析器，blobs 为 nil 时所有附件视为不存在
func NewAttachmentResolver(blobs storage.Storage, textLimit int) *AttachmentResolver {
	if textLimit <= 0 {
		textLimit = DefaultAttachmentTextLimit
	}
	return &AttachmentResolver{blobs: blobs, textLimit: textLimit}
}

// Resolve 解析附件引用
// 不存在的附件跳过（只记日志），处理失败的附件在描述中注明
func (r *AttachmentResolver) Resolve(ctx context.Context, refs []string) *ResolvedAttachments {
	result := &ResolvedAttachments{}
	if len(refs) == 0 {
		return result
	}

	var b strings.Builder
	b.WriteString(attachmentsHeader)

	for _, ref := range refs {
		key := AttachmentKey(ref)
		name := path.Base(key)
		logger := log.With().Str("attachment", ref).Logger()

		if r.blobs == nil || key == "" {
			logger.Warn().Msg("附件不存在，跳过")
			continue
		}

		info, err := r.blobs.GetFileInfo(ctx, key)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				logger.Warn().Msg("附件不存在，跳过")
				continue
			}
			logger.Error().Err(err).Msg("处理附件失败")
			b.WriteString("\n- Could not process attachment: " + name)
			continue
		}

		contentType := storage.ContentTypeByExt(name)
		if contentType == storage.DefaultContentType && info.ContentType != "" {
			contentType = info.ContentType
		}

		line, err := r.describe(ctx, key, name, contentType)
		if err != nil {
			logger.Error().Err(err).Msg("处理附件失败")
			line = "\n- Could not process attachment: " + name
		}
		b.WriteString(line)

		downloadURL, err := r.blobs.GetPresignedDownloadURL(ctx, key, AttachmentURLExpiry)
		if err != nil {
			logger.Debug().Err(err).Msg("生成附件下载地址失败")
		}

		result.Metadata = append(result.Metadata, model.AttachmentMetadata{
			Filename:    name,
			URL:         ref,
			Type:        contentType,
			Size:        info.Size,
			UploadedAt:  time.Now(),
			DownloadURL: downloadURL,
		})
	}

	result.Suffix = b.String()
	return result
}

// describe 生成单个附件的描述行，无法识别的类型返回空串
func (r *AttachmentResolver) describe(ctx context.Context, key, name, contentType string) (string, error) {
	switch ext := strings.ToLower(path.Ext(name)); {
	case ext == ".pdf" || ext == ".doc" || ext == ".docx":
		return fmt.Sprintf("\n- Document: %s (attached for analysis)", name), nil
	case strings.HasPrefix(contentType, "text/"):
		text, err := r.readText(ctx, key)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("\n- Text file %s:\n%s...", name, text), nil
	case strings.HasPrefix(contentType, "image/"):
		return fmt.Sprintf("\n- Image: %s (attached for analysis)", name), nil
	}
	return "", nil
}

// readText 读取文本附件的前 textLimit 个字符
func (r *AttachmentResolver) readText(ctx context.Context, key string) (string, error) {
	rc, err := r.blobs.Download(ctx, key)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	// UTF-8 单字符最多 4 字节
	data, err := io.ReadAll(io.LimitReader(rc, int64(r.textLimit)*utf8.UTFMax))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		// 截断点可能落在多字节字符中间
		data = trimInvalidTail(data)
		if !utf8.Valid(data) {
			return "", errors.New("attachment is not valid UTF-8 text")
		}
	}

	text := string(data)
	if utf8.RuneCountInString(text) > r.textLimit {
		text = string([]rune(text)[:r.textLimit])
	}
	return text, nil
}

func trimInvalidTail(data []byte) []byte {
	for i := 0; i < utf8.UTFMax && len(data) > 0; i++ {
		if utf8.Valid(data) {
			return data
		}
		data = data[:len(data)-1]
	}
	return data
}

// AttachmentKey 将附件引用转换为对象 key
// 支持: 对象 key、/uploads/<key>、http(s)://host/uploads/<key>、gs://bucket/<key>、oss://bucket/<key>
func AttachmentKey(ref string) string {
	ref = strings.TrimSpace(ref)
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" {
		switch u.Scheme {
		case "gs", "oss":
			return strings.TrimPrefix(u.Path, "/")
		case "http", "https":
			ref = u.Path
		default:
			return ""
		}
	}
	ref = strings.TrimPrefix(ref, "/")
	ref = strings.TrimPrefix(ref, "uploads/")
	return ref
}
