package document

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"intellisurf/internal/model"
	"intellisurf/internal/pkg/ctxutil"
	httputil "intellisurf/internal/pkg/http"
	"intellisurf/internal/pkg/storage"
	"intellisurf/internal/service"
)

// ErrorResponse 错误响应类型别名（使用共用的 http.ErrorResponse）
type ErrorResponse = httputil.ErrorResponse

// DocumentService 文档请求服务（*service.DocumentService 实现）
type DocumentService interface {
	Create(ctx context.Context, p ctxutil.Principal, req *model.DocumentCreateRequest) (*model.DocumentRequest, error)
	Get(ctx context.Context, p ctxutil.Principal, requestID string) (*model.DocumentResponse, error)
	UpdateStatus(ctx context.Context, p ctxutil.Principal, requestID string, req *model.DocumentStatusRequest) (*model.DocumentRequest, error)
	UploadURL(ctx context.Context, p ctxutil.Principal, requestID string, req *model.DocumentUploadRequest) (*model.DocumentUploadResponse, error)
}

// Handler 文档请求模块处理器
type Handler struct {
	documentService DocumentService
}

// NewHandler 创建文档请求模块处理器
func NewHandler(documentService DocumentService) *Handler {
	return &Handler{
		documentService: documentService,
	}
}

func principal(c *gin.Context) (ctxutil.Principal, bool) {
	p, ok := ctxutil.GetPrincipal(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httputil.NewErrorResponse(httputil.CodeUnauthorized, "未授权"))
	}
	return p, ok
}

// bindJSON 解析请求体，失败时已写入响应
func bindJSON(c *gin.Context, dest any) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		c.JSON(http.StatusBadRequest, httputil.NewErrorResponse(httputil.CodeInvalidRequest, "Invalid request body", err.Error()))
		return false
	}
	return true
}

// writeError 将服务层错误映射为 HTTP 响应
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyDocument):
		c.JSON(http.StatusBadRequest, httputil.NewErrorResponse(httputil.CodeEmptyInput, "content is required"))
	case errors.Is(err, service.ErrInvalidDocument), errors.Is(err, service.ErrDocumentOutput):
		c.JSON(http.StatusBadRequest, httputil.NewErrorResponse(httputil.CodeInvalidRequest, "Invalid document request", err.Error()))
	case errors.Is(err, service.ErrDocumentNotFound):
		c.JSON(http.StatusNotFound, httputil.NewErrorResponse(httputil.CodeNotFound, "Document request not found"))
	case errors.Is(err, service.ErrDocumentFinished):
		c.JSON(http.StatusConflict, httputil.NewErrorResponse(httputil.CodeConflict, "Document request already finished"))
	case errors.Is(err, storage.ErrUnsupported):
		c.JSON(http.StatusNotImplemented, httputil.NewErrorResponse(httputil.CodeNotImplemented, "Storage backend does not support direct upload"))
	default:
		c.JSON(http.StatusInternalServerError, httputil.NewErrorResponse(httputil.CodeInternal, "Document request failed", err.Error()))
	}
}
