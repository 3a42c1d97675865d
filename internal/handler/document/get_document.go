package document

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetDocument 查询文档请求
// @Summary      获取文档请求
// @Description  返回当前用户的文档请求、状态日志与下载地址
// @Tags         Document
// @Produce      json
// @Security     BearerAuth
// @Param        document_id  path      string  true  "文档请求 ID"
// @Success      200          {object}  model.DocumentResponse
// @Failure      401          {object}  ErrorResponse  "未授权"
// @Failure      404          {object}  ErrorResponse  "文档请求不存在"
// @Router       /api/v1/documents/{document_id} [get]
func (h *Handler) GetDocument(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	resp, err := h.documentService.Get(c.Request.Context(), p, c.Param("document_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
