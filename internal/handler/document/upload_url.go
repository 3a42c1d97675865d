package document

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"intellisurf/internal/model"
)

// UploadURL 申请生成结果的直传地址
// @Summary      申请直传地址
// @Description  返回生成结果的预签名上传地址，本地存储返回 501
// @Tags         Document
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        document_id  path      string                       true  "文档请求 ID"
// @Param        request      body      model.DocumentUploadRequest  true  "文件信息"
// @Success      200          {object}  model.DocumentUploadResponse
// @Failure      400          {object}  ErrorResponse  "缺少文件名"
// @Failure      404          {object}  ErrorResponse  "文档请求不存在"
// @Failure      501          {object}  ErrorResponse  "存储后端不支持直传"
// @Router       /api/v1/documents/{document_id}/upload-url [post]
func (h *Handler) UploadURL(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req model.DocumentUploadRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.documentService.UploadURL(c.Request.Context(), p, c.Param("document_id"), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
