package document

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"intellisurf/internal/model"
)

// UpdateStatus 更新文档请求状态
// @Summary      更新文档请求状态
// @Description  completed 需要 output_key 指向已上传的生成结果
// @Tags         Document
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        document_id  path      string                       true  "文档请求 ID"
// @Param        request      body      model.DocumentStatusRequest  true  "状态"
// @Success      200          {object}  model.DocumentRequest
// @Failure      400          {object}  ErrorResponse  "状态无效或生成结果不存在"
// @Failure      401          {object}  ErrorResponse  "未授权"
// @Failure      404          {object}  ErrorResponse  "文档请求不存在"
// @Failure      409          {object}  ErrorResponse  "文档请求已结束"
// @Router       /api/v1/documents/{document_id}/status [patch]
func (h *Handler) UpdateStatus(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req model.DocumentStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	doc, err := h.documentService.UpdateStatus(c.Request.Context(), p, c.Param("document_id"), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}
