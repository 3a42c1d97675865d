package document

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"intellisurf/internal/model"
)

// CreateDocument 创建文档生成请求
// @Summary      创建文档请求
// @Description  保存请求正文到对象存储，创建 pending 状态的文档请求
// @Tags         Document
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      model.DocumentCreateRequest  true  "文档请求"
// @Success      201      {object}  model.DocumentRequest
// @Failure      400      {object}  ErrorResponse  "请求参数错误或正文为空"
// @Failure      401      {object}  ErrorResponse  "未授权"
// @Failure      500      {object}  ErrorResponse  "服务器内部错误"
// @Router       /api/v1/documents [post]
func (h *Handler) CreateDocument(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req model.DocumentCreateRequest
	if !bindJSON(c, &req) {
		return
	}

	doc, err := h.documentService.Create(c.Request.Context(), p, &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}
