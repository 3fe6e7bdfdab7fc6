package handler

import (
	"net/http"
	"net/url"

	"github.com/bitfantasy/pdm/internal/pdm/service"
	"github.com/gin-gonic/gin"
)

// ExportHandler BOM 导出
type ExportHandler struct {
	svc *service.ExportService
}

func NewExportHandler(svc *service.ExportService) *ExportHandler {
	return &ExportHandler{svc: svc}
}

// Export 直接下载，upload=true 时上传对象存储并返回下载地址
// GET /api/v1/trees/:id/export?format=xlsx|csv&encoding=utf-8|gbk|shift_jis&upload=true
func (h *ExportHandler) Export(c *gin.Context) {
	ctx := c.Request.Context()
	treeID := c.Param("id")

	file, err := h.svc.Export(ctx, treeID, c.Query("format"), c.Query("encoding"))
	if err != nil {
		Fail(c, err)
		return
	}

	if queryBool(c, "upload", false) {
		file, err = h.svc.Upload(ctx, treeID, file)
		if err != nil {
			Fail(c, err)
			return
		}
		Success(c, "export uploaded", file)
		return
	}

	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(file.Name))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
