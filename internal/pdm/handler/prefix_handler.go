package handler

import (
	"github.com/bitfantasy/pdm/internal/pdm/service"
	"github.com/gin-gonic/gin"
)

// PrefixHandler 编码前缀
type PrefixHandler struct {
	svc   *service.PrefixService
	codes *service.CodeService
}

func NewPrefixHandler(svc *service.PrefixService, codes *service.CodeService) *PrefixHandler {
	return &PrefixHandler{svc: svc, codes: codes}
}

// Create 创建前缀
// POST /api/v1/prefixes
func (h *PrefixHandler) Create(c *gin.Context) {
	var req service.CreatePrefixRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	prefix, err := h.svc.Create(c.Request.Context(), &req)
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, "prefix created", prefix)
}

// List GET /api/v1/prefixes
func (h *PrefixHandler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "ok", ListResponse{Items: list})
}

// Get GET /api/v1/prefixes/:id
func (h *PrefixHandler) Get(c *gin.Context) {
	prefix, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "ok", prefix)
}

// Preview 预览下一个编码，不消耗序号
// GET /api/v1/prefixes/:id/preview
func (h *PrefixHandler) Preview(c *gin.Context) {
	result, err := h.svc.Preview(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "ok", result)
}

// Generate 分配编码并创建编码记录与第一个版本
// POST /api/v1/prefixes/:id/generate
func (h *PrefixHandler) Generate(c *gin.Context) {
	var req service.CreateCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}
	req.PrefixID = c.Param("id")

	result, err := h.codes.Create(c.Request.Context(), &req, GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, "code generated", result)
}

// Reset 重置序号，缺省从 1 开始
// POST /api/v1/admin/prefixes/:id/reset
func (h *PrefixHandler) Reset(c *gin.Context) {
	var req struct {
		StartNumber *int64 `json:"start_number"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, "Invalid request: "+err.Error())
			return
		}
	}
	start := int64(1)
	if req.StartNumber != nil {
		start = *req.StartNumber
	}

	prefix, err := h.svc.Reset(c.Request.Context(), c.Param("id"), start)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "prefix reset", prefix)
}
