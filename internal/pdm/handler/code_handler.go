package handler

import (
	"github.com/bitfantasy/pdm/internal/pdm/repository"
	"github.com/bitfantasy/pdm/internal/pdm/service"
	"github.com/gin-gonic/gin"
)

// CodeHandler 编码与编码版本
type CodeHandler struct {
	svc *service.CodeService
}

func NewCodeHandler(svc *service.CodeService) *CodeHandler {
	return &CodeHandler{svc: svc}
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// bindReason 原因可选，空请求体视为无原因
func bindReason(c *gin.Context) (string, bool) {
	var req reasonRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, "Invalid request: "+err.Error())
			return "", false
		}
	}
	return req.Reason, true
}

// Create POST /api/v1/codes
func (h *CodeHandler) Create(c *gin.Context) {
	var req service.CreateCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}
	if req.PrefixID == "" {
		BadRequest(c, "prefix_id is required")
		return
	}

	result, err := h.svc.Create(c.Request.Context(), &req, GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, "code created", result)
}

// List GET /api/v1/codes?prefix_id=&status=&keyword=
func (h *CodeHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	result, err := h.svc.List(c.Request.Context(), page, pageSize, repository.CodeFilter{
		PrefixID: c.Query("prefix_id"),
		Status:   c.Query("status"),
		Keyword:  c.Query("keyword"),
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "ok", ListResponse{Items: result.Items, Pagination: newPagination(page, pageSize, result.Total)})
}

// Get GET /api/v1/codes/:id
func (h *CodeHandler) Get(c *gin.Context) {
	code, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "ok", code)
}

// Activate POST /api/v1/codes/:id/activate
func (h *CodeHandler) Activate(c *gin.Context) {
	code, err := h.svc.Activate(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "code activated", code)
}

// Obsolete POST /api/v1/codes/:id/obsolete
func (h *CodeHandler) Obsolete(c *gin.Context) {
	reason, ok := bindReason(c)
	if !ok {
		return
	}
	code, err := h.svc.Obsolete(c.Request.Context(), c.Param("id"), GetUserID(c), reason)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "code obsoleted", code)
}

// VersionUp POST /api/v1/codes/:id/version-up
func (h *CodeHandler) VersionUp(c *gin.Context) {
	var req service.VersionUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	version, err := h.svc.VersionUp(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, "version created", version)
}

// ListVersions GET /api/v1/codes/:id/versions
func (h *CodeHandler) ListVersions(c *gin.Context) {
	versions, err := h.svc.ListVersions(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "ok", ListResponse{Items: versions})
}

// ChangeLogs GET /api/v1/codes/:id/change-logs
func (h *CodeHandler) ChangeLogs(c *gin.Context) {
	logs, err := h.svc.ChangeLogs(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "ok", ListResponse{Items: logs})
}

// SubmitVersion POST /api/v1/code-versions/:id/submit
func (h *CodeHandler) SubmitVersion(c *gin.Context) {
	version, err := h.svc.SubmitForReview(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "version submitted", version)
}

// ApproveVersion POST /api/v1/code-versions/:id/approve
func (h *CodeHandler) ApproveVersion(c *gin.Context) {
	version, err := h.svc.Approve(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "version approved", version)
}

// RejectVersion POST /api/v1/code-versions/:id/reject
func (h *CodeHandler) RejectVersion(c *gin.Context) {
	reason, ok := bindReason(c)
	if !ok {
		return
	}
	version, err := h.svc.Reject(c.Request.Context(), c.Param("id"), GetUserID(c), reason)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "version rejected", version)
}

// ObsoleteVersion POST /api/v1/code-versions/:id/obsolete
func (h *CodeHandler) ObsoleteVersion(c *gin.Context) {
	reason, ok := bindReason(c)
	if !ok {
		return
	}
	version, err := h.svc.MakeObsolete(c.Request.Context(), c.Param("id"), GetUserID(c), reason)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "version obsoleted", version)
}

// SetCurrent POST /api/v1/code-versions/:id/set-current
func (h *CodeHandler) SetCurrent(c *gin.Context) {
	version, err := h.svc.SetCurrent(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "current version changed", version)
}

// GetMetadata GET /api/v1/code-versions/:id/metadata
func (h *CodeHandler) GetMetadata(c *gin.Context) {
	meta, err := h.svc.GetMetadata(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "ok", meta)
}

// UpsertMetadata PUT /api/v1/code-versions/:id/metadata
func (h *CodeHandler) UpsertMetadata(c *gin.Context) {
	var req service.MetadataInput
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	meta, err := h.svc.UpsertMetadata(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "metadata saved", meta)
}
