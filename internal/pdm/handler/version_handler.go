package handler

import (
	"context"

	"github.com/bitfantasy/pdm/internal/pdm/entity"
	"github.com/bitfantasy/pdm/internal/pdm/repository"
	"github.com/bitfantasy/pdm/internal/pdm/service"
	"github.com/gin-gonic/gin"
)

// VersionHandler 树版本与变更日志
type VersionHandler struct {
	svc *service.TreeVersionService
}

func NewVersionHandler(svc *service.TreeVersionService) *VersionHandler {
	return &VersionHandler{svc: svc}
}

type commentRequest struct {
	Comment string `json:"comment"`
}

func bindComment(c *gin.Context) (string, bool) {
	var req commentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, "Invalid request: "+err.Error())
			return "", false
		}
	}
	return req.Comment, true
}

// Create POST /api/v1/trees/:id/versions
func (h *VersionHandler) Create(c *gin.Context) {
	var req service.CreateVersionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, "Invalid request: "+err.Error())
			return
		}
	}

	version, err := h.svc.CreateVersion(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, "version created", version)
}

// List GET /api/v1/trees/:id/versions
func (h *VersionHandler) List(c *gin.Context) {
	versions, err := h.svc.ListVersions(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "ok", ListResponse{Items: versions})
}

// Get GET /api/v1/tree-versions/:vid
func (h *VersionHandler) Get(c *gin.Context) {
	version, err := h.svc.GetVersion(c.Request.Context(), c.Param("vid"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "ok", version)
}

// Submit POST /api/v1/tree-versions/:vid/submit
func (h *VersionHandler) Submit(c *gin.Context) {
	h.transition(c, h.svc.SubmitForReview, "version submitted")
}

// Approve POST /api/v1/tree-versions/:vid/approve
func (h *VersionHandler) Approve(c *gin.Context) {
	h.transition(c, h.svc.Approve, "version approved")
}

// Reject POST /api/v1/tree-versions/:vid/reject
func (h *VersionHandler) Reject(c *gin.Context) {
	h.transition(c, h.svc.Reject, "version rejected")
}

// Obsolete POST /api/v1/tree-versions/:vid/obsolete
func (h *VersionHandler) Obsolete(c *gin.Context) {
	h.transition(c, h.svc.MakeObsolete, "version obsoleted")
}

func (h *VersionHandler) transition(c *gin.Context, fn func(ctx context.Context, versionID, userID, comment string) (*entity.TreeVersion, error), message string) {
	comment, ok := bindComment(c)
	if !ok {
		return
	}
	version, err := fn(c.Request.Context(), c.Param("vid"), GetUserID(c), comment)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, message, version)
}

// Changes 变更日志，可按版本、类型、待审批过滤
// GET /api/v1/trees/:id/changes?version_id=&change_type=&pending=true
func (h *VersionHandler) Changes(c *gin.Context) {
	logs, err := h.svc.ListChanges(c.Request.Context(), repository.ChangeLogFilter{
		TreeID:        c.Param("id"),
		TreeVersionID: c.Query("version_id"),
		ChangeType:    c.Query("change_type"),
		PendingOnly:   queryBool(c, "pending", false),
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "ok", ListResponse{Items: logs})
}

// ApproveChange POST /api/v1/changes/:lid/approve
func (h *VersionHandler) ApproveChange(c *gin.Context) {
	log, err := h.svc.ApproveChange(c.Request.Context(), c.Param("lid"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "change approved", log)
}
