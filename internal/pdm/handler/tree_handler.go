package handler

import (
	"github.com/bitfantasy/pdm/internal/pdm/service"
	"github.com/gin-gonic/gin"
)

// TreeHandler 树、结构与共享
type TreeHandler struct {
	svc   *service.TreeService
	share *service.ShareService
}

func NewTreeHandler(svc *service.TreeService, share *service.ShareService) *TreeHandler {
	return &TreeHandler{svc: svc, share: share}
}

// Create 创建树，同时创建根节点、根结构与第一个版本
// POST /api/v1/trees
func (h *TreeHandler) Create(c *gin.Context) {
	var req service.CreateTreeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	result, err := h.svc.CreateTree(c.Request.Context(), &req, GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, "tree created", result)
}

// List GET /api/v1/trees?status=
func (h *TreeHandler) List(c *gin.Context) {
	trees, err := h.svc.List(c.Request.Context(), c.Query("status"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "ok", ListResponse{Items: trees})
}

// Get GET /api/v1/trees/:id
func (h *TreeHandler) Get(c *gin.Context) {
	tree, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "ok", tree)
}

// Root GET /api/v1/trees/:id/root
func (h *TreeHandler) Root(c *gin.Context) {
	node, err := h.svc.GetRoot(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "ok", node)
}

// Structure 整棵树的结构，resolve=true 时副本读取主结构的当前值
// GET /api/v1/trees/:id/structure?resolve=true
func (h *TreeHandler) Structure(c *gin.Context) {
	views, err := h.svc.GetStructure(c.Request.Context(), c.Param("id"), queryBool(c, "resolve", true))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "ok", ListResponse{Items: views})
}

// AddNode POST /api/v1/trees/:id/nodes
func (h *TreeHandler) AddNode(c *gin.Context) {
	var req service.AddNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	st, err := h.svc.AddNode(c.Request.Context(), c.Param("id"), &req, GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, "node added", st)
}

// MoveNode POST /api/v1/trees/:id/structures/:sid/move
func (h *TreeHandler) MoveNode(c *gin.Context) {
	var req service.MoveNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	st, err := h.svc.MoveNode(c.Request.Context(), c.Param("id"), c.Param("sid"), &req, GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "node moved", st)
}

// RemoveNode DELETE /api/v1/trees/:id/structures/:sid?cascade=true
func (h *TreeHandler) RemoveNode(c *gin.Context) {
	removed, err := h.svc.RemoveNode(c.Request.Context(), c.Param("id"), c.Param("sid"), queryBool(c, "cascade", false), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "node removed", gin.H{"removed_count": removed})
}

// UpdateStructure PUT /api/v1/trees/:id/structures/:sid
func (h *TreeHandler) UpdateStructure(c *gin.Context) {
	var req service.UpdateStructureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	st, err := h.svc.UpdateStructure(c.Request.Context(), c.Param("id"), c.Param("sid"), &req, GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "structure updated", st)
}

// BulkUpdate POST /api/v1/trees/:id/bulk-update
func (h *TreeHandler) BulkUpdate(c *gin.Context) {
	var req struct {
		Structures []service.BulkStructureItem `json:"structures" binding:"required,dive"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	result, err := h.svc.BulkUpdate(c.Request.Context(), c.Param("id"), req.Structures, GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "bulk update finished", result)
}

// Activate POST /api/v1/trees/:id/activate
func (h *TreeHandler) Activate(c *gin.Context) {
	tree, err := h.svc.Activate(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "tree activated", tree)
}

// Archive POST /api/v1/trees/:id/archive
func (h *TreeHandler) Archive(c *gin.Context) {
	tree, err := h.svc.Archive(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "tree archived", tree)
}

// Lock POST /api/v1/admin/trees/:id/lock
func (h *TreeHandler) Lock(c *gin.Context) {
	tree, err := h.svc.Lock(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "tree locked", tree)
}

// Unlock POST /api/v1/admin/trees/:id/unlock
func (h *TreeHandler) Unlock(c *gin.Context) {
	tree, err := h.svc.Unlock(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "tree unlocked", tree)
}

// Delete DELETE /api/v1/admin/trees/:id
func (h *TreeHandler) Delete(c *gin.Context) {
	if err := h.svc.DeleteTree(c.Request.Context(), c.Param("id")); err != nil {
		Fail(c, err)
		return
	}
	Success(c, "tree deleted", nil)
}

// Share 把其他树的结构以副本形式挂到本树
// POST /api/v1/trees/:id/share
func (h *TreeHandler) Share(c *gin.Context) {
	var req service.ShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	result, err := h.share.Share(c.Request.Context(), c.Param("id"), &req, GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, "structure shared", result)
}

// Unshare POST /api/v1/trees/:id/structures/:sid/unshare
func (h *TreeHandler) Unshare(c *gin.Context) {
	st, err := h.share.Unshare(c.Request.Context(), c.Param("id"), c.Param("sid"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "structure detached", st)
}

// Master GET /api/v1/structures/:sid/master
func (h *TreeHandler) Master(c *gin.Context) {
	st, err := h.share.ResolveMaster(c.Request.Context(), c.Param("sid"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "ok", st)
}

// Replicas GET /api/v1/structures/:sid/replicas
func (h *TreeHandler) Replicas(c *gin.Context) {
	list, err := h.share.ListReplicas(c.Request.Context(), c.Param("sid"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "ok", ListResponse{Items: list})
}

// Resync POST /api/v1/structures/:sid/resync
func (h *TreeHandler) Resync(c *gin.Context) {
	result, err := h.share.ResyncReplicas(c.Request.Context(), c.Param("sid"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "replicas synchronized", result)
}
