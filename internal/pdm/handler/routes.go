package handler

import "github.com/gin-gonic/gin"

// RegisterRoutes 注册业务路由；admin 组需已挂载鉴权与权限中间件
func (h *Handlers) RegisterRoutes(api, admin *gin.RouterGroup) {
	prefixes := api.Group("/prefixes")
	{
		prefixes.POST("", h.Prefix.Create)
		prefixes.GET("", h.Prefix.List)
		prefixes.GET("/:id", h.Prefix.Get)
		prefixes.GET("/:id/preview", h.Prefix.Preview)
		prefixes.POST("/:id/generate", h.Prefix.Generate)
	}

	codes := api.Group("/codes")
	{
		codes.POST("", h.Code.Create)
		codes.GET("", h.Code.List)
		codes.GET("/:id", h.Code.Get)
		codes.POST("/:id/activate", h.Code.Activate)
		codes.POST("/:id/obsolete", h.Code.Obsolete)
		codes.POST("/:id/version-up", h.Code.VersionUp)
		codes.GET("/:id/versions", h.Code.ListVersions)
		codes.GET("/:id/change-logs", h.Code.ChangeLogs)
	}

	codeVersions := api.Group("/code-versions")
	{
		codeVersions.POST("/:id/submit", h.Code.SubmitVersion)
		codeVersions.POST("/:id/approve", h.Code.ApproveVersion)
		codeVersions.POST("/:id/reject", h.Code.RejectVersion)
		codeVersions.POST("/:id/obsolete", h.Code.ObsoleteVersion)
		codeVersions.POST("/:id/set-current", h.Code.SetCurrent)
		codeVersions.GET("/:id/metadata", h.Code.GetMetadata)
		codeVersions.PUT("/:id/metadata", h.Code.UpsertMetadata)
	}

	trees := api.Group("/trees")
	{
		trees.POST("", h.Tree.Create)
		trees.GET("", h.Tree.List)
		trees.GET("/:id", h.Tree.Get)
		trees.GET("/:id/root", h.Tree.Root)
		trees.GET("/:id/structure", h.Tree.Structure)
		trees.POST("/:id/nodes", h.Tree.AddNode)
		trees.POST("/:id/share", h.Tree.Share)
		trees.POST("/:id/bulk-update", h.Tree.BulkUpdate)
		trees.PUT("/:id/structures/:sid", h.Tree.UpdateStructure)
		trees.DELETE("/:id/structures/:sid", h.Tree.RemoveNode)
		trees.POST("/:id/structures/:sid/move", h.Tree.MoveNode)
		trees.POST("/:id/structures/:sid/unshare", h.Tree.Unshare)
		trees.PUT("/:id/structures/:sid/quantities", h.Quantity.Upsert)
		trees.POST("/:id/activate", h.Tree.Activate)
		trees.POST("/:id/archive", h.Tree.Archive)
		trees.GET("/:id/versions", h.Version.List)
		trees.POST("/:id/versions", h.Version.Create)
		trees.GET("/:id/changes", h.Version.Changes)
		trees.GET("/:id/export", h.Export.Export)
	}

	structures := api.Group("/structures")
	{
		structures.GET("/:sid/master", h.Tree.Master)
		structures.GET("/:sid/replicas", h.Tree.Replicas)
		structures.POST("/:sid/resync", h.Tree.Resync)
		structures.GET("/:sid/quantities", h.Quantity.List)
		structures.GET("/:sid/calculate", h.Quantity.Calculate)
	}

	api.DELETE("/quantities/:qid", h.Quantity.Delete)

	treeVersions := api.Group("/tree-versions")
	{
		treeVersions.GET("/:vid", h.Version.Get)
		treeVersions.POST("/:vid/submit", h.Version.Submit)
		treeVersions.POST("/:vid/approve", h.Version.Approve)
		treeVersions.POST("/:vid/reject", h.Version.Reject)
		treeVersions.POST("/:vid/obsolete", h.Version.Obsolete)
	}

	api.POST("/changes/:lid/approve", h.Version.ApproveChange)
	api.GET("/events", h.SSE.Stream)

	admin.POST("/prefixes/:id/reset", h.Prefix.Reset)
	admin.POST("/trees/:id/lock", h.Tree.Lock)
	admin.POST("/trees/:id/unlock", h.Tree.Unlock)
	admin.DELETE("/trees/:id", h.Tree.Delete)
}
