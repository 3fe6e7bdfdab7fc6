package handler

import (
	"time"

	"github.com/bitfantasy/pdm/internal/pdm/service"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// QuantityHandler 结构用量
type QuantityHandler struct {
	svc *service.QuantityService
}

func NewQuantityHandler(svc *service.QuantityService) *QuantityHandler {
	return &QuantityHandler{svc: svc}
}

// Upsert 按 (结构, 编码版本) 新增或更新用量
// PUT /api/v1/trees/:id/structures/:sid/quantities
func (h *QuantityHandler) Upsert(c *gin.Context) {
	var req service.UpsertQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	q, err := h.svc.Upsert(c.Request.Context(), c.Param("id"), c.Param("sid"), &req, GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "quantity saved", q)
}

// List GET /api/v1/structures/:sid/quantities
func (h *QuantityHandler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context(), c.Param("sid"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "ok", ListResponse{Items: list})
}

// Calculate GET /api/v1/structures/:sid/calculate?required_amount=10&at=2026-01-01
func (h *QuantityHandler) Calculate(c *gin.Context) {
	required := decimal.NewFromInt(1)
	if v := c.Query("required_amount"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			BadRequest(c, "invalid required_amount")
			return
		}
		required = d
	}

	at := time.Now()
	if v := c.Query("at"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			BadRequest(c, "invalid at, expected RFC3339 or YYYY-MM-DD")
			return
		}
		at = t
	}

	lines, err := h.svc.Calculate(c.Request.Context(), c.Param("sid"), required, at)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, "ok", ListResponse{Items: lines})
}

// Delete DELETE /api/v1/quantities/:qid
func (h *QuantityHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("qid")); err != nil {
		Fail(c, err)
		return
	}
	Success(c, "quantity deleted", nil)
}

func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", v, time.Local)
}
