package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/bitfantasy/pdm/internal/pdm/apperr"
	"github.com/bitfantasy/pdm/internal/pdm/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers 处理器集合
type Handlers struct {
	Prefix   *PrefixHandler
	Code     *CodeHandler
	Tree     *TreeHandler
	Version  *VersionHandler
	Quantity *QuantityHandler
	Export   *ExportHandler
	SSE      *SSEHandler
}

// NewHandlers 创建处理器集合
func NewHandlers(svc *service.Services) *Handlers {
	return &Handlers{
		Prefix:   NewPrefixHandler(svc.Prefix, svc.Code),
		Code:     NewCodeHandler(svc.Code),
		Tree:     NewTreeHandler(svc.Tree, svc.Share),
		Version:  NewVersionHandler(svc.Version),
		Quantity: NewQuantityHandler(svc.Quantity),
		Export:   NewExportHandler(svc.Export),
		SSE:      NewSSEHandler(svc.Events),
	}
}

// Response 统一响应结构
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ListResponse 列表响应结构
type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// Pagination 分页信息
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
}

// Success 成功响应
func Success(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Message: message, Data: data})
}

// Created 创建成功响应
func Created(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusCreated, Response{Success: true, Message: message, Data: data})
}

// BadRequest 参数错误响应
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Message: message})
}

// Fail 把业务错误映射为状态码与统一响应，内部错误只记录日志
func Fail(c *gin.Context, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind == apperr.Internal {
		c.Error(err)
		zap.L().Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString("request_id")),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, Response{Success: false, Message: "internal error"})
		return
	}

	resp := Response{Success: false, Message: appErr.Message}
	if appErr.Field != "" {
		resp.Data = gin.H{"field": appErr.Field, "error": appErr.Kind.String()}
	} else {
		resp.Data = gin.H{"error": appErr.Kind.String()}
	}
	c.JSON(appErr.HTTPStatus(), resp)
}

// GetUserID 从上下文获取用户ID，匿名请求返回空串
func GetUserID(c *gin.Context) string {
	return c.GetString("user_id")
}

// GetPagination 从请求获取分页参数
func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}

func newPagination(page, pageSize int, total int64) *Pagination {
	pages := total / int64(pageSize)
	if total%int64(pageSize) != 0 {
		pages++
	}
	return &Pagination{Page: page, PageSize: pageSize, Total: total, TotalPages: pages}
}

// queryBool 解析布尔查询参数，缺省时返回 def
func queryBool(c *gin.Context, key string, def bool) bool {
	v := c.Query(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
