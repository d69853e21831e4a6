package api

import (
	"errors"
	"log/slog"
	"net/http"

	"spnd/service"

	"github.com/gin-gonic/gin"
)

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Kind    string      `json:"kind,omitempty"` // 错误类别，成功时为空
	Data    interface{} `json:"data,omitempty"`
}

// PageResponse 分页响应结构
type PageResponse struct {
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	List     interface{} `json:"list"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    200,
		Message: "success",
		Data:    data,
	})
}

// SuccessWithMessage 带消息的成功响应
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    200,
		Message: message,
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
	})
}

// BadRequest 400 错误响应
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{
		Code:    http.StatusBadRequest,
		Message: message,
		Kind:    "validation",
	})
}

// Unauthorized 401 错误响应
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message)
}

// InternalError 500 错误响应
func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, message)
}

// NotFound 404 错误响应
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, message)
}

// Fail 将 service 层错误映射为 HTTP 响应
func Fail(c *gin.Context, err error) {
	var (
		ve *service.ValidationError
		ue *service.UnknownParticipantError
		de *service.DuplicateKeyError
	)
	resp := Response{Message: err.Error()}
	switch {
	case errors.As(err, &ve):
		resp.Code, resp.Kind = http.StatusBadRequest, "validation"
	case errors.Is(err, service.ErrInsufficientFunds):
		resp.Code, resp.Kind = http.StatusBadRequest, "insufficient_funds"
	case errors.As(err, &ue):
		resp.Code, resp.Kind = http.StatusBadRequest, "unknown_participant"
		resp.Data = gin.H{"emails": ue.Emails}
	case errors.Is(err, service.ErrBudgetNotFound):
		resp.Code, resp.Kind = http.StatusNotFound, "budget_not_found"
	case errors.Is(err, service.ErrUserNotFound), errors.Is(err, service.ErrRecordNotFound):
		resp.Code, resp.Kind = http.StatusNotFound, "not_found"
	case errors.As(err, &de):
		resp.Code, resp.Kind = http.StatusConflict, "duplicate_key"
		resp.Data = gin.H{"field": de.Field}
	default:
		resp.Code, resp.Kind = http.StatusInternalServerError, "store"
		resp.Message = SafeErrorMessage(err, "服务器内部错误")
		_ = c.Error(err)
		slog.Error("请求处理失败", "path", c.FullPath(), "error", err)
	}
	c.JSON(resp.Code, resp)
}
