package util

import (
	"errors"
	"net/http"

	"quiz_engine/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse 错误响应，附带拒绝原因和出错题号
type ErrorResponse struct {
	Code          int    `json:"code"`
	Message       string `json:"message"`
	Reason        string `json:"reason,omitempty"`
	QuestionIndex *int   `json:"questionIndex,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	})
}

// SuccessNullable 即使 data 为 nil 也输出 data 字段
func SuccessNullable(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": message,
		"data":    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    http.StatusCreated,
		Message: "created",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
	})
}

func Unauthorized(c *gin.Context) {
	Error(c, http.StatusUnauthorized, "Unauthorized")
}

func Forbidden(c *gin.Context) {
	Error(c, http.StatusForbidden, "Forbidden")
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func NotFound(c *gin.Context) {
	Error(c, http.StatusNotFound, "Resource not found")
}

func InternalServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "Internal server error")
}

func LogInternalError(c *gin.Context, err error) {
	logger.Log.Error("Internal server error",
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	InternalServerError(c)
}

// RespondError 将业务错误映射为 HTTP 状态码
func RespondError(c *gin.Context, err error) {
	var (
		ve *ValidationError
		nf *NotFoundError
		fe *ForbiddenError
		pe *PolicyDeniedError
		we *WindowClosedError
	)
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: http.StatusBadRequest, Message: ve.Message, QuestionIndex: ve.QuestionIndex})
	case errors.As(err, &nf):
		Error(c, http.StatusNotFound, nf.Error())
	case errors.As(err, &fe):
		Error(c, http.StatusForbidden, fe.Error())
	case errors.As(err, &pe):
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: http.StatusBadRequest, Message: pe.Message, Reason: string(pe.Reason)})
	case errors.As(err, &we):
		reason := "DeadlinePassed"
		if we.NotYetOpen {
			reason = "NotYetOpen"
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: http.StatusBadRequest, Message: we.Message, Reason: reason})
	default:
		LogInternalError(c, err)
	}
}
