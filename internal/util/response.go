package util

import (
	"errors"
	"net/http"
	"phrasal_tutor_backend/internal/model"
	"phrasal_tutor_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response 统一错误响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
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

func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, message)
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, message)
}

func BadGateway(c *gin.Context, message string) {
	Error(c, http.StatusBadGateway, message)
}

func InternalServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "Internal server error")
}

func LogInternalError(c *gin.Context, err error) {
	logger.Log.Error("Internal server error", zap.Error(err), zap.String("path", c.FullPath()))
	InternalServerError(c)
}

// HandleServiceError 把服务层的哨兵错误映射为 HTTP 状态码
func HandleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrMissingToken), errors.Is(err, ErrInvalidToken):
		Unauthorized(c)
	case errors.Is(err, ErrInvalidConversationID):
		BadRequest(c, ErrInvalidConversationID.Error())
	case errors.Is(err, ErrEmptyTranscript):
		BadRequest(c, ErrEmptyTranscript.Error())
	case errors.Is(err, model.ErrInvalidRecord):
		BadRequest(c, err.Error())
	case errors.Is(err, ErrNotConversationOwner):
		Forbidden(c, ErrNotConversationOwner.Error())
	case errors.Is(err, ErrConversationNotFound):
		NotFound(c, ErrConversationNotFound.Error())
	case errors.Is(err, ErrParseResponse):
		logger.Log.Warn("model response could not be parsed", zap.Error(err))
		BadGateway(c, ErrParseResponse.Error())
	case errors.Is(err, ErrUpstream):
		logger.Log.Warn("upstream model failure", zap.Error(err))
		BadGateway(c, err.Error())
	default:
		LogInternalError(c, err)
	}
}
