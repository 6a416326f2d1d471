package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/netops-gin/internal/gateway"
	"github.com/mautops/netops-gin/internal/registry"
	"github.com/mautops/netops-gin/internal/store"
)

// APIError API 错误
type APIError struct {
	Code    int
	Message string
	Detail  string
}

func (e *APIError) Error() string {
	return e.Message
}

// ErrorHandlerMiddleware 错误处理中间件
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last()

			var apiErr *APIError
			if errors.As(err, &apiErr) {
				Error(c, apiErr.Code, apiErr.Message, apiErr.Detail)
			} else {
				apiErr = Translate(err.Err)
				Error(c, apiErr.Code, apiErr.Message, apiErr.Detail)
			}
		}
	}
}

// WrapError 包装错误
func WrapError(err error, code int, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		Detail:  err.Error(),
	}
}

// Translate 把领域错误翻译为稳定的 HTTP 错误码
func Translate(err error) *APIError {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, registry.ErrDeviceNotFound):
		return &APIError{Code: http.StatusNotFound, Message: "not found", Detail: err.Error()}
	case errors.Is(err, store.ErrInvalidParams):
		return &APIError{Code: http.StatusBadRequest, Message: "invalid parameters", Detail: err.Error()}
	case errors.Is(err, store.ErrIllegalTransition):
		return &APIError{Code: http.StatusBadRequest, Message: "illegal status transition", Detail: err.Error()}
	case errors.Is(err, store.ErrConflict):
		return &APIError{Code: http.StatusConflict, Message: "conflict", Detail: err.Error()}
	case store.IsTransient(err):
		return &APIError{Code: http.StatusServiceUnavailable, Message: "store unavailable", Detail: err.Error()}
	}

	var busy *gateway.BusyError
	if errors.As(err, &busy) {
		return &APIError{Code: http.StatusServiceUnavailable, Message: "device busy", Detail: err.Error()}
	}
	var auth *gateway.AuthError
	var unreachable *gateway.UnreachableError
	var timeout *gateway.DialogTimeout
	var lost *gateway.SessionLost
	if errors.As(err, &auth) || errors.As(err, &unreachable) ||
		errors.As(err, &timeout) || errors.As(err, &lost) {
		return &APIError{Code: http.StatusBadGateway, Message: "device operation failed", Detail: err.Error()}
	}

	return &APIError{Code: http.StatusInternalServerError, Message: "internal server error", Detail: err.Error()}
}
