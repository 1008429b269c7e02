package handler

import (
	"net/http"

	"github.com/blues/rvs/internal/custody"
	"github.com/blues/rvs/internal/logic"
	"github.com/blues/rvs/internal/raffle"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

// SuccessResponse 成功响应
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse 错误响应
func ErrorResponse(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, Response{
		Success: false,
		Message: message,
		Code:    code,
		Data:    nil,
	})
}

// FailResponse 按错误类型映射响应码
func FailResponse(c *gin.Context, err error) {
	status, code := classify(err)
	ErrorResponse(c, status, code, err.Error())
}

func classify(err error) (int, string) {
	var rerr *raffle.Error
	if errors.As(err, &rerr) {
		switch rerr.Kind {
		case raffle.KindInvalidArgument:
			return http.StatusBadRequest, rerr.Code
		case raffle.KindUnauthorized:
			return http.StatusForbidden, rerr.Code
		case raffle.KindNotFound:
			return http.StatusNotFound, rerr.Code
		case raffle.KindConflict:
			return http.StatusConflict, rerr.Code
		default:
			return http.StatusInternalServerError, rerr.Code
		}
	}

	switch {
	case errors.Is(err, custody.ErrInsufficientFunds):
		return http.StatusPaymentRequired, "InsufficientFunds"
	case errors.Is(err, logic.ErrDepositDisabled):
		return http.StatusForbidden, "DepositDisabled"
	}
	return http.StatusInternalServerError, "Internal"
}
