package handler

import (
	"net/http"

	"github.com/blues/rvs/internal/logic"
	"github.com/blues/rvs/internal/raffle"
	"github.com/gin-gonic/gin"
)

// AccountHandler 托管账户处理器
type AccountHandler struct {
	accountLogic *logic.AccountLogic
}

// NewAccountHandler 创建托管账户处理器
func NewAccountHandler(accountLogic *logic.AccountLogic) *AccountHandler {
	return &AccountHandler{
		accountLogic: accountLogic,
	}
}

// GetAccount 查询账户余额
func (h *AccountHandler) GetAccount(c *gin.Context) {
	address, ok := addressParam(c, "address")
	if !ok {
		return
	}

	balance, err := h.accountLogic.Balance(address)
	if err != nil {
		FailResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "获取账户余额成功", AccountResponse{
		Address: address.Hex(),
		Balance: balance,
	})
}

// Deposit 向调用方自己的账户入金（开发环境水龙头）
func (h *AccountHandler) Deposit(c *gin.Context) {
	address, ok := addressParam(c, "address")
	if !ok {
		return
	}
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	if !raffle.Authorized(caller, address) {
		FailResponse(c, raffle.ErrUnauthorized)
		return
	}

	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}

	balance, err := h.accountLogic.Deposit(address, req.Amount)
	if err != nil {
		FailResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "入金成功", AccountResponse{
		Address: address.Hex(),
		Balance: balance,
	})
}
