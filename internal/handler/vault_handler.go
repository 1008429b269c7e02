package handler

import (
	"net/http"
	"strconv"

	"github.com/blues/rvs/internal/auth"
	"github.com/blues/rvs/internal/logic"
	"github.com/blues/rvs/internal/raffle"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// VaultHandler 金库处理器
type VaultHandler struct {
	vaultLogic *logic.VaultLogic
	eventLogic *logic.EventLogic
}

// NewVaultHandler 创建金库处理器
func NewVaultHandler(vaultLogic *logic.VaultLogic, eventLogic *logic.EventLogic) *VaultHandler {
	return &VaultHandler{
		vaultLogic: vaultLogic,
		eventLogic: eventLogic,
	}
}

// Initialize 创建金库，调用方即为创建者
func (h *VaultHandler) Initialize(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	var req InitializeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}

	vault, err := h.vaultLogic.Initialize(caller, raffle.InitializeArgs{
		TicketPrice: req.TicketPrice,
		MaxTickets:  req.MaxTickets,
		Duration:    req.DurationSeconds,
	})
	if err != nil {
		FailResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusCreated, "金库创建成功", ToVaultResponse(vault))
}

// GetVaults 获取金库列表
func (h *VaultHandler) GetVaults(c *gin.Context) {
	status := c.Query("status")
	page, pageSize := pageParams(c)

	vaults, total, err := h.vaultLogic.ListVaults(status, page, pageSize)
	if err != nil {
		FailResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "获取金库列表成功", GetVaultsResponse{
		Vaults:     ToVaultResponseList(vaults),
		Pagination: newPagination(page, pageSize, total),
	})
}

// GetVault 获取金库详情
func (h *VaultHandler) GetVault(c *gin.Context) {
	address, ok := addressParam(c, "address")
	if !ok {
		return
	}

	vault, err := h.vaultLogic.GetVault(address)
	if err != nil {
		FailResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "获取金库详情成功", ToVaultResponse(vault))
}

// GetVaultByAuthority 根据创建者获取金库
func (h *VaultHandler) GetVaultByAuthority(c *gin.Context) {
	authority, ok := addressParam(c, "authority")
	if !ok {
		return
	}

	vault, err := h.vaultLogic.GetVaultByAuthority(authority)
	if err != nil {
		FailResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "获取金库详情成功", ToVaultResponse(vault))
}

// BuyTicket 购票
func (h *VaultHandler) BuyTicket(c *gin.Context) {
	h.mutate(c, "购票成功", h.vaultLogic.BuyTicket)
}

// RefundTicket 退票
func (h *VaultHandler) RefundTicket(c *gin.Context) {
	h.mutate(c, "退票成功", h.vaultLogic.RefundTicket)
}

// FinalizePayout 开奖
func (h *VaultHandler) FinalizePayout(c *gin.Context) {
	h.mutate(c, "开奖成功", h.vaultLogic.FinalizePayout)
}

// ClaimPrize 领奖
func (h *VaultHandler) ClaimPrize(c *gin.Context) {
	address, ok := addressParam(c, "address")
	if !ok {
		return
	}
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	vault, prize, err := h.vaultLogic.ClaimPrize(address, caller)
	if err != nil {
		FailResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "领奖成功", ClaimPrizeResponse{
		Vault: ToVaultResponse(vault),
		Prize: prize,
	})
}

// Cancel 关闭金库并清退余额
func (h *VaultHandler) Cancel(c *gin.Context) {
	address, ok := addressParam(c, "address")
	if !ok {
		return
	}
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	swept, err := h.vaultLogic.Cancel(address, caller)
	if err != nil {
		FailResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "金库已关闭", CancelResponse{
		Address: address.Hex(),
		Swept:   swept,
	})
}

// GetVaultEvents 获取金库事件
func (h *VaultHandler) GetVaultEvents(c *gin.Context) {
	address, ok := addressParam(c, "address")
	if !ok {
		return
	}
	page, pageSize := pageParams(c)

	events, total, err := h.eventLogic.GetVaultEvents(address, c.Query("event_type"), page, pageSize)
	if err != nil {
		FailResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "获取金库事件成功", GetVaultEventsResponse{
		Events:     ToEventResponseList(events),
		Pagination: newPagination(page, pageSize, total),
	})
}

func (h *VaultHandler) mutate(c *gin.Context, message string, op func(address, caller raffle.Identity) (*raffle.Vault, error)) {
	address, ok := addressParam(c, "address")
	if !ok {
		return
	}
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	vault, err := op(address, caller)
	if err != nil {
		FailResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, message, ToVaultResponse(vault))
}

func addressParam(c *gin.Context, name string) (raffle.Identity, bool) {
	value := c.Param(name)
	if !common.IsHexAddress(value) {
		ErrorResponse(c, http.StatusBadRequest, "InvalidAddress", "无效的地址: "+value)
		return raffle.Identity{}, false
	}
	return common.HexToAddress(value), true
}

func callerOrAbort(c *gin.Context) (raffle.Identity, bool) {
	caller, ok := auth.Caller(c)
	if !ok {
		ErrorResponse(c, http.StatusUnauthorized, "Unauthenticated", "missing caller identity")
		return raffle.Identity{}, false
	}
	return caller, true
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}
	return page, pageSize
}
