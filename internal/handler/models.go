package handler

import (
	"time"

	"github.com/blues/rvs/internal/model"
	"github.com/blues/rvs/internal/raffle"
)

// 通用响应结构
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
	Data    interface{} `json:"data"`
}

// 分页信息结构
type Pagination struct {
	Page      int   `json:"page"`
	PageSize  int   `json:"pageSize"`
	Total     int64 `json:"total"`
	TotalPage int64 `json:"totalPage"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	return Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	}
}

// 请求模型

// InitializeRequest 创建金库请求
type InitializeRequest struct {
	TicketPrice     uint64 `json:"ticket_price"`
	MaxTickets      uint32 `json:"max_tickets"`
	DurationSeconds *int64 `json:"duration_seconds"`
}

// DepositRequest 入金请求
type DepositRequest struct {
	Amount uint64 `json:"amount" binding:"required"`
}

// 金库相关响应模型

// TicketResponse 参与记录
type TicketResponse struct {
	Buyer       string `json:"buyer"`
	PurchasedAt int64  `json:"purchasedAt"`
}

// VaultResponse 金库响应模型
type VaultResponse struct {
	Address       string           `json:"address"`
	Authority     string           `json:"authority"`
	Pot           uint64           `json:"pot"`
	TicketPrice   uint64           `json:"ticketPrice"`
	MaxTickets    uint32           `json:"maxTickets"`
	TicketCount   uint32           `json:"ticketCount"`
	EndTime       int64            `json:"endTime"`
	Status        string           `json:"status"`
	Winner        string           `json:"winner,omitempty"`
	PendingWinner string           `json:"pendingWinner,omitempty"`
	PendingPrize  uint64           `json:"pendingPrize"`
	PaidOut       bool             `json:"paidOut"`
	Tickets       []TicketResponse `json:"tickets"`
}

// GetVaultsResponse 获取金库列表响应
type GetVaultsResponse struct {
	Vaults     []VaultResponse `json:"vaults"`
	Pagination Pagination      `json:"pagination"`
}

// ClaimPrizeResponse 领奖响应
type ClaimPrizeResponse struct {
	Vault VaultResponse `json:"vault"`
	Prize uint64        `json:"prize"`
}

// CancelResponse 关闭金库响应
type CancelResponse struct {
	Address string `json:"address"`
	Swept   uint64 `json:"swept"`
}

// EventResponse 事件响应模型
type EventResponse struct {
	ID        int64     `json:"id"`
	EventType string    `json:"eventType"`
	Actor     string    `json:"actor"`
	Amount    uint64    `json:"amount"`
	Data      string    `json:"data"`
	CreatedAt time.Time `json:"createdAt"`
}

// GetVaultEventsResponse 获取金库事件响应
type GetVaultEventsResponse struct {
	Events     []EventResponse `json:"events"`
	Pagination Pagination      `json:"pagination"`
}

// AccountResponse 托管账户响应
type AccountResponse struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
}

// 转换函数

// ToVaultResponse 将金库转换为响应模型
func ToVaultResponse(v *raffle.Vault) VaultResponse {
	resp := VaultResponse{
		Address:      v.Address.Hex(),
		Authority:    v.Authority.Hex(),
		Pot:          v.Pot,
		TicketPrice:  v.TicketPrice,
		MaxTickets:   v.MaxTickets,
		TicketCount:  v.TicketCount,
		EndTime:      v.EndTime,
		Status:       string(v.Status),
		PendingPrize: v.PendingPrize,
		PaidOut:      v.PaidOut,
		Tickets:      make([]TicketResponse, len(v.Tickets)),
	}
	if v.Winner != (raffle.Identity{}) {
		resp.Winner = v.Winner.Hex()
	}
	if v.PendingWinner != nil {
		resp.PendingWinner = v.PendingWinner.Hex()
	}
	for i, t := range v.Tickets {
		resp.Tickets[i] = TicketResponse{Buyer: t.Buyer.Hex(), PurchasedAt: t.PurchasedAt}
	}
	return resp
}

// ToVaultResponseList 将金库列表转换为响应模型列表
func ToVaultResponseList(vaults []*raffle.Vault) []VaultResponse {
	result := make([]VaultResponse, len(vaults))
	for i, v := range vaults {
		result[i] = ToVaultResponse(v)
	}
	return result
}

// ToEventResponseList 将事件数据库模型列表转换为响应模型列表
func ToEventResponseList(events []model.EventModel) []EventResponse {
	result := make([]EventResponse, len(events))
	for i, e := range events {
		result[i] = EventResponse{
			ID:        e.Id,
			EventType: string(e.EventType),
			Actor:     e.Actor,
			Amount:    e.Amount,
			Data:      e.Data,
			CreatedAt: e.CreatedAt,
		}
	}
	return result
}
