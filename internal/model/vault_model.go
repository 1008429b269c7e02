package model

import (
	"sort"
	"time"

	"github.com/blues/rvs/internal/raffle"
	"github.com/ethereum/go-ethereum/common"
)

// VaultModel 抽奖金库
type VaultModel struct {
	Address   string    `json:"address" gorm:"primaryKey;size:42"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 创建者，每个创建者同时只能有一个金库
	Authority string `json:"authority" gorm:"size:42;not null;uniqueIndex"`

	// 资金信息
	Pot         uint64 `json:"pot" gorm:"not null;default:0"`
	TicketPrice uint64 `json:"ticket_price" gorm:"not null"`

	// 售票信息
	MaxTickets  uint32 `json:"max_tickets" gorm:"not null"`
	TicketCount uint32 `json:"ticket_count" gorm:"not null;default:0"`
	EndTime     int64  `json:"end_time" gorm:"not null;index"`

	Status raffle.VaultStatus `json:"status" gorm:"size:16;default:'open';index"`

	// 开奖信息
	Winner        string  `json:"winner" gorm:"size:42"`
	PendingWinner *string `json:"pending_winner" gorm:"size:42"`
	PendingPrize  uint64  `json:"pending_prize" gorm:"not null;default:0"`
	PaidOut       bool    `json:"paid_out" gorm:"not null;default:false"`
}

// TableName 自定义表名
func (VaultModel) TableName() string {
	return "vault"
}

// TicketModel 参与记录，Position 保存登记顺序
type TicketModel struct {
	Id           int64  `json:"id" gorm:"primaryKey"`
	VaultAddress string `json:"vault_address" gorm:"size:42;not null;uniqueIndex:idx_ticket_vault_buyer"`
	Buyer        string `json:"buyer" gorm:"size:42;not null;uniqueIndex:idx_ticket_vault_buyer"`
	Position     int    `json:"position" gorm:"not null"`
	PurchasedAt  int64  `json:"purchased_at" gorm:"not null"`
}

// TableName 自定义表名
func (TicketModel) TableName() string {
	return "ticket"
}

// ToVault 将数据库模型转换为领域对象
func ToVault(m *VaultModel, tickets []TicketModel) *raffle.Vault {
	sorted := make([]TicketModel, len(tickets))
	copy(sorted, tickets)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })

	registry := make(raffle.Registry, 0, len(sorted))
	for _, t := range sorted {
		registry = append(registry, raffle.TicketEntry{
			Buyer:       common.HexToAddress(t.Buyer),
			PurchasedAt: t.PurchasedAt,
		})
	}

	v := &raffle.Vault{
		Address:      common.HexToAddress(m.Address),
		Authority:    common.HexToAddress(m.Authority),
		Pot:          m.Pot,
		TicketPrice:  m.TicketPrice,
		MaxTickets:   m.MaxTickets,
		TicketCount:  m.TicketCount,
		EndTime:      m.EndTime,
		Status:       m.Status,
		Winner:       common.HexToAddress(m.Winner),
		PendingPrize: m.PendingPrize,
		PaidOut:      m.PaidOut,
		Tickets:      registry,
	}
	if m.PendingWinner != nil {
		w := common.HexToAddress(*m.PendingWinner)
		v.PendingWinner = &w
	}
	return v
}

// FromVault 将领域对象转换为数据库模型，CreatedAt 由调用方保留
func FromVault(v *raffle.Vault) (*VaultModel, []TicketModel) {
	m := &VaultModel{
		Address:      v.Address.Hex(),
		Authority:    v.Authority.Hex(),
		Pot:          v.Pot,
		TicketPrice:  v.TicketPrice,
		MaxTickets:   v.MaxTickets,
		TicketCount:  v.TicketCount,
		EndTime:      v.EndTime,
		Status:       v.Status,
		Winner:       v.Winner.Hex(),
		PendingPrize: v.PendingPrize,
		PaidOut:      v.PaidOut,
	}
	if v.PendingWinner != nil {
		w := v.PendingWinner.Hex()
		m.PendingWinner = &w
	}

	tickets := make([]TicketModel, 0, len(v.Tickets))
	for i, entry := range v.Tickets {
		tickets = append(tickets, TicketModel{
			VaultAddress: m.Address,
			Buyer:        entry.Buyer.Hex(),
			Position:     i,
			PurchasedAt:  entry.PurchasedAt,
		})
	}
	return m, tickets
}
