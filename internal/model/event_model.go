package model

import (
	"time"
)

// EventModel 金库生命周期事件，与状态变更在同一事务内写入
type EventModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	VaultAddress string    `json:"vault_address" gorm:"size:42;not null;index"`
	EventType    EventType `json:"event_type" gorm:"size:32;not null"`
	Actor        string    `json:"actor" gorm:"size:42"`
	Amount       uint64    `json:"amount" gorm:"default:0"`
	Data         string    `json:"data" gorm:"type:text"`
}

// EventType 事件类型
type EventType string

const (
	EventVaultInitialized EventType = "VaultInitialized"
	EventTicketPurchased  EventType = "TicketPurchased"
	EventTicketRefunded   EventType = "TicketRefunded"
	EventWinnerFinalized  EventType = "WinnerFinalized"
	EventPrizeClaimed     EventType = "PrizeClaimed"
	EventVaultCanceled    EventType = "VaultCanceled"
	EventVaultClosed      EventType = "VaultClosed"
)

// TableName 自定义表名
func (EventModel) TableName() string {
	return "event"
}
