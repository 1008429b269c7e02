package model

import (
	"time"
)

// AccountModel 托管账户余额
type AccountModel struct {
	Address   string    `json:"address" gorm:"primaryKey;size:42"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Balance uint64 `json:"balance" gorm:"not null;default:0"`
}

// TableName 自定义表名
func (AccountModel) TableName() string {
	return "account"
}
