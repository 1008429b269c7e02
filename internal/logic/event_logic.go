package logic

import (
	"encoding/json"

	"github.com/blues/rvs/internal/model"
	"github.com/blues/rvs/internal/raffle"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// EventLogic 金库事件业务逻辑
type EventLogic struct {
	db *gorm.DB
}

// NewEventLogic 创建事件业务逻辑
func NewEventLogic(db *gorm.DB) *EventLogic {
	return &EventLogic{db: db}
}

// GetVaultEvents 分页获取金库事件，按时间倒序
func (e *EventLogic) GetVaultEvents(address raffle.Identity, eventType string, page, pageSize int) ([]model.EventModel, int64, error) {
	var events []model.EventModel
	var total int64

	query := e.db.Model(&model.EventModel{}).Where("vault_address = ?", address.Hex())
	if eventType != "" {
		query = query.Where("event_type = ?", eventType)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count vault events")
	}

	offset := (page - 1) * pageSize
	if err := query.Offset(offset).Limit(pageSize).Order("id DESC").Find(&events).Error; err != nil {
		return nil, 0, errors.Wrap(err, "list vault events")
	}

	return events, total, nil
}

// recordEvent 在给定事务内写入事件
func recordEvent(tx *gorm.DB, vault raffle.Identity, eventType model.EventType, actor raffle.Identity, amount uint64, data map[string]interface{}) error {
	event := &model.EventModel{
		VaultAddress: vault.Hex(),
		EventType:    eventType,
		Actor:        actor.Hex(),
		Amount:       amount,
	}
	if len(data) > 0 {
		raw, err := json.Marshal(data)
		if err != nil {
			return errors.Wrap(err, "marshal event data")
		}
		event.Data = string(raw)
	}
	if err := tx.Create(event).Error; err != nil {
		return errors.Wrapf(err, "record %s event", eventType)
	}
	return nil
}
