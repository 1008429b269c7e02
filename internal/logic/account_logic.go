package logic

import (
	"github.com/blues/rvs/internal/custody"
	"github.com/blues/rvs/internal/logger"
	"github.com/blues/rvs/internal/raffle"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// ErrDepositDisabled 入金接口未开放
var ErrDepositDisabled = errors.New("deposits are disabled")

// AccountLogic 托管账户业务逻辑
type AccountLogic struct {
	ledger       *custody.Ledger
	allowDeposit bool
}

// NewAccountLogic 创建托管账户业务逻辑
func NewAccountLogic(db *gorm.DB, allowDeposit bool) *AccountLogic {
	return &AccountLogic{
		ledger:       custody.NewLedger(db),
		allowDeposit: allowDeposit,
	}
}

// Balance 查询账户余额
func (a *AccountLogic) Balance(id raffle.Identity) (uint64, error) {
	return a.ledger.Balance(id)
}

// Deposit 向账户入金，返回入金后余额
func (a *AccountLogic) Deposit(id raffle.Identity, amount uint64) (uint64, error) {
	if !a.allowDeposit {
		return 0, ErrDepositDisabled
	}
	if amount == 0 {
		return 0, errors.New("deposit amount must be greater than zero")
	}
	balance, err := a.ledger.Credit(id, amount)
	if err != nil {
		return 0, err
	}
	logger.Info("Account %s credited %d, balance %d", id.Hex(), amount, balance)
	return balance, nil
}
