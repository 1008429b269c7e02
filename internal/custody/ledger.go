package custody

import (
	"github.com/blues/rvs/internal/model"
	"github.com/blues/rvs/internal/raffle"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInsufficientFunds 付款方余额不足
var ErrInsufficientFunds = errors.New("insufficient funds")

// Ledger 基于 account 表的托管账本
// 传入事务句柄时，转账随外层事务一起提交或回滚
type Ledger struct {
	db *gorm.DB
}

// NewLedger 创建托管账本
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Balance 查询余额，不存在的账户余额为 0
func (l *Ledger) Balance(id raffle.Identity) (uint64, error) {
	var account model.AccountModel
	err := l.db.Where("address = ?", id.Hex()).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "load account %s", id.Hex())
	}
	return account.Balance, nil
}

// Transfer 在两个账户之间转账
func (l *Ledger) Transfer(from, to raffle.Identity, amount uint64) error {
	if amount == 0 || from == to {
		return nil
	}

	return l.db.Transaction(func(tx *gorm.DB) error {
		payer, err := lockAccount(tx, from)
		if err != nil {
			return err
		}
		if payer.Balance < amount {
			return errors.Wrapf(ErrInsufficientFunds, "account %s holds %d, needs %d", from.Hex(), payer.Balance, amount)
		}

		payee, err := lockAccount(tx, to)
		if err != nil {
			return err
		}
		credited := payee.Balance + amount
		if credited < payee.Balance || credited > raffle.MaxAmount {
			return raffle.ErrMathOverflow
		}

		if err := setBalance(tx, payer, payer.Balance-amount); err != nil {
			return err
		}
		return setBalance(tx, payee, credited)
	})
}

// Credit 从外部向账户入金
func (l *Ledger) Credit(id raffle.Identity, amount uint64) (uint64, error) {
	var balance uint64
	err := l.db.Transaction(func(tx *gorm.DB) error {
		account, err := lockAccount(tx, id)
		if err != nil {
			return err
		}
		credited := account.Balance + amount
		if credited < account.Balance || credited > raffle.MaxAmount {
			return raffle.ErrMathOverflow
		}
		balance = credited
		return setBalance(tx, account, credited)
	})
	return balance, err
}

// lockAccount 加行锁读取账户，不存在时创建空账户
func lockAccount(tx *gorm.DB, id raffle.Identity) (*model.AccountModel, error) {
	account := &model.AccountModel{Address: id.Hex()}
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("address = ?", account.Address).Take(account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := tx.Create(account).Error; err != nil {
			return nil, errors.Wrapf(err, "create account %s", account.Address)
		}
		return account, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "lock account %s", account.Address)
	}
	return account, nil
}

func setBalance(tx *gorm.DB, account *model.AccountModel, balance uint64) error {
	if err := tx.Model(account).Update("balance", balance).Error; err != nil {
		return errors.Wrapf(err, "update balance of %s", account.Address)
	}
	account.Balance = balance
	return nil
}
