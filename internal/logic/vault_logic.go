package logic

import (
	"sync"
	"time"

	"github.com/blues/rvs/internal/custody"
	"github.com/blues/rvs/internal/logger"
	"github.com/blues/rvs/internal/model"
	"github.com/blues/rvs/internal/raffle"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VaultLogic 金库业务逻辑
// 同一金库上的操作严格串行：进程内互斥锁 + 事务内行锁
type VaultLogic struct {
	db              *gorm.DB
	now             func() time.Time
	selector        raffle.Selector
	defaultDuration int64
	locks           sync.Map // map[raffle.Identity]*sync.Mutex
}

// Option 金库业务逻辑选项
type Option func(*VaultLogic)

// WithClock 替换时间源
func WithClock(now func() time.Time) Option {
	return func(l *VaultLogic) { l.now = now }
}

// WithSelector 替换中奖者选择算法
func WithSelector(selector raffle.Selector) Option {
	return func(l *VaultLogic) { l.selector = selector }
}

// WithDefaultDuration 设置未指定时长时的默认售票时长（秒）
func WithDefaultDuration(seconds int64) Option {
	return func(l *VaultLogic) { l.defaultDuration = seconds }
}

// NewVaultLogic 创建金库业务逻辑
func NewVaultLogic(db *gorm.DB, opts ...Option) *VaultLogic {
	l := &VaultLogic{
		db:              db,
		now:             time.Now,
		selector:        raffle.SelectWinner,
		defaultDuration: raffle.DefaultDuration,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Initialize 创建金库，地址由创建者推导
func (l *VaultLogic) Initialize(authority raffle.Identity, args raffle.InitializeArgs) (*raffle.Vault, error) {
	address := raffle.DeriveVaultAddress(authority)
	unlock := l.lock(address)
	defer unlock()

	if args.Duration == nil {
		d := l.defaultDuration
		args.Duration = &d
	}

	var vault *raffle.Vault
	err := withTx(l.db, func(tx *gorm.DB) error {
		var existing model.VaultModel
		err := tx.Where("address = ?", address.Hex()).Take(&existing).Error
		if err == nil {
			return raffle.ErrVaultAlreadyExists
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.Wrapf(err, "check vault %s", address.Hex())
		}

		v, err := raffle.Initialize(authority, args, l.now().Unix())
		if err != nil {
			return err
		}
		m, _ := model.FromVault(v)
		if err := tx.Create(m).Error; err != nil {
			return errors.Wrapf(err, "create vault %s", address.Hex())
		}
		if err := recordEvent(tx, v.Address, model.EventVaultInitialized, authority, 0, map[string]interface{}{
			"ticket_price": v.TicketPrice,
			"max_tickets":  v.MaxTickets,
			"end_time":     v.EndTime,
		}); err != nil {
			return err
		}
		vault = v
		return nil
	})
	if err != nil {
		logRejected("initialize", address, err)
		return nil, err
	}

	logger.Info("Vault %s initialized by %s: price=%d max=%d end=%d",
		vault.Address.Hex(), authority.Hex(), vault.TicketPrice, vault.MaxTickets, vault.EndTime)
	return vault, nil
}

// BuyTicket 买票
func (l *VaultLogic) BuyTicket(address, caller raffle.Identity) (*raffle.Vault, error) {
	v, err := l.mutate(address, "buy_ticket", func(tx *gorm.DB, v *raffle.Vault, now int64) (*pendingEvent, error) {
		if err := v.BuyTicket(custody.NewLedger(tx), caller, now); err != nil {
			return nil, err
		}
		return &pendingEvent{kind: model.EventTicketPurchased, actor: caller, amount: v.TicketPrice}, nil
	})
	if err != nil {
		return nil, err
	}
	logger.WithVault(address.Hex()).Info("Ticket bought by %s, pot=%d tickets=%d", caller.Hex(), v.Pot, v.TicketCount)
	return v, nil
}

// RefundTicket 退票
func (l *VaultLogic) RefundTicket(address, caller raffle.Identity) (*raffle.Vault, error) {
	v, err := l.mutate(address, "refund_ticket", func(tx *gorm.DB, v *raffle.Vault, now int64) (*pendingEvent, error) {
		if err := v.RefundTicket(custody.NewLedger(tx), caller, now); err != nil {
			return nil, err
		}
		return &pendingEvent{kind: model.EventTicketRefunded, actor: caller, amount: v.TicketPrice}, nil
	})
	if err != nil {
		return nil, err
	}
	logger.WithVault(address.Hex()).Info("Ticket refunded to %s, pot=%d tickets=%d", caller.Hex(), v.Pot, v.TicketCount)
	return v, nil
}

// FinalizePayout 开奖，登记待领奖的中奖者
func (l *VaultLogic) FinalizePayout(address, caller raffle.Identity) (*raffle.Vault, error) {
	v, err := l.mutate(address, "finalize_payout", func(tx *gorm.DB, v *raffle.Vault, now int64) (*pendingEvent, error) {
		winner, err := v.FinalizePayout(caller, now, l.selector)
		if err != nil {
			return nil, err
		}
		return &pendingEvent{
			kind:   model.EventWinnerFinalized,
			actor:  caller,
			amount: v.PendingPrize,
			data:   map[string]interface{}{"winner": winner.Hex(), "seed": now, "entries": len(v.Tickets)},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	logger.WithVault(address.Hex()).Info("Winner %s finalized, pending prize %d", v.Winner.Hex(), v.PendingPrize)
	return v, nil
}

// ClaimPrize 中奖者领奖
func (l *VaultLogic) ClaimPrize(address, caller raffle.Identity) (*raffle.Vault, uint64, error) {
	var prize uint64
	v, err := l.mutate(address, "claim_prize", func(tx *gorm.DB, v *raffle.Vault, now int64) (*pendingEvent, error) {
		paid, err := v.ClaimPrize(custody.NewLedger(tx), caller)
		if err != nil {
			return nil, err
		}
		prize = paid
		return &pendingEvent{kind: model.EventPrizeClaimed, actor: caller, amount: paid}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	logger.WithVault(address.Hex()).Info("Prize %d claimed by %s", prize, caller.Hex())
	return v, prize, nil
}

// Cancel 注销空金库并删除记录，返回退回创建者的余额
func (l *VaultLogic) Cancel(address, caller raffle.Identity) (uint64, error) {
	unlock := l.lock(address)
	defer unlock()

	var residual uint64
	err := withTx(l.db, func(tx *gorm.DB) error {
		_, v, err := loadForUpdate(tx, address)
		if err != nil {
			return err
		}
		residual, err = v.Cancel(custody.NewLedger(tx), caller)
		if err != nil {
			return err
		}
		if err := tx.Where("vault_address = ?", address.Hex()).Delete(&model.TicketModel{}).Error; err != nil {
			return errors.Wrapf(err, "delete tickets of %s", address.Hex())
		}
		if err := tx.Where("address = ?", address.Hex()).Delete(&model.VaultModel{}).Error; err != nil {
			return errors.Wrapf(err, "delete vault %s", address.Hex())
		}
		return recordEvent(tx, address, model.EventVaultCanceled, caller, residual, nil)
	})
	if err != nil {
		logRejected("cancel", address, err)
		return 0, err
	}

	logger.WithVault(address.Hex()).Info("Canceled by %s, returned %d", caller.Hex(), residual)
	return residual, nil
}

// MarkClosed 截止后标记为已关闭，返回是否发生变更
func (l *VaultLogic) MarkClosed(address raffle.Identity) (bool, error) {
	changed := false
	_, err := l.mutate(address, "mark_closed", func(tx *gorm.DB, v *raffle.Vault, now int64) (*pendingEvent, error) {
		changed = v.MarkClosed(now)
		if !changed {
			return nil, nil
		}
		return &pendingEvent{kind: model.EventVaultClosed, actor: v.Authority}, nil
	})
	return changed, err
}

// GetVault 获取金库详情
func (l *VaultLogic) GetVault(address raffle.Identity) (*raffle.Vault, error) {
	var m model.VaultModel
	err := l.db.Where("address = ?", address.Hex()).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, raffle.ErrVaultNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get vault %s", address.Hex())
	}

	var tickets []model.TicketModel
	if err := l.db.Where("vault_address = ?", m.Address).Find(&tickets).Error; err != nil {
		return nil, errors.Wrapf(err, "get tickets of %s", m.Address)
	}
	return model.ToVault(&m, tickets), nil
}

// GetVaultByAuthority 根据创建者获取金库
func (l *VaultLogic) GetVaultByAuthority(authority raffle.Identity) (*raffle.Vault, error) {
	return l.GetVault(raffle.DeriveVaultAddress(authority))
}

// ListVaults 分页获取金库列表
func (l *VaultLogic) ListVaults(status string, page, pageSize int) ([]*raffle.Vault, int64, error) {
	var models []model.VaultModel
	var total int64

	query := l.db.Model(&model.VaultModel{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count vaults")
	}

	offset := (page - 1) * pageSize
	if err := query.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&models).Error; err != nil {
		return nil, 0, errors.Wrap(err, "list vaults")
	}
	if len(models) == 0 {
		return []*raffle.Vault{}, total, nil
	}

	addresses := make([]string, len(models))
	for i, m := range models {
		addresses[i] = m.Address
	}
	var tickets []model.TicketModel
	if err := l.db.Where("vault_address IN ?", addresses).Find(&tickets).Error; err != nil {
		return nil, 0, errors.Wrap(err, "list tickets")
	}
	byVault := make(map[string][]model.TicketModel, len(models))
	for _, t := range tickets {
		byVault[t.VaultAddress] = append(byVault[t.VaultAddress], t)
	}

	vaults := make([]*raffle.Vault, len(models))
	for i := range models {
		vaults[i] = model.ToVault(&models[i], byVault[models[i].Address])
	}
	return vaults, total, nil
}

// ListExpiredOpen 列出已过截止时间但仍为 open 的金库
func (l *VaultLogic) ListExpiredOpen(now time.Time) ([]raffle.Identity, error) {
	var addresses []string
	err := l.db.Model(&model.VaultModel{}).
		Where("status = ? AND end_time <= ?", raffle.VaultStatusOpen, now.Unix()).
		Pluck("address", &addresses).Error
	if err != nil {
		return nil, errors.Wrap(err, "list expired vaults")
	}

	ids := make([]raffle.Identity, len(addresses))
	for i, a := range addresses {
		ids[i] = common.HexToAddress(a)
	}
	return ids, nil
}

type pendingEvent struct {
	kind   model.EventType
	actor  raffle.Identity
	amount uint64
	data   map[string]interface{}
}

type mutation func(tx *gorm.DB, v *raffle.Vault, now int64) (*pendingEvent, error)

// mutate 加锁读取金库，执行操作，校验不变量后写回并记录事件
func (l *VaultLogic) mutate(address raffle.Identity, op string, fn mutation) (*raffle.Vault, error) {
	unlock := l.lock(address)
	defer unlock()

	var result *raffle.Vault
	err := withTx(l.db, func(tx *gorm.DB) error {
		m, v, err := loadForUpdate(tx, address)
		if err != nil {
			return err
		}

		event, err := fn(tx, v, l.now().Unix())
		if err != nil {
			return err
		}
		if err := v.Validate(); err != nil {
			return errors.Wrapf(err, "%s left vault %s inconsistent", op, address.Hex())
		}

		if err := saveVault(tx, m.CreatedAt, v); err != nil {
			return err
		}
		if event != nil {
			if err := recordEvent(tx, address, event.kind, event.actor, event.amount, event.data); err != nil {
				return err
			}
		}
		result = v
		return nil
	})
	if err != nil {
		logRejected(op, address, err)
		return nil, err
	}
	return result, nil
}

func (l *VaultLogic) lock(address raffle.Identity) func() {
	value, _ := l.locks.LoadOrStore(address, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func loadForUpdate(tx *gorm.DB, address raffle.Identity) (*model.VaultModel, *raffle.Vault, error) {
	var m model.VaultModel
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("address = ?", address.Hex()).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, raffle.ErrVaultNotFound
	}
	if err != nil {
		return nil, nil, errors.Wrapf(err, "lock vault %s", address.Hex())
	}

	var tickets []model.TicketModel
	if err := tx.Where("vault_address = ?", m.Address).Find(&tickets).Error; err != nil {
		return nil, nil, errors.Wrapf(err, "load tickets of %s", m.Address)
	}
	return &m, model.ToVault(&m, tickets), nil
}

func saveVault(tx *gorm.DB, createdAt time.Time, v *raffle.Vault) error {
	m, tickets := model.FromVault(v)
	m.CreatedAt = createdAt
	if err := tx.Save(m).Error; err != nil {
		return errors.Wrapf(err, "save vault %s", m.Address)
	}
	if err := tx.Where("vault_address = ?", m.Address).Delete(&model.TicketModel{}).Error; err != nil {
		return errors.Wrapf(err, "reset tickets of %s", m.Address)
	}
	if len(tickets) > 0 {
		if err := tx.Create(&tickets).Error; err != nil {
			return errors.Wrapf(err, "save tickets of %s", m.Address)
		}
	}
	return nil
}

// withTx 事务包装，出错或 panic 时回滚
func withTx(db *gorm.DB, fn func(tx *gorm.DB) error) error {
	tx := db.Begin()
	if tx.Error != nil {
		return errors.Wrap(tx.Error, "begin transaction")
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	return nil
}

func logRejected(op string, address raffle.Identity, err error) {
	log := logger.WithVault(address.Hex())
	var raffleErr *raffle.Error
	if errors.As(err, &raffleErr) {
		log.Debug("%s rejected: %s", op, raffleErr.Code)
		return
	}
	if errors.Is(err, custody.ErrInsufficientFunds) {
		log.Debug("%s rejected: %v", op, err)
		return
	}
	log.Error("%s failed: %v", op, err)
}
